package domain

import "strings"

// TransactionStatus is the coarse lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionPending          TransactionStatus = "PENDING"
	TransactionApplying         TransactionStatus = "APPLYING"
	TransactionApplied          TransactionStatus = "APPLIED"
	TransactionPartiallyApplied TransactionStatus = "PARTIALLY_APPLIED"
	TransactionCommitted        TransactionStatus = "COMMITTED"
	TransactionReverted         TransactionStatus = "REVERTED"
	TransactionFailed           TransactionStatus = "FAILED"
)

var transactionStatuses = []TransactionStatus{
	TransactionPending,
	TransactionApplying,
	TransactionApplied,
	TransactionPartiallyApplied,
	TransactionCommitted,
	TransactionReverted,
	TransactionFailed,
}

// ParseTransactionStatus parses a status case-insensitively. Underscores are
// optional, so "partiallyapplied" and "PARTIALLY_APPLIED" are the same value.
func ParseTransactionStatus(s string) (TransactionStatus, bool) {
	key := normalizeStatus(s)
	for _, st := range transactionStatuses {
		if normalizeStatus(string(st)) == key {
			return st, true
		}
	}
	return "", false
}

// Matches reports whether the status equals the filter, ignoring case and underscores.
func (s TransactionStatus) Matches(filter string) bool {
	return normalizeStatus(string(s)) == normalizeStatus(filter)
}

// Terminal reports whether no simulation will move the transaction further.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionPending, TransactionApplying:
		return false
	default:
		return true
	}
}

func normalizeStatus(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "_", "")
}

// FileApplyStatus is the per-file apply state, independent of the owning transaction.
type FileApplyStatus string

const (
	FilePending  FileApplyStatus = "PENDING"
	FileApplying FileApplyStatus = "APPLYING"
	FileApplied  FileApplyStatus = "APPLIED"
	FileFailed   FileApplyStatus = "FAILED"
)

// FileChange is the kind of change a file entry carries.
type FileChange string

const (
	FileModified FileChange = "modified"
	FileCreated  FileChange = "created"
	FileDeleted  FileChange = "deleted"
	FileRenamed  FileChange = "renamed"
)

// BlockTypeFile marks a block that embeds a file change.
const BlockTypeFile = "file"

// File is a single proposed file edit.
type File struct {
	Path         string          `json:"path" yaml:"path"`
	Status       FileChange      `json:"status" yaml:"status"`
	Language     string          `json:"language" yaml:"language"`
	Diff         string          `json:"diff" yaml:"diff"`
	ApplyStatus  FileApplyStatus `json:"applyStatus" yaml:"applyStatus"`
	ErrorMessage *string         `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

// Block is one ordered unit inside a transaction: inline text or a file change.
type Block struct {
	Type    string  `json:"type" yaml:"type"`
	Content *string `json:"content" yaml:"content"`
	File    *File   `json:"file" yaml:"file"`
}

// IsFile reports whether the block embeds a file.
func (b Block) IsFile() bool {
	return b.Type == BlockTypeFile && b.File != nil
}

// Transaction is a reviewable bundle of proposed file changes.
//
// Files appear twice: embedded in file blocks and in the top-level Files
// list. Both copies must always agree on apply status.
type Transaction struct {
	ID          string            `json:"id" yaml:"id"`
	Status      TransactionStatus `json:"status" yaml:"status"`
	Description string            `json:"description" yaml:"description"`
	Timestamp   string            `json:"timestamp" yaml:"timestamp"`
	CreatedAt   string            `json:"createdAt" yaml:"createdAt"`
	PromptID    string            `json:"promptId" yaml:"promptId"`
	ParentID    *string           `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	IsChainRoot *bool             `json:"isChainRoot,omitempty" yaml:"isChainRoot,omitempty"`
	Author      string            `json:"author" yaml:"author"`
	Blocks      []Block           `json:"blocks" yaml:"blocks"`
	Files       []File            `json:"files" yaml:"files"`
	Provider    string            `json:"provider" yaml:"provider"`
	Model       string            `json:"model" yaml:"model"`
	Cost        string            `json:"cost" yaml:"cost"`
	Tokens      string            `json:"tokens" yaml:"tokens"`
	Reasoning   string            `json:"reasoning" yaml:"reasoning"`
}

// Clone returns a deep copy that shares no memory with t.
func (t Transaction) Clone() Transaction {
	c := t
	c.ParentID = cloneString(t.ParentID)
	if t.IsChainRoot != nil {
		v := *t.IsChainRoot
		c.IsChainRoot = &v
	}
	if t.Blocks != nil {
		c.Blocks = make([]Block, len(t.Blocks))
		for i, b := range t.Blocks {
			c.Blocks[i] = Block{Type: b.Type, Content: cloneString(b.Content)}
			if b.File != nil {
				f := b.File.Clone()
				c.Blocks[i].File = &f
			}
		}
	}
	if t.Files != nil {
		c.Files = make([]File, len(t.Files))
		for i, f := range t.Files {
			c.Files[i] = f.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of f.
func (f File) Clone() File {
	c := f
	c.ErrorMessage = cloneString(f.ErrorMessage)
	return c
}

// FilePaths returns every distinct file path in order: block-embedded files
// first, then top-level files not already seen.
func (t Transaction) FilePaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, b := range t.Blocks {
		if b.IsFile() {
			add(b.File.Path)
		}
	}
	for _, f := range t.Files {
		add(f.Path)
	}
	return paths
}

// FileByPath returns the first file with the given path, looking at blocks first.
func (t Transaction) FileByPath(path string) (File, bool) {
	for _, b := range t.Blocks {
		if b.IsFile() && b.File.Path == path {
			return *b.File, true
		}
	}
	for _, f := range t.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// PromptStatus is the state of a prompt on the review board.
type PromptStatus string

const (
	PromptDraft     PromptStatus = "DRAFT"
	PromptActive    PromptStatus = "ACTIVE"
	PromptCompleted PromptStatus = "COMPLETED"
	PromptArchived  PromptStatus = "ARCHIVED"
)

// Prompt is the request a transaction was produced for. Read-only.
type Prompt struct {
	ID        string       `json:"id" yaml:"id"`
	Title     string       `json:"title" yaml:"title"`
	Content   string       `json:"content" yaml:"content"`
	Timestamp string       `json:"timestamp" yaml:"timestamp"`
	Status    PromptStatus `json:"status" yaml:"status"`
}

// FileStatusEvent announces a change to one file's apply status.
type FileStatusEvent struct {
	TransactionID string          `json:"transactionId"`
	FilePath      string          `json:"filePath"`
	ApplyStatus   FileApplyStatus `json:"applyStatus"`
	ErrorMessage  *string         `json:"errorMessage,omitempty"`
}
