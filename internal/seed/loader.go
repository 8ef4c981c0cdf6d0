// Package seed loads the document the transaction store is built from.
//
// The default document is embedded in the binary. A YAML file on disk can
// replace it, which is how demos and tests ship their own data.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/tokens"
)

//go:embed seed.yaml
var embedded []byte

// Loader implements ports.SeedSource.
type Loader struct {
	path   string
	tokens *tokens.Registry
	logger *slog.Logger
}

var _ ports.SeedSource = (*Loader)(nil)

// Option configures a Loader.
type Option func(*Loader)

// WithPath reads the document from a file instead of the embedded copy.
// An empty path keeps the embedded document.
func WithPath(path string) Option {
	return func(l *Loader) {
		l.path = path
	}
}

// WithTokenCounter sets the registry used to fill missing token counts.
// A nil registry disables the backfill.
func WithTokenCounter(r *tokens.Registry) Option {
	return func(l *Loader) {
		l.tokens = r
	}
}

// WithLogger sets the logger for the loader.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the embedded document with token backfill enabled.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		tokens: tokens.NewRegistry(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads, parses and normalizes the document. Every call returns a
// fresh copy, so reset can reload without sharing memory with the store.
func (l *Loader) Load(_ context.Context) (*domain.Seed, error) {
	data := embedded
	source := "embedded"
	if l.path != "" {
		b, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		data = b
		source = l.path
	}

	seed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", source, err)
	}

	if l.tokens != nil {
		filled, err := l.tokens.Backfill(seed.Transactions)
		if err != nil {
			return nil, fmt.Errorf("seed %s: count tokens: %w", source, err)
		}
		if filled > 0 {
			l.logger.Debug("filled missing token counts",
				slog.String("source", source),
				slog.Int("transactions", filled))
		}
	}

	l.logger.Info("seed loaded",
		slog.String("source", source),
		slog.Int("transactions", len(seed.Transactions)),
		slog.Int("prompts", len(seed.Prompts)))

	return seed, nil
}

// Parse decodes a seed document and normalizes it. Unknown fields are errors.
func Parse(data []byte) (*domain.Seed, error) {
	var seed domain.Seed
	if err := yaml.UnmarshalWithOptions(data, &seed, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	seen := make(map[string]struct{}, len(seed.Transactions))
	for i := range seed.Transactions {
		tx := &seed.Transactions[i]
		if tx.ID == "" {
			return nil, fmt.Errorf("transaction at position %d has no id", i)
		}
		if _, dup := seen[tx.ID]; dup {
			return nil, fmt.Errorf("duplicate transaction id %s", tx.ID)
		}
		seen[tx.ID] = struct{}{}

		if err := normalize(tx); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}

	for i := range seed.Prompts {
		if seed.Prompts[i].Status == "" {
			seed.Prompts[i].Status = domain.PromptDraft
		}
	}

	return &seed, nil
}

// normalize fills defaults and makes the block files and the file list
// describe the same set of files with the same apply state.
func normalize(tx *domain.Transaction) error {
	if tx.Status == "" {
		tx.Status = domain.TransactionPending
	} else {
		st, ok := domain.ParseTransactionStatus(string(tx.Status))
		if !ok {
			return fmt.Errorf("unknown status %q", tx.Status)
		}
		tx.Status = st
	}

	listed := make(map[string]int, len(tx.Files))
	for i := range tx.Files {
		if err := normalizeFile(&tx.Files[i]); err != nil {
			return err
		}
		listed[tx.Files[i].Path] = i
	}

	inBlocks := make(map[string]struct{})
	for i := range tx.Blocks {
		b := &tx.Blocks[i]
		if !b.IsFile() {
			continue
		}
		if err := normalizeFile(b.File); err != nil {
			return err
		}
		inBlocks[b.File.Path] = struct{}{}

		if j, ok := listed[b.File.Path]; ok {
			// The block copy carries the apply state.
			tx.Files[j].ApplyStatus = b.File.ApplyStatus
			tx.Files[j].ErrorMessage = b.File.Clone().ErrorMessage
			continue
		}
		tx.Files = append(tx.Files, b.File.Clone())
		listed[b.File.Path] = len(tx.Files) - 1
	}

	for _, f := range tx.Files {
		if _, ok := inBlocks[f.Path]; ok {
			continue
		}
		fc := f.Clone()
		tx.Blocks = append(tx.Blocks, domain.Block{Type: domain.BlockTypeFile, File: &fc})
	}

	return nil
}

func normalizeFile(f *domain.File) error {
	if f.Path == "" {
		return fmt.Errorf("file without path")
	}
	switch f.ApplyStatus {
	case "":
		f.ApplyStatus = domain.FilePending
	case domain.FilePending, domain.FileApplying, domain.FileApplied, domain.FileFailed:
	default:
		return fmt.Errorf("file %s: unknown apply status %q", f.Path, f.ApplyStatus)
	}
	if f.Status == "" {
		f.Status = domain.FileModified
	}
	return nil
}
