package domain

import "time"

// JournalKind identifies which broadcast channel a journal entry came from.
type JournalKind string

const (
	JournalKindTransaction JournalKind = "transaction"
	JournalKindFile        JournalKind = "file"
)

// JournalEntry is one recorded broadcast, kept for the history view.
type JournalEntry struct {
	ID            string      `json:"id" db:"id"`
	TransactionID string      `json:"transactionId" db:"transaction_id"`
	Kind          JournalKind `json:"kind" db:"kind"`
	Status        string      `json:"status" db:"status"`
	FilePath      string      `json:"filePath,omitempty" db:"file_path"`
	ErrorMessage  string      `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
}

// Seed is the initial document the store is built from.
type Seed struct {
	Transactions []Transaction `json:"transactions" yaml:"transactions"`
	Prompts      []Prompt      `json:"prompts" yaml:"prompts"`
}
