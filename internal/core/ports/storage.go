package ports

import (
	"context"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

// JournalListOptions defines options for listing journal entries.
type JournalListOptions struct {
	Limit  int
	Offset int
}

// EventJournal is an append-only record of broadcast events.
// It is an audit trail only: the store is never rebuilt from it.
// Implementations: SQLite.
type EventJournal interface {
	// Append records an entry.
	Append(ctx context.Context, entry *domain.JournalEntry) error

	// List returns entries for a transaction ordered by time.
	List(ctx context.Context, transactionID string, opts JournalListOptions) ([]*domain.JournalEntry, error)

	// Close closes the storage connection.
	Close() error
}
