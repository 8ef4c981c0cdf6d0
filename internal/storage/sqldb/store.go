// Package sqldb stores the event journal in a SQL database.
package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/storage/dialect"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Store is a SQL implementation of ports.EventJournal.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.EventJournal = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS journal_entries (
seq %s,
id %s NOT NULL UNIQUE,
transaction_id %s NOT NULL,
kind %s NOT NULL,
status %s NOT NULL,
file_path %s NOT NULL DEFAULT '',
error_message %s NOT NULL DEFAULT '',
created_at %s NOT NULL
)`,
			s.dialect.AutoIncrementClause(),
			s.dialect.TextType(), s.dialect.TextType(), s.dialect.TextType(), s.dialect.TextType(),
			s.dialect.TextType(), s.dialect.TextType(),
			s.dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_transaction ON journal_entries(transaction_id, seq)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append records an entry. A missing ID or timestamp is filled in.
func (s *Store) Append(ctx context.Context, entry *domain.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO journal_entries (id, transaction_id, kind, status, file_path, error_message, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TransactionID, string(entry.Kind), entry.Status,
		entry.FilePath, entry.ErrorMessage, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// List returns entries for a transaction in insertion order.
func (s *Store) List(ctx context.Context, transactionID string, opts ports.JournalListOptions) ([]*domain.JournalEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.dialect.Rebind(`SELECT id, transaction_id, kind, status, file_path, error_message, created_at
	          FROM journal_entries
	          WHERE transaction_id = ?
	          ORDER BY seq ASC
	          LIMIT ? OFFSET ?`)

	entries := []*domain.JournalEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, transactionID, limit, offset); err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
