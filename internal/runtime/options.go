package runtime

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/tjfontaine/relaycode/internal/adapters/config/file"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/seed"
	"github.com/tjfontaine/relaycode/internal/storage/sqldb"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithSeedFile loads transactions and prompts from a YAML file instead of
// the embedded document. It overrides seed.path from the config.
func WithSeedFile(path string) Option {
	return func(a *App) error {
		a.seeds = seed.NewLoader(seed.WithPath(path), seed.WithLogger(a.logger))
		return nil
	}
}

// WithSQLiteJournal records every broadcast event in a SQLite database.
// It overrides the storage section of the config.
func WithSQLiteJournal(path string) Option {
	return func(a *App) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite journal: %w", err)
		}
		a.journal = store
		return nil
	}
}

// WithListener serves on ln instead of listening on server.port.
func WithListener(ln net.Listener) Option {
	return func(a *App) error {
		a.listener = ln
		return nil
	}
}

// WithLogger sets a custom logger.
// Options that build components use the logger set before them.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithSeedSource sets a custom seed source.
func WithSeedSource(source ports.SeedSource) Option {
	return func(a *App) error {
		a.seeds = source
		return nil
	}
}

// WithJournal sets a custom event journal. The app closes it on Shutdown, or
// when Start fails.
func WithJournal(journal ports.EventJournal) Option {
	return func(a *App) error {
		a.journal = journal
		return nil
	}
}
