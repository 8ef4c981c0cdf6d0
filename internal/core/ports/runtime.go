// Package ports defines the interfaces the relay runtime is assembled from.
package ports

import (
	"context"

	"github.com/tjfontaine/relaycode/internal/config"
	"github.com/tjfontaine/relaycode/internal/core/domain"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based with hot reload (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// EventPublisher announces store mutations to stream consumers.
// Implementations must not block the caller.
type EventPublisher interface {
	PublishTransaction(tx domain.Transaction)
	PublishFile(evt domain.FileStatusEvent)
}

// SeedSource yields the document the store is (re)built from.
// Implementations: embedded YAML (default), YAML file on disk.
type SeedSource interface {
	Load(ctx context.Context) (*domain.Seed, error)
}
