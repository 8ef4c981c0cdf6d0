// Package relay serves the review UI's HTTP API: transaction queries and
// status changes, simulated applies, file reapplies, prompts and the live
// event stream.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/events"
	"github.com/tjfontaine/relaycode/internal/simulation"
	"github.com/tjfontaine/relaycode/internal/storage/memory"
)

// EventsPath is the event stream endpoint. It stays open indefinitely, so the
// server must not apply its request timeout to it.
const EventsPath = "/api/events"

// DefaultKeepalive is the interval between event stream keep-alive comments.
const DefaultKeepalive = 5 * time.Second

// Store is the transaction store as seen by the API.
type Store interface {
	ListTransactions(opts memory.ListOptions) []domain.Transaction
	GetTransaction(id string) (domain.Transaction, error)
	ListPrompts() []domain.Prompt
	UpdateStatus(id string, status domain.TransactionStatus) (domain.Transaction, error)
	BulkUpdateStatus(ids []string, status domain.TransactionStatus) []string
	Reset(seed *domain.Seed) error
}

// Simulator launches simulated applies and reapplies.
type Simulator interface {
	Start(ctx context.Context, id string, scenario domain.Scenario) (simulation.StartResult, error)
	ReapplyFile(ctx context.Context, id, path string) error
	ReapplyAllFailed(ctx context.Context, id string) ([]string, error)
}

// EventSource hands out subscriptions to the two broadcast channels.
type EventSource interface {
	SubscribeTransactions() *events.Subscription[domain.Transaction]
	SubscribeFiles() *events.Subscription[domain.FileStatusEvent]
}

// Config holds the handler's collaborators. Journal is optional.
type Config struct {
	Store     Store
	Simulator Simulator
	Events    EventSource
	Seeds     ports.SeedSource
	Journal   ports.EventJournal

	Version     string
	Environment string
	Keepalive   time.Duration
	Logger      *slog.Logger
}

// Handler implements the HTTP API.
type Handler struct {
	store     Store
	sim       Simulator
	events    EventSource
	seeds     ports.SeedSource
	journal   ports.EventJournal
	version   string
	env       string
	keepalive time.Duration
	logger    *slog.Logger
}

// NewHandler creates a handler from cfg.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Handler{
		store:     cfg.Store,
		sim:       cfg.Simulator,
		events:    cfg.Events,
		seeds:     cfg.Seeds,
		journal:   cfg.Journal,
		version:   cfg.Version,
		env:       cfg.Environment,
		keepalive: keepalive,
		logger:    logger,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.HandleVersion)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.HandleListTransactions)
			r.Post("/bulk", h.HandleBulkUpdate)
			r.Get("/{id}", h.HandleGetTransaction)
			r.Patch("/{id}/status", h.HandleUpdateStatus)
			r.Post("/{id}/files/reapply", h.HandleReapplyFile)
			r.Post("/{id}/reapply-failed", h.HandleReapplyFailed)
			r.Get("/{id}/history", h.HandleHistory)
		})

		r.Get("/prompts", h.HandleListPrompts)
		r.Get("/events", h.HandleEvents)
		r.Post("/dev/reset", h.HandleReset)
	})
}
