// Package direct provides a journal recorder that writes broadcast events
// straight to storage.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/events"
)

// Source is the pair of broadcast channels a Recorder listens on.
type Source interface {
	SubscribeTransactions() *events.Subscription[domain.Transaction]
	SubscribeFiles() *events.Subscription[domain.FileStatusEvent]
}

// Recorder copies every broadcast into an EventJournal.
// This is the default implementation for single-instance deployments.
type Recorder struct {
	journal ports.EventJournal
	source  Source
	logger  *slog.Logger

	mu      sync.Mutex
	txSub   *events.Subscription[domain.Transaction]
	fileSub *events.Subscription[domain.FileStatusEvent]
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder. Start must be called before events are captured.
func NewRecorder(journal ports.EventJournal, source Source, logger *slog.Logger) (*Recorder, error) {
	if journal == nil {
		return nil, fmt.Errorf("journal required")
	}
	if source == nil {
		return nil, fmt.Errorf("event source required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{journal: journal, source: source, logger: logger}, nil
}

// Start subscribes to both channels. Events published after Start returns are recorded.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.txSub != nil {
		return fmt.Errorf("recorder already started")
	}

	r.txSub = r.source.SubscribeTransactions()
	r.fileSub = r.source.SubscribeFiles()

	// Appends outlive the caller's context so Stop can drain the backlog.
	bg := context.WithoutCancel(ctx)

	txSub, fileSub := r.txSub, r.fileSub
	r.wg.Go(func() {
		consume(bg, r, txSub, transactionEntry)
	})
	r.wg.Go(func() {
		consume(bg, r, fileSub, fileEntry)
	})

	r.logger.Info("event journal recorder started")
	return nil
}

// Stop unsubscribes, records whatever was still buffered, and waits for the
// writers to finish.
func (r *Recorder) Stop() {
	r.mu.Lock()
	txSub, fileSub := r.txSub, r.fileSub
	r.mu.Unlock()

	if txSub == nil {
		return
	}
	txSub.Close()
	fileSub.Close()
	r.wg.Wait()

	if dropped := txSub.Dropped() + fileSub.Dropped(); dropped > 0 {
		r.logger.Warn("event journal recorder lagged",
			slog.Uint64("dropped", dropped))
	}
}

func consume[T any](ctx context.Context, r *Recorder, sub *events.Subscription[T], toEntry func(T) *domain.JournalEntry) {
	for {
		v, err := sub.Recv(ctx)
		if err != nil {
			if !errors.Is(err, events.ErrSubscriptionClosed) {
				r.logger.Error("event journal receive failed", slog.String("error", err.Error()))
			}
			return
		}

		entry := toEntry(v)
		if err := r.journal.Append(ctx, entry); err != nil {
			r.logger.Error("failed to append journal entry",
				slog.String("error", err.Error()),
				slog.String("transaction_id", entry.TransactionID),
				slog.String("kind", string(entry.Kind)))
		}
	}
}

func transactionEntry(tx domain.Transaction) *domain.JournalEntry {
	return &domain.JournalEntry{
		TransactionID: tx.ID,
		Kind:          domain.JournalKindTransaction,
		Status:        string(tx.Status),
	}
}

func fileEntry(evt domain.FileStatusEvent) *domain.JournalEntry {
	entry := &domain.JournalEntry{
		TransactionID: evt.TransactionID,
		Kind:          domain.JournalKindFile,
		Status:        string(evt.ApplyStatus),
		FilePath:      evt.FilePath,
	}
	if evt.ErrorMessage != nil {
		entry.ErrorMessage = *evt.ErrorMessage
	}
	return entry
}
