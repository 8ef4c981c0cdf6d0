package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/events"
)

// transactionEvent is the stream payload for a transaction snapshot.
type transactionEvent struct {
	Type          string                   `json:"type"`
	TransactionID string                   `json:"transactionId"`
	Status        domain.TransactionStatus `json:"status"`
	Timestamp     string                   `json:"timestamp"`
	Transaction   domain.Transaction       `json:"transaction"`
}

// fileEvent is the stream payload for a file apply status change.
type fileEvent struct {
	Type string `json:"type"`
	domain.FileStatusEvent
}

// HandleEvents handles GET /api/events as a server-sent event stream.
// Each client gets its own subscriptions; a slow client loses its oldest
// events rather than slowing anyone else down.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	txSub := h.events.SubscribeTransactions()
	defer txSub.Close()
	fileSub := h.events.SubscribeFiles()
	defer fileSub.Close()

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.sendData(w, rc, map[string]string{"type": "connected"}); err != nil {
		h.logger.Debug("event stream closed before connect", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logDropped(txSub, fileSub)
			return

		case <-txSub.Done():
			return

		case <-fileSub.Done():
			return

		case <-txSub.Ready():
			if err := drainTo(txSub, func(tx domain.Transaction) error {
				return h.sendData(w, rc, transactionEvent{
					Type:          "transaction",
					TransactionID: tx.ID,
					Status:        tx.Status,
					Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
					Transaction:   tx,
				})
			}); err != nil {
				return
			}

		case <-fileSub.Ready():
			if err := drainTo(fileSub, func(evt domain.FileStatusEvent) error {
				return h.sendData(w, rc, fileEvent{Type: "file", FileStatusEvent: evt})
			}); err != nil {
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func drainTo[T any](sub *events.Subscription[T], send func(T) error) error {
	for {
		v, ok := sub.TryRecv()
		if !ok {
			return nil
		}
		if err := send(v); err != nil {
			return err
		}
	}
}

func (h *Handler) sendData(w http.ResponseWriter, rc *http.ResponseController, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", slog.String("error", err.Error()))
		return nil
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *Handler) logDropped(txSub *events.Subscription[domain.Transaction], fileSub *events.Subscription[domain.FileStatusEvent]) {
	if dropped := txSub.Dropped() + fileSub.Dropped(); dropped > 0 {
		h.logger.Info("event stream client lagged",
			slog.Uint64("dropped", dropped))
	}
}
