package events

import (
	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
)

// Broadcaster carries the two independent event channels: whole-transaction
// snapshots and per-file apply status changes.
type Broadcaster struct {
	transactions *Hub[domain.Transaction]
	files        *Hub[domain.FileStatusEvent]
}

var _ ports.EventPublisher = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster whose subscribers buffer up to bufferSize messages per channel.
func NewBroadcaster(bufferSize int) *Broadcaster {
	return &Broadcaster{
		transactions: NewHub[domain.Transaction](bufferSize),
		files:        NewHub[domain.FileStatusEvent](bufferSize),
	}
}

// PublishTransaction announces an updated transaction snapshot.
func (b *Broadcaster) PublishTransaction(tx domain.Transaction) {
	b.transactions.Publish(tx)
}

// PublishFile announces a file apply status change.
func (b *Broadcaster) PublishFile(evt domain.FileStatusEvent) {
	b.files.Publish(evt)
}

// SubscribeTransactions returns a new receiver for transaction snapshots.
func (b *Broadcaster) SubscribeTransactions() *Subscription[domain.Transaction] {
	return b.transactions.Subscribe()
}

// SubscribeFiles returns a new receiver for file status events.
func (b *Broadcaster) SubscribeFiles() *Subscription[domain.FileStatusEvent] {
	return b.files.Subscribe()
}

// Transactions exposes the transaction hub.
func (b *Broadcaster) Transactions() *Hub[domain.Transaction] {
	return b.transactions
}

// Files exposes the file event hub.
func (b *Broadcaster) Files() *Hub[domain.FileStatusEvent] {
	return b.files
}

// Close closes both channels and every subscription on them.
func (b *Broadcaster) Close() error {
	b.transactions.Close()
	b.files.Close()
	return nil
}
