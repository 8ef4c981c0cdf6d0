// Package events fans store mutations out to any number of independent
// subscribers.
//
// Each subscriber owns a bounded ring buffer. Publishing never blocks: when a
// subscriber falls behind, its oldest buffered message is discarded and its
// drop counter is incremented. Subscribers only see messages published after
// they subscribed.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber backlog used when none is configured.
const DefaultBufferSize = 100

// ErrSubscriptionClosed is returned by Recv once a subscription is closed and drained.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Hub is a single fan-out channel carrying values of type T.
// Published values are shared between subscribers and must be treated as read-only.
type Hub[T any] struct {
	mu         sync.RWMutex
	subs       map[*Subscription[T]]struct{}
	bufferSize int
	closed     bool
}

// NewHub creates a hub whose subscribers buffer up to bufferSize messages.
func NewHub[T any](bufferSize int) *Hub[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub[T]{
		subs:       make(map[*Subscription[T]]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new receiver. Subscribing to a closed hub returns an
// already closed subscription.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		hub:    h,
		buf:    make([]T, h.bufferSize),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.closeOnce.Do(func() { close(s.done) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers v to every current subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	targets := make([]*Subscription[T], 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.push(v)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects future ones.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription[T]]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.closeOnce.Do(func() { close(s.done) })
	}
}

func (h *Hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Subscription is one receiver's view of a Hub.
type Subscription[T any] struct {
	hub *Hub[T]

	mu   sync.Mutex
	buf  []T
	head int
	size int

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}

	if s.size == len(s.buf) {
		var zero T
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.dropped.Add(1)
	}
	s.buf[(s.head+s.size)%len(s.buf)] = v
	s.size++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// TryRecv pops the oldest buffered message without waiting.
func (s *Subscription[T]) TryRecv() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.size == 0 {
		return zero, false
	}
	v := s.buf[s.head]
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	return v, true
}

// Recv waits for the next message. Messages still buffered when the
// subscription closes are delivered before ErrSubscriptionClosed.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := s.TryRecv(); ok {
			return v, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			if v, ok := s.TryRecv(); ok {
				return v, nil
			}
			var zero T
			return zero, ErrSubscriptionClosed
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Ready is signalled after a publish; drain with TryRecv. Wake-ups coalesce.
func (s *Subscription[T]) Ready() <-chan struct{} {
	return s.notify
}

// Done is closed when the subscription or its hub is closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many messages were discarded because the buffer was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Len returns the number of buffered messages.
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.remove(s)
	s.closeOnce.Do(func() { close(s.done) })
}
