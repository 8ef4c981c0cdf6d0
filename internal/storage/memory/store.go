// Package memory holds the authoritative in-memory transaction store.
//
// All state sits behind one sync.RWMutex. Readers get deep copies, the lock is
// held only for the read or the mutation itself, and every mutation is
// broadcast after the lock has been released.
package memory

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
)

// ListOptions controls ListTransactions.
type ListOptions struct {
	Limit  int
	Page   int    // 1-indexed
	Search string // case-insensitive substring
	Status string // case-insensitive status equality
}

// Store owns all transactions, prompts and the set of transactions currently
// being simulated.
type Store struct {
	mu           sync.RWMutex
	transactions []domain.Transaction
	index        map[string]int
	prompts      []domain.Prompt
	active       map[string]struct{}

	events ports.EventPublisher
}

// New creates an empty store. A nil publisher discards events.
func New(events ports.EventPublisher) *Store {
	if events == nil {
		events = discard{}
	}
	return &Store{
		index:  make(map[string]int),
		active: make(map[string]struct{}),
		events: events,
	}
}

// Reset replaces every transaction and prompt with copies of the seed.
// Running simulations keep their registry entry and finish against the new data.
func (s *Store) Reset(seed *domain.Seed) error {
	if seed == nil {
		seed = &domain.Seed{}
	}

	txs := make([]domain.Transaction, len(seed.Transactions))
	index := make(map[string]int, len(seed.Transactions))
	for i, tx := range seed.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("transaction at position %d has no id", i)
		}
		if _, dup := index[tx.ID]; dup {
			return fmt.Errorf("duplicate transaction id %s", tx.ID)
		}
		index[tx.ID] = i
		txs[i] = tx.Clone()
	}

	prompts := make([]domain.Prompt, len(seed.Prompts))
	copy(prompts, seed.Prompts)

	s.mu.Lock()
	s.transactions = txs
	s.index = index
	s.prompts = prompts
	s.mu.Unlock()

	return nil
}

// Len returns the number of transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// ListTransactions filters by status, then by search text, then returns the
// requested 1-indexed page. Pages past the end are empty, never an error.
func (s *Store) ListTransactions(opts ListOptions) []domain.Transaction {
	result := []domain.Transaction{}
	if opts.Limit <= 0 {
		return result
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/opts.Limit {
		return result
	}
	start := (page - 1) * opts.Limit
	search := strings.ToLower(opts.Search)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := 0
	for _, tx := range s.transactions {
		if opts.Status != "" && !tx.Status.Matches(opts.Status) {
			continue
		}
		if search != "" && !matchesSearch(tx, search) {
			continue
		}
		if matched >= start {
			result = append(result, tx.Clone())
			if len(result) == opts.Limit {
				break
			}
		}
		matched++
	}
	return result
}

// matchesSearch checks description, author and each block: its inline content
// when present, otherwise its file path. needle must already be lower case.
func matchesSearch(tx domain.Transaction, needle string) bool {
	if strings.Contains(strings.ToLower(tx.Description), needle) ||
		strings.Contains(strings.ToLower(tx.Author), needle) {
		return true
	}
	for _, b := range tx.Blocks {
		switch {
		case b.Content != nil:
			if strings.Contains(strings.ToLower(*b.Content), needle) {
				return true
			}
		case b.File != nil:
			if strings.Contains(strings.ToLower(b.File.Path), needle) {
				return true
			}
		}
	}
	return false
}

// GetTransaction returns a snapshot of one transaction.
func (s *Store) GetTransaction(id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.lookup(id)
	if !ok {
		return domain.Transaction{}, notFound(id)
	}
	return tx.Clone(), nil
}

// ListPrompts returns a copy of all prompts.
func (s *Store) ListPrompts() []domain.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompts := make([]domain.Prompt, len(s.prompts))
	copy(prompts, s.prompts)
	return prompts
}

// UpdateStatus sets a transaction's status and broadcasts the result.
func (s *Store) UpdateStatus(id string, status domain.TransactionStatus) (domain.Transaction, error) {
	return s.mutate(id, func(tx *domain.Transaction) error {
		tx.Status = status
		return nil
	})
}

// BulkUpdateStatus sets status on every listed transaction that exists and
// returns the ids it updated, in store order. Unknown ids are skipped.
func (s *Store) BulkUpdateStatus(ids []string, status domain.TransactionStatus) []string {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()
	updatedIDs := []string{}
	var snapshots []domain.Transaction
	for i := range s.transactions {
		tx := &s.transactions[i]
		if _, ok := wanted[tx.ID]; !ok {
			continue
		}
		tx.Status = status
		updatedIDs = append(updatedIDs, tx.ID)
		snapshots = append(snapshots, tx.Clone())
	}
	s.mu.Unlock()

	for _, snap := range snapshots {
		s.events.PublishTransaction(snap)
	}
	return updatedIDs
}

// FailedFiles returns the paths whose apply status is FAILED, scanning block
// files first and then top-level files. A path present in both lists appears twice.
func (s *Store) FailedFiles(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.lookup(id)
	if !ok {
		return nil, notFound(id)
	}

	paths := []string{}
	for _, b := range tx.Blocks {
		if b.IsFile() && b.File.ApplyStatus == domain.FileFailed {
			paths = append(paths, b.File.Path)
		}
	}
	for _, f := range tx.Files {
		if f.ApplyStatus == domain.FileFailed {
			paths = append(paths, f.Path)
		}
	}
	return paths, nil
}

// FailedFilePaths is FailedFiles with duplicates removed, keeping first-seen order.
func (s *Store) FailedFilePaths(id string) ([]string, error) {
	raw, err := s.FailedFiles(id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths, nil
}

// UpdateFileApplyStatus sets the apply status of one file in both the block
// list and the file list, then broadcasts the transaction and a file event.
// A nil errMsg clears any previous error.
func (s *Store) UpdateFileApplyStatus(id, path string, status domain.FileApplyStatus, errMsg *string) (domain.Transaction, error) {
	snap, err := s.mutate(id, func(tx *domain.Transaction) error {
		if !setFileApplyStatus(tx, path, status, errMsg) {
			return fmt.Errorf("transaction %s file %s: %w", id, path, domain.ErrFileNotFound)
		}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	evt := domain.FileStatusEvent{
		TransactionID: id,
		FilePath:      path,
		ApplyStatus:   status,
	}
	if errMsg != nil {
		msg := *errMsg
		evt.ErrorMessage = &msg
	}
	s.events.PublishFile(evt)

	return snap, nil
}

// setFileApplyStatus is the only place a file's apply status changes, so the
// two file representations cannot drift apart.
func setFileApplyStatus(tx *domain.Transaction, path string, status domain.FileApplyStatus, errMsg *string) bool {
	found := false
	apply := func(f *domain.File) {
		f.ApplyStatus = status
		f.ErrorMessage = nil
		if errMsg != nil {
			msg := *errMsg
			f.ErrorMessage = &msg
		}
		found = true
	}

	for i := range tx.Blocks {
		if b := &tx.Blocks[i]; b.IsFile() && b.File.Path == path {
			apply(b.File)
		}
	}
	for i := range tx.Files {
		if tx.Files[i].Path == path {
			apply(&tx.Files[i])
		}
	}
	return found
}

// BeginSimulation registers id as actively simulating and moves it from
// PENDING to APPLYING in one critical section, then broadcasts.
// It fails with ErrSimulationActive or ErrTransactionNotPending without
// changing anything.
func (s *Store) BeginSimulation(id string) (domain.Transaction, error) {
	s.mu.Lock()
	tx, ok := s.lookup(id)
	if !ok {
		s.mu.Unlock()
		return domain.Transaction{}, notFound(id)
	}
	if _, running := s.active[id]; running {
		s.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrSimulationActive)
	}
	if tx.Status != domain.TransactionPending {
		s.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("transaction %s is %s: %w", id, tx.Status, domain.ErrTransactionNotPending)
	}

	s.active[id] = struct{}{}
	tx.Status = domain.TransactionApplying
	snap := tx.Clone()
	s.mu.Unlock()

	s.events.PublishTransaction(snap.Clone())
	return snap, nil
}

// EndSimulation releases the simulation guard for id.
func (s *Store) EndSimulation(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// SimulationActive reports whether a simulation is running for id.
func (s *Store) SimulationActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// ActiveSimulations returns the number of running simulations.
func (s *Store) ActiveSimulations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// mutate runs fn on the live transaction under the write lock and broadcasts
// the resulting snapshot once the lock is released.
func (s *Store) mutate(id string, fn func(tx *domain.Transaction) error) (domain.Transaction, error) {
	s.mu.Lock()
	tx, ok := s.lookup(id)
	if !ok {
		s.mu.Unlock()
		return domain.Transaction{}, notFound(id)
	}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return domain.Transaction{}, err
	}
	snap := tx.Clone()
	s.mu.Unlock()

	s.events.PublishTransaction(snap.Clone())
	return snap, nil
}

// lookup must be called with s.mu held.
func (s *Store) lookup(id string) (*domain.Transaction, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.transactions[i], true
}

func notFound(id string) error {
	return fmt.Errorf("transaction %s: %w", id, domain.ErrTransactionNotFound)
}

type discard struct{}

func (discard) PublishTransaction(domain.Transaction) {}
func (discard) PublishFile(domain.FileStatusEvent) {}
