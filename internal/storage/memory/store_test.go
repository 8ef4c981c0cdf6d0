package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

type recorder struct {
	mu    sync.Mutex
	txs   []domain.Transaction
	files []domain.FileStatusEvent
}

func (r *recorder) PublishTransaction(tx domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

func (r *recorder) PublishFile(evt domain.FileStatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, evt)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs), len(r.files)
}

func strPtr(s string) *string { return &s }

func fileTx(id string, status domain.TransactionStatus, paths ...string) domain.Transaction {
	tx := domain.Transaction{
		ID:          id,
		Status:      status,
		Description: "change " + id,
		Author:      "dev",
	}
	for _, p := range paths {
		tx.Blocks = append(tx.Blocks, domain.Block{
			Type: domain.BlockTypeFile,
			File: &domain.File{Path: p, Status: domain.FileModified, ApplyStatus: domain.FilePending},
		})
		tx.Files = append(tx.Files, domain.File{Path: p, Status: domain.FileModified, ApplyStatus: domain.FilePending})
	}
	return tx
}

func newTestStore(t *testing.T, txs ...domain.Transaction) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	store := New(rec)
	if err := store.Reset(&domain.Seed{Transactions: txs}); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	return store, rec
}

func TestStore_Reset(t *testing.T) {
	store := New(nil)

	if err := store.Reset(&domain.Seed{Transactions: []domain.Transaction{{ID: "a"}, {ID: "a"}}}); err == nil {
		t.Error("Reset() with duplicate ids expected error")
	}
	if err := store.Reset(&domain.Seed{Transactions: []domain.Transaction{{ID: ""}}}); err == nil {
		t.Error("Reset() with empty id expected error")
	}

	seed := &domain.Seed{
		Transactions: []domain.Transaction{fileTx("a", domain.TransactionPending, "x.go")},
		Prompts:      []domain.Prompt{{ID: "p1", Title: "Prompt"}},
	}
	if err := store.Reset(seed); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	seed.Transactions[0].Files[0].ApplyStatus = domain.FileFailed
	got, _ := store.GetTransaction("a")
	if got.Files[0].ApplyStatus != domain.FilePending {
		t.Error("store shares memory with the seed document")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if prompts := store.ListPrompts(); len(prompts) != 1 || prompts[0].ID != "p1" {
		t.Errorf("ListPrompts() = %v", prompts)
	}
}

func TestStore_ListTransactions_Paging(t *testing.T) {
	var txs []domain.Transaction
	for i := 1; i <= 7; i++ {
		txs = append(txs, fileTx(fmt.Sprintf("tx-%d", i), domain.TransactionPending))
	}
	store, _ := newTestStore(t, txs...)

	tests := []struct {
		name    string
		limit   int
		page    int
		wantIDs []string
	}{
		{"first page", 3, 1, []string{"tx-1", "tx-2", "tx-3"}},
		{"second page", 3, 2, []string{"tx-4", "tx-5", "tx-6"}},
		{"short last page", 3, 3, []string{"tx-7"}},
		{"past the end", 3, 4, []string{}},
		{"far past the end", 5, 1 << 40, []string{}},
		{"page zero is page one", 2, 0, []string{"tx-1", "tx-2"}},
		{"zero limit", 0, 1, []string{}},
		{"negative limit", -1, 1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.ListTransactions(ListOptions{Limit: tt.limit, Page: tt.page})
			if got == nil {
				t.Fatal("ListTransactions() returned nil slice")
			}
			if tt.limit > 0 && len(got) > tt.limit {
				t.Fatalf("ListTransactions() returned %d items, limit %d", len(got), tt.limit)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ListTransactions() = %d items, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("item %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestStore_ListTransactions_FilterAndSearch(t *testing.T) {
	a := fileTx("a", domain.TransactionPending, "internal/Auth/login.go")
	a.Author = "Alice"
	b := fileTx("b", domain.TransactionFailed)
	b.Description = "Refactor LOGGING"
	b.Blocks = []domain.Block{{Type: "markdown", Content: strPtr("Rename the auth helper")}}
	c := fileTx("c", domain.TransactionPartiallyApplied, "docs/readme.md")
	c.Blocks = append(c.Blocks, domain.Block{Type: "markdown", Content: strPtr("")})
	store, _ := newTestStore(t, a, b, c)

	ids := func(txs []domain.Transaction) []string {
		out := []string{}
		for _, tx := range txs {
			out = append(out, tx.ID)
		}
		return out
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"status filter is case-insensitive", ListOptions{Status: "failed"}, []string{"b"}},
		{"status filter ignores underscores", ListOptions{Status: "PartiallyApplied"}, []string{"c"}},
		{"search author", ListOptions{Search: "alice"}, []string{"a"}},
		{"search description", ListOptions{Search: "logging"}, []string{"b"}},
		{"search file path and block content", ListOptions{Search: "AUTH"}, []string{"a", "b"}},
		{"search path", ListOptions{Search: "readme"}, []string{"c"}},
		{"status then search", ListOptions{Status: "PENDING", Search: "auth"}, []string{"a"}},
		{"no match", ListOptions{Search: "nothing-like-this"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Limit = 10
			tt.opts.Page = 1
			got := ids(store.ListTransactions(tt.opts))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ListTransactions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_GetTransaction(t *testing.T) {
	store, _ := newTestStore(t, fileTx("a", domain.TransactionPending, "x.go"))

	got, err := store.GetTransaction("a")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	got.Status = domain.TransactionCommitted
	got.Blocks[0].File.ApplyStatus = domain.FileFailed

	again, _ := store.GetTransaction("a")
	if again.Status != domain.TransactionPending || again.Blocks[0].File.ApplyStatus != domain.FilePending {
		t.Error("mutating a snapshot changed the store")
	}

	if _, err := store.GetTransaction("missing"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("GetTransaction(missing) error = %v, want ErrTransactionNotFound", err)
	}
}

func TestStore_UpdateStatus(t *testing.T) {
	store, rec := newTestStore(t, fileTx("a", domain.TransactionPending))

	got, err := store.UpdateStatus("a", domain.TransactionCommitted)
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got.Status != domain.TransactionCommitted {
		t.Errorf("Status = %v, want COMMITTED", got.Status)
	}
	if txs, _ := rec.counts(); txs != 1 {
		t.Fatalf("broadcasts = %d, want 1", txs)
	}
	if rec.txs[0].Status != domain.TransactionCommitted {
		t.Errorf("broadcast status = %v, want COMMITTED", rec.txs[0].Status)
	}

	if _, err := store.UpdateStatus("missing", domain.TransactionCommitted); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrTransactionNotFound", err)
	}
	if txs, _ := rec.counts(); txs != 1 {
		t.Errorf("not-found update broadcast; broadcasts = %d", txs)
	}
}

func TestStore_BulkUpdateStatus(t *testing.T) {
	store, rec := newTestStore(t,
		fileTx("a", domain.TransactionApplied),
		fileTx("b", domain.TransactionApplied),
		fileTx("c", domain.TransactionApplied),
	)

	updated := store.BulkUpdateStatus([]string{"c", "nope", "a", "also-nope"}, domain.TransactionReverted)

	if fmt.Sprint(updated) != "[a c]" {
		t.Errorf("BulkUpdateStatus() = %v, want [a c]", updated)
	}
	if txs, _ := rec.counts(); txs != 2 {
		t.Errorf("broadcasts = %d, want 2", txs)
	}
	for _, id := range []string{"a", "c"} {
		tx, _ := store.GetTransaction(id)
		if tx.Status != domain.TransactionReverted {
			t.Errorf("%s status = %v, want REVERTED", id, tx.Status)
		}
	}
	if tx, _ := store.GetTransaction("b"); tx.Status != domain.TransactionApplied {
		t.Errorf("b status = %v, want APPLIED", tx.Status)
	}

	if got := store.BulkUpdateStatus(nil, domain.TransactionCommitted); got == nil || len(got) != 0 {
		t.Errorf("BulkUpdateStatus(nil) = %v, want empty", got)
	}
}

func TestStore_UpdateFileApplyStatus_BothRepresentations(t *testing.T) {
	store, rec := newTestStore(t, fileTx("a", domain.TransactionApplying, "x.go", "y.go"))

	msg := "Patch conflict: file content mismatch"
	got, err := store.UpdateFileApplyStatus("a", "y.go", domain.FileFailed, &msg)
	if err != nil {
		t.Fatalf("UpdateFileApplyStatus() error = %v", err)
	}

	blockFile := got.Blocks[1].File
	listFile := got.Files[1]
	if blockFile.ApplyStatus != domain.FileFailed || listFile.ApplyStatus != domain.FileFailed {
		t.Errorf("apply status block=%v list=%v, want FAILED for both", blockFile.ApplyStatus, listFile.ApplyStatus)
	}
	if *blockFile.ErrorMessage != msg || *listFile.ErrorMessage != msg {
		t.Error("error message not written to both representations")
	}
	if got.Blocks[0].File.ApplyStatus != domain.FilePending {
		t.Error("sibling file changed")
	}

	txs, files := rec.counts()
	if txs != 1 || files != 1 {
		t.Fatalf("broadcasts tx=%d file=%d, want 1 and 1", txs, files)
	}
	if evt := rec.files[0]; evt.FilePath != "y.go" || evt.ApplyStatus != domain.FileFailed || *evt.ErrorMessage != msg {
		t.Errorf("file event = %+v", evt)
	}

	got, _ = store.UpdateFileApplyStatus("a", "y.go", domain.FileApplying, nil)
	if got.Blocks[1].File.ErrorMessage != nil || got.Files[1].ErrorMessage != nil {
		t.Error("nil error message did not clear the previous error")
	}

	if _, err := store.UpdateFileApplyStatus("a", "zzz.go", domain.FileApplied, nil); !errors.Is(err, domain.ErrFileNotFound) {
		t.Errorf("unknown path error = %v, want ErrFileNotFound", err)
	}
	if _, err := store.UpdateFileApplyStatus("missing", "x.go", domain.FileApplied, nil); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("unknown transaction error = %v, want ErrTransactionNotFound", err)
	}
}

func TestStore_FailedFiles(t *testing.T) {
	tx := fileTx("a", domain.TransactionFailed, "x.go", "y.go")
	tx.Files = append(tx.Files, domain.File{Path: "only-list.go", ApplyStatus: domain.FileFailed})
	store, _ := newTestStore(t, tx)

	msg := "boom"
	store.UpdateFileApplyStatus("a", "y.go", domain.FileFailed, &msg)

	raw, err := store.FailedFiles("a")
	if err != nil {
		t.Fatalf("FailedFiles() error = %v", err)
	}
	if fmt.Sprint(raw) != "[y.go y.go only-list.go]" {
		t.Errorf("FailedFiles() = %v", raw)
	}

	deduped, _ := store.FailedFilePaths("a")
	if fmt.Sprint(deduped) != "[y.go only-list.go]" {
		t.Errorf("FailedFilePaths() = %v", deduped)
	}

	if _, err := store.FailedFiles("missing"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("FailedFiles(missing) error = %v", err)
	}
}

func TestStore_BeginSimulation(t *testing.T) {
	store, rec := newTestStore(t,
		fileTx("pending", domain.TransactionPending),
		fileTx("applied", domain.TransactionApplied),
	)

	got, err := store.BeginSimulation("pending")
	if err != nil {
		t.Fatalf("BeginSimulation() error = %v", err)
	}
	if got.Status != domain.TransactionApplying {
		t.Errorf("Status = %v, want APPLYING", got.Status)
	}
	if !store.SimulationActive("pending") {
		t.Error("simulation not registered")
	}

	if _, err := store.BeginSimulation("pending"); !errors.Is(err, domain.ErrSimulationActive) {
		t.Errorf("second BeginSimulation() error = %v, want ErrSimulationActive", err)
	}

	if _, err := store.BeginSimulation("applied"); !errors.Is(err, domain.ErrTransactionNotPending) {
		t.Errorf("BeginSimulation(applied) error = %v, want ErrTransactionNotPending", err)
	}
	if store.SimulationActive("applied") {
		t.Error("rejected start changed the registry")
	}
	if tx, _ := store.GetTransaction("applied"); tx.Status != domain.TransactionApplied {
		t.Errorf("rejected start changed status to %v", tx.Status)
	}

	if _, err := store.BeginSimulation("missing"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("BeginSimulation(missing) error = %v", err)
	}

	if txs, _ := rec.counts(); txs != 1 {
		t.Errorf("broadcasts = %d, want 1", txs)
	}

	store.EndSimulation("pending")
	if store.SimulationActive("pending") || store.ActiveSimulations() != 0 {
		t.Error("EndSimulation did not release the guard")
	}
}

func TestStore_BeginSimulation_ConcurrentStartsRegisterOnce(t *testing.T) {
	store, _ := newTestStore(t, fileTx("a", domain.TransactionPending))

	const callers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.BeginSimulation("a"); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Errorf("started = %d, want 1", started)
	}
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	store, _ := newTestStore(t, fileTx("a", domain.TransactionPending, "x.go"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.UpdateFileApplyStatus("a", "x.go", domain.FileApplying, nil)
				store.UpdateStatus("a", domain.TransactionApplying)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tx, _ := store.GetTransaction("a")
				if tx.Blocks[0].File.ApplyStatus != tx.Files[0].ApplyStatus {
					t.Errorf("representations diverged: %v vs %v", tx.Blocks[0].File.ApplyStatus, tx.Files[0].ApplyStatus)
					return
				}
				store.ListTransactions(ListOptions{Limit: 5, Page: 1, Search: "x.go"})
			}
		}()
	}
	wg.Wait()
}
