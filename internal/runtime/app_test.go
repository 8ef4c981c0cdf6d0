package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/relaycode/internal/core/domain"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/storage/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func startApp(t *testing.T, configContent string, opts ...Option) (*App, string, string) {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configPath, strings.ReplaceAll(configContent, "$TMP", tmpDir))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	base := []Option{WithLogger(quietLogger()), WithFileConfig(configPath), WithListener(ln)}
	app, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	})

	return app, "http://" + app.Addr().String(), configPath
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestApp_New_RequiredOptions(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("Expected error without config provider")
	}
	if err.Error() != "config provider required (use WithFileConfig or WithConfigProvider)" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestApp_StartServesSeedData(t *testing.T) {
	app, base, _ := startApp(t, "app:\n  version: 3.0.0\n")

	var version map[string]string
	if code := getJSON(t, base+"/api/version", &version); code != http.StatusOK {
		t.Fatalf("version status = %d", code)
	}
	if version["version"] != "3.0.0" || version["environment"] != "stable" {
		t.Errorf("version = %v", version)
	}

	var txs []domain.Transaction
	getJSON(t, base+"/api/transactions?limit=100", &txs)
	if len(txs) != app.Store().Len() || len(txs) == 0 {
		t.Errorf("listed %d transactions, store has %d", len(txs), app.Store().Len())
	}

	// No journal configured.
	if code := getJSON(t, base+"/api/transactions/"+txs[0].ID+"/history", nil); code != http.StatusNotFound {
		t.Errorf("history status = %d, want 404", code)
	}

	if err := app.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}
}

func TestApp_SeedFileOverride(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	writeFile(t, seedPath, `
transactions:
  - id: only-one
    status: PENDING
    description: single
prompts: []
`)

	app, _, _ := startApp(t, "", WithSeedFile(seedPath))

	if n := app.Store().Len(); n != 1 {
		t.Errorf("store has %d transactions, want 1", n)
	}
}

func TestApp_SQLiteJournal(t *testing.T) {
	app, base, _ := startApp(t, `
storage:
  type: sqlite
  sqlite:
    path: $TMP/data/journal.db
`)

	var tx domain.Transaction
	for _, candidate := range app.Store().ListTransactions(memory.ListOptions{Limit: 1000, Page: 1}) {
		if candidate.Status == domain.TransactionApplied {
			tx = candidate
			break
		}
	}
	if tx.ID == "" {
		t.Fatal("seed has no APPLIED transaction")
	}

	req, _ := http.NewRequest("PATCH", base+"/api/transactions/"+tx.ID+"/status",
		strings.NewReader(`{"status":"COMMITTED"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var entries []domain.JournalEntry
		if code := getJSON(t, base+"/api/transactions/"+tx.ID+"/history", &entries); code != http.StatusOK {
			t.Fatalf("history status = %d", code)
		}
		if len(entries) == 1 && entries[0].Status == string(domain.TransactionCommitted) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal entries = %+v, want one COMMITTED entry", entries)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestApp_ReloadUpdatesSuccessRate(t *testing.T) {
	app, _, configPath := startApp(t, "simulation:\n  reapply_success_rate: 0.5\n")

	if got := app.Engine().ReapplySuccessRate(); got != 0.5 {
		t.Fatalf("initial rate = %v, want 0.5", got)
	}

	writeFile(t, configPath, "simulation:\n  reapply_success_rate: 0.25\n")

	deadline := time.Now().Add(5 * time.Second)
	for app.Engine().ReapplySuccessRate() != 0.25 {
		if time.Now().After(deadline) {
			t.Fatalf("rate = %v after config change, want 0.25", app.Engine().ReapplySuccessRate())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestApp_ShutdownEndsEventStreams(t *testing.T) {
	app, base, _ := startApp(t, "")

	resp, err := http.Get(base + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	if n, _ := resp.Body.Read(buf); !strings.Contains(string(buf[:n]), "connected") {
		t.Fatalf("first read = %q", buf[:n])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		t.Errorf("stream ended with error = %v", err)
	}
}

func TestApp_ShutdownRightAfterStart(t *testing.T) {
	for i := range 20 {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.yaml")
		writeFile(t, configPath, "app:\n  version: 1.0.0\n")

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen() error = %v", err)
		}
		app, err := New(WithLogger(quietLogger()), WithFileConfig(configPath), WithListener(ln))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := app.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		done := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			done <- app.Shutdown(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("iteration %d: Shutdown() error = %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: Shutdown() ignored its deadline", i)
		}
	}
}

type closeTrackingJournal struct {
	mu     sync.Mutex
	closed bool
}

func (j *closeTrackingJournal) Append(context.Context, *domain.JournalEntry) error { return nil }

func (j *closeTrackingJournal) List(context.Context, string, ports.JournalListOptions) ([]*domain.JournalEntry, error) {
	return nil, nil
}

func (j *closeTrackingJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

func (j *closeTrackingJournal) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func TestApp_StartFailureReleasesJournal(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, fmt.Sprintf("server:\n  port: %d\n", port))

	journal := &closeTrackingJournal{}
	app, err := New(WithLogger(quietLogger()), WithFileConfig(configPath), WithJournal(journal))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := app.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for a port already in use")
	}
	if !journal.isClosed() {
		t.Error("journal left open after failed Start")
	}
	if app.recorder != nil {
		t.Error("recorder left running after failed Start")
	}
	if err := app.ctx.Err(); err == nil {
		t.Error("app context not cancelled after failed Start")
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after failed Start error = %v", err)
	}
}
