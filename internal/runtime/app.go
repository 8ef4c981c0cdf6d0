// Package runtime assembles the relay service and manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tjfontaine/relaycode/internal/adapters/events/direct"
	"github.com/tjfontaine/relaycode/internal/api/relay"
	"github.com/tjfontaine/relaycode/internal/config"
	"github.com/tjfontaine/relaycode/internal/core/ports"
	"github.com/tjfontaine/relaycode/internal/events"
	"github.com/tjfontaine/relaycode/internal/seed"
	"github.com/tjfontaine/relaycode/internal/server"
	"github.com/tjfontaine/relaycode/internal/simulation"
	"github.com/tjfontaine/relaycode/internal/storage/memory"
	"github.com/tjfontaine/relaycode/internal/storage/sqldb"
	"github.com/tjfontaine/relaycode/internal/telemetry"
)

// App is the relay service: the transaction store, the simulation engine,
// the broadcaster, the optional event journal and the HTTP server.
type App struct {
	// Dependencies (injected via options)
	config  ports.ConfigProvider
	seeds   ports.SeedSource
	journal ports.EventJournal
	logger  *slog.Logger

	listener net.Listener

	// Built by Start
	cfg            *config.Config
	bus            *events.Broadcaster
	store          *memory.Store
	engine         *simulation.Engine
	recorder       *direct.Recorder
	server         *server.Server
	tracerShutdown func(context.Context) error
	serveDone      chan struct{}

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
}

// New creates an App with the given options.
// A config provider is required; the embedded seed document is used unless a
// seed source is given or configured.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return a, nil
}

// Start loads config and seed data, then starts the engine, the journal
// recorder, the config watcher and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("app already started")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	ok := false
	defer func() {
		if !ok {
			a.abortStart()
		}
	}()

	cfg, err := a.config.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, a.logger,
			telemetry.WithServiceVersion(cfg.App.Version))
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		a.tracerShutdown = shutdown
	}

	a.bus = events.NewBroadcaster(cfg.Events.Buffer)
	a.store = memory.New(a.bus)

	if a.seeds == nil {
		a.seeds = seed.NewLoader(seed.WithPath(cfg.Seed.Path), seed.WithLogger(a.logger))
	}
	data, err := a.seeds.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	if err := a.store.Reset(data); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	a.engine = simulation.New(a.store,
		simulation.WithLogger(a.logger),
		simulation.WithReapplySuccessRate(cfg.Simulation.ReapplySuccessRate),
	)

	if err := a.initJournal(cfg); err != nil {
		return fmt.Errorf("init journal: %w", err)
	}

	if err := a.startServer(cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Watch for config changes
	go a.watchConfig()

	ok = true
	a.started = true
	a.logger.Info("relay started",
		slog.Int("transactions", a.store.Len()),
		slog.Bool("journal", a.journal != nil),
		slog.String("version", cfg.App.Version))

	return nil
}

// abortStart releases whatever a failed Start built before it gave up.
func (a *App) abortStart() {
	a.cancel()

	if a.bus != nil {
		a.bus.Close()
	}
	if a.recorder != nil {
		a.recorder.Stop()
		a.recorder = nil
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("failed to close journal", slog.String("error", err.Error()))
		}
		a.journal = nil
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(context.Background()); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
		a.tracerShutdown = nil
	}
}

func (a *App) initJournal(cfg *config.Config) error {
	if a.journal == nil && strings.EqualFold(cfg.Storage.Type, "sqlite") {
		path := cfg.Storage.SQLite.Path
		if !strings.HasPrefix(path, "file:") && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create journal directory: %w", err)
			}
		}
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return err
		}
		a.journal = store
	}
	if a.journal == nil {
		return nil
	}

	recorder, err := direct.NewRecorder(a.journal, a.bus, a.logger)
	if err != nil {
		return err
	}
	if err := recorder.Start(a.ctx); err != nil {
		return err
	}
	a.recorder = recorder
	return nil
}

func (a *App) startServer(cfg *config.Config) error {
	a.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
		StreamPaths:    []string{relay.EventsPath},
	}, a.logger)

	handler := relay.NewHandler(relay.Config{
		Store:       a.store,
		Simulator:   a.engine,
		Events:      a.bus,
		Seeds:       a.seeds,
		Journal:     a.journal,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		Keepalive:   cfg.Events.Keepalive,
		Logger:      a.logger,
	})
	handler.RegisterRoutes(a.server.Router)

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen on port %d: %w", cfg.Server.Port, err)
		}
		a.listener = ln
	}

	a.serveDone = make(chan struct{})
	go func() {
		defer close(a.serveDone)
		if err := a.server.Serve(ln); err != nil {
			a.logger.Error("server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or nil before Start.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Store returns the transaction store, or nil before Start.
func (a *App) Store() *memory.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// Engine returns the simulation engine, or nil before Start.
func (a *App) Engine() *simulation.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

// Shutdown gracefully stops the app. Event streams are closed first so the
// HTTP server can drain; running simulations are then allowed to finish
// unless ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	a.logger.Info("shutting down relay")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error

	// Ends every open event stream and the journal subscriptions.
	a.bus.Close()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	select {
	case <-a.serveDone:
	case <-ctx.Done():
		a.logger.Warn("server did not stop before the shutdown deadline")
		errs = append(errs, fmt.Errorf("wait for server: %w", ctx.Err()))
	}

	drained := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		a.logger.Warn("simulations still running at shutdown",
			slog.Int("active", a.store.ActiveSimulations()))
	}

	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("failed to close journal", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}

	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("relay shutdown complete")
	return errors.Join(errs...)
}

// watchConfig watches for config changes and reloads.
func (a *App) watchConfig() {
	onChange := func(newCfg *config.Config) {
		a.logger.Info("config changed, reloading")
		a.reload(newCfg)
	}

	if err := a.config.Watch(a.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload applies the settings that can change while running. Everything else
// takes effect on restart.
func (a *App) reload(cfg *config.Config) {
	a.engine.SetReapplySuccessRate(cfg.Simulation.ReapplySuccessRate)

	a.logger.Info("reload complete",
		slog.Float64("reapply_success_rate", a.engine.ReapplySuccessRate()))
}
