// Package simulation drives transactions through simulated apply runs and
// retries individual failed files.
//
// Every run and every reapply is its own goroutine. Tasks only touch state
// through the store, never hold its lock across a sleep, and cannot be
// cancelled once started.
package simulation

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

// Store is the subset of the transaction store the engine drives.
type Store interface {
	GetTransaction(id string) (domain.Transaction, error)
	UpdateStatus(id string, status domain.TransactionStatus) (domain.Transaction, error)
	UpdateFileApplyStatus(id, path string, status domain.FileApplyStatus, errMsg *string) (domain.Transaction, error)
	FailedFilePaths(id string) ([]string, error)
	BeginSimulation(id string) (domain.Transaction, error)
	EndSimulation(id string)
}

// Sleeper pauses a task. Tests replace it to run without wall-clock delays.
type Sleeper func(time.Duration)

// StartReason explains why Start did not launch a run.
type StartReason string

const (
	ReasonAlreadyActive StartReason = "simulation_already_active"
	ReasonNotPending    StartReason = "transaction_not_pending"
)

// StartResult is the outcome of Start. Transaction is the APPLYING snapshot
// when Started is true, otherwise the unchanged current snapshot.
type StartResult struct {
	Started     bool
	Reason      StartReason
	Transaction domain.Transaction
}

// Engine runs simulations and reapplies against a Store.
type Engine struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
	sleep  Sleeper

	mu          sync.Mutex // guards rng and successRate
	rng         *rand.Rand
	successRate float64

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and reapply spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithSleeper replaces time.Sleep.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithRandSource makes durations and reapply outcomes reproducible.
func WithRandSource(src rand.Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.rng = rand.New(src)
		}
	}
}

// WithReapplySuccessRate sets the probability that a reapplied file succeeds.
func WithReapplySuccessRate(rate float64) Option {
	return func(e *Engine) {
		e.successRate = clampRate(rate)
	}
}

// New creates an engine bound to store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/tjfontaine/relaycode/internal/simulation"),
		sleep:       time.Sleep,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		successRate: DefaultReapplySuccessRate,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetReapplySuccessRate changes the reapply success probability for tasks
// that resolve from now on.
func (e *Engine) SetReapplySuccessRate(rate float64) {
	e.mu.Lock()
	e.successRate = clampRate(rate)
	e.mu.Unlock()
}

// ReapplySuccessRate returns the current reapply success probability.
func (e *Engine) ReapplySuccessRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.successRate
}

// Start launches a simulated apply of transaction id. The guard check, the
// registration and the move to APPLYING happen atomically in the store, so
// concurrent calls for one id launch at most one run. A rejected start is
// reported through StartResult, not as an error; the only error is an
// unknown transaction.
//
// The run keeps ctx's values (trace parent) but not its cancellation.
func (e *Engine) Start(ctx context.Context, id string, scenario domain.Scenario) (StartResult, error) {
	tx, err := e.store.BeginSimulation(id)
	if err != nil {
		var reason StartReason
		switch {
		case errors.Is(err, domain.ErrSimulationActive):
			reason = ReasonAlreadyActive
		case errors.Is(err, domain.ErrTransactionNotPending):
			reason = ReasonNotPending
		default:
			return StartResult{}, err
		}

		current, getErr := e.store.GetTransaction(id)
		if getErr != nil {
			return StartResult{}, getErr
		}
		e.logger.Debug("simulation start rejected",
			slog.String("transaction_id", id),
			slog.String("reason", string(reason)))
		return StartResult{Reason: reason, Transaction: current}, nil
	}

	runCtx := context.WithoutCancel(ctx)
	e.wg.Go(func() {
		e.run(runCtx, tx, scenario)
	})

	return StartResult{Started: true, Transaction: tx}, nil
}

// Wait blocks until every in-flight run and reapply has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, tx domain.Transaction, scenario domain.Scenario) {
	defer e.store.EndSimulation(tx.ID)

	paths := tx.FilePaths()
	total := e.uniform(durationWindow(scenario))
	delay := fileDelay(total, len(paths))

	_, span := e.tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("transaction.id", tx.ID),
		attribute.String("simulation.scenario", scenario.String()),
		attribute.Int("simulation.files", len(paths)),
		attribute.Int64("simulation.duration_ms", total.Milliseconds()),
	))
	defer span.End()

	logger := e.logger.With(
		slog.String("transaction_id", tx.ID),
		slog.String("scenario", scenario.String()))
	logger.Info("simulation started",
		slog.Int("files", len(paths)),
		slog.Duration("duration", total))

	applied, failed := 0, 0
	for idx, path := range paths {
		e.sleep(delay)

		status, msg := fileOutcome(scenario, idx)
		if _, err := e.store.UpdateFileApplyStatus(tx.ID, path, status, msg); err != nil {
			// The store was reset under us; keep going so the guard is released on schedule.
			logger.Warn("failed to record file outcome",
				slog.String("file_path", path),
				slog.String("error", err.Error()))
			continue
		}
		if status == domain.FileFailed {
			failed++
		} else {
			applied++
		}
	}

	e.sleep(delay)

	final := terminalStatus(scenario, applied, failed)
	span.SetAttributes(
		attribute.Int("simulation.applied", applied),
		attribute.Int("simulation.failed", failed),
		attribute.String("transaction.status", string(final)),
	)

	if _, err := e.store.UpdateStatus(tx.ID, final); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "terminal status not recorded")
		logger.Warn("failed to record terminal status",
			slog.String("status", string(final)),
			slog.String("error", err.Error()))
		return
	}

	logger.Info("simulation finished",
		slog.String("status", string(final)),
		slog.Int("applied", applied),
		slog.Int("failed", failed))
}

// uniform samples a duration from w.
func (e *Engine) uniform(w window) time.Duration {
	return w.min + time.Duration(e.randFloat()*float64(w.max-w.min))
}

func (e *Engine) randFloat() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// succeed draws one reapply outcome against the current success rate.
func (e *Engine) succeed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < e.successRate
}

func clampRate(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}
