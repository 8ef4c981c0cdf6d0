package simulation

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

// ReapplyFile moves one file back to APPLYING right away, clearing its error,
// and resolves it in the background. It fails only when the transaction or
// the file is unknown. Concurrent reapplies of one path are allowed; the last
// write wins.
func (e *Engine) ReapplyFile(ctx context.Context, id, path string) error {
	if _, err := e.store.UpdateFileApplyStatus(id, path, domain.FileApplying, nil); err != nil {
		return err
	}

	taskCtx := context.WithoutCancel(ctx)
	e.wg.Go(func() {
		e.resolveReapply(taskCtx, id, path)
	})
	return nil
}

// ReapplyAllFailed launches one independent reapply per failed file and
// returns the paths it launched. There is no aggregate completion signal.
func (e *Engine) ReapplyAllFailed(ctx context.Context, id string) ([]string, error) {
	paths, err := e.store.FailedFilePaths(id)
	if err != nil {
		return nil, err
	}

	launched := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := e.ReapplyFile(ctx, id, path); err != nil {
			e.logger.Warn("failed to start reapply",
				slog.String("transaction_id", id),
				slog.String("file_path", path),
				slog.String("error", err.Error()))
			continue
		}
		launched = append(launched, path)
	}
	return launched, nil
}

func (e *Engine) resolveReapply(ctx context.Context, id, path string) {
	_, span := e.tracer.Start(ctx, "simulation.reapply", trace.WithAttributes(
		attribute.String("transaction.id", id),
		attribute.String("file.path", path),
	))
	defer span.End()

	e.sleep(e.uniform(reapplyWindow))

	status := domain.FileApplied
	var msg *string
	if !e.succeed() {
		status = domain.FileFailed
		m := RetryFailedMessage
		msg = &m
	}
	span.SetAttributes(attribute.String("file.apply_status", string(status)))

	if _, err := e.store.UpdateFileApplyStatus(id, path, status, msg); err != nil {
		span.RecordError(err)
		e.logger.Warn("failed to record reapply outcome",
			slog.String("transaction_id", id),
			slog.String("file_path", path),
			slog.String("error", err.Error()))
		return
	}

	e.logger.Debug("reapply finished",
		slog.String("transaction_id", id),
		slog.String("file_path", path),
		slog.String("apply_status", string(status)))
}
