package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DrainOutbox mirrors outbox tasks that were committed but never processed,
// for example because the process stopped between commit and mirror.
// It returns the number of tasks handed off.
func (e *Engine) DrainOutbox(ctx context.Context) (int, error) {
	tasks, err := e.rel.ListUnprocessedSyncTasks(ctx, e.opts.OutboxBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list outbox: %w", err)
	}
	n := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		_ = e.processTask(ctx, task)
		n++
	}
	if n > 0 {
		e.logger.Info().Int("tasks", n).Msg("Drained outbox")
	}
	return n, nil
}

// RunOutbox drains the outbox every interval until ctx is done. Tasks
// processed longer than retention ago are purged.
func (e *Engine) RunOutbox(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.DrainOutbox(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("Outbox drain failed")
		}
		if retention > 0 {
			purged, err := e.rel.PurgeProcessedSyncTasks(ctx, e.now().Add(-retention))
			if err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error().Err(err).Msg("Outbox purge failed")
			} else if purged > 0 {
				e.logger.Debug().Int64("tasks", purged).Msg("Purged processed outbox tasks")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunRetries runs a retry pass every interval until ctx is done.
func (e *Engine) RunRetries(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := e.RetryFailedSyncs(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("Retry pass failed")
		}
	}
}
