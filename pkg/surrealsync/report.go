package surrealsync

import (
	"context"
	"encoding/json"
	"fmt"
)

// Stats prints sync statistics as JSON.
func (a *App) Stats(ctx context.Context, cmd *StatsCommand) error {
	stats, err := a.engine.GetSyncStatistics(ctx, cmd.Days)
	if err != nil {
		return err
	}
	return a.print(stats)
}

// Failed prints unresolved sync errors as JSON.
func (a *App) Failed(ctx context.Context, cmd *FailedCommand) error {
	failed, err := a.engine.GetFailedSyncs(ctx, cmd.Limit)
	if err != nil {
		return err
	}
	return a.print(failed)
}

// Retry runs one retry pass and prints its report.
func (a *App) Retry(ctx context.Context, _ *RetryCommand) error {
	report, err := a.engine.RetryFailedSyncs(ctx)
	if err != nil {
		return err
	}
	a.logger.Info().
		Int("attempted", report.Attempted).
		Int("resolved", report.Resolved).
		Int("failed", report.Failed).
		Int("exhausted", report.Exhausted).
		Msg("Retry pass finished")
	return a.print(report)
}

// Push mirrors one relational entity to the document store.
func (a *App) Push(ctx context.Context, cmd *PushCommand) error {
	if err := a.writer.Push(ctx, cmd.EntityType, cmd.EntityID); err != nil {
		return fmt.Errorf("failed to push %s %s: %w", cmd.EntityType, cmd.EntityID, err)
	}
	a.logger.Info().Str("entity_type", cmd.EntityType).Str("entity_id", cmd.EntityID).Msg("Pushed entity")
	return nil
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
