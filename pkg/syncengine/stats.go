package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

const (
	defaultStatsDays   = 7
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

// EventCount is the number of audited events of one source.
type EventCount struct {
	Source     models.EventSource `json:"source"`
	Successful int64              `json:"successful"`
	Failed     int64              `json:"failed"`
}

// SyncStatistics summarises sync activity.
type SyncStatistics struct {
	Days                int                              `json:"days"`
	Since               time.Time                        `json:"since"`
	Events              []EventCount                     `json:"events"`
	TotalEvents         int64                            `json:"total_events"`
	FailedEvents        int64                            `json:"failed_events"`
	SyncErrors          map[models.SyncErrorStatus]int64 `json:"sync_errors"`
	ExhaustedSyncErrors int64                            `json:"exhausted_sync_errors"`
	Outbox              store.OutboxStats                `json:"outbox"`
	Listeners           int                              `json:"listeners"`
	GuardEntries        int                              `json:"guard_entries"`
}

// GetSyncStatistics returns activity over the last days days. Non-positive
// values default to seven days.
func (e *Engine) GetSyncStatistics(ctx context.Context, days int) (*SyncStatistics, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	since := e.now().AddDate(0, 0, -days)

	counts, err := e.rel.AuditCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	errCounts, err := e.rel.SyncErrorCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync errors: %w", err)
	}
	outbox, err := e.rel.OutboxStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox stats: %w", err)
	}

	stats := &SyncStatistics{
		Days:                days,
		Since:               since,
		SyncErrors:          errCounts.ByStatus,
		ExhaustedSyncErrors: errCounts.Exhausted,
		Outbox:              *outbox,
		Listeners:           e.Listeners(),
		GuardEntries:        e.guard.Len(),
	}
	bySource := make(map[models.EventSource]int)
	for _, c := range counts {
		i, ok := bySource[c.EventSource]
		if !ok {
			i = len(stats.Events)
			stats.Events = append(stats.Events, EventCount{Source: c.EventSource})
			bySource[c.EventSource] = i
		}
		ec := &stats.Events[i]
		if c.Success {
			ec.Successful += c.Count
		} else {
			ec.Failed += c.Count
			stats.FailedEvents += c.Count
		}
		stats.TotalEvents += c.Count
	}
	return stats, nil
}

// GetFailedSyncs returns unresolved sync errors, newest first.
func (e *Engine) GetFailedSyncs(ctx context.Context, limit int) ([]*models.SyncError, error) {
	switch {
	case limit <= 0:
		limit = defaultFailedLimit
	case limit > maxFailedLimit:
		limit = maxFailedLimit
	}
	failed, err := e.rel.ListFailedSyncs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed syncs: %w", err)
	}
	return failed, nil
}
