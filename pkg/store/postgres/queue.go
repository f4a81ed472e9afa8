package postgres

import (
	"context"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// ListRetryableSyncErrors returns the records the retry queue should replay next
func (s *Store) ListRetryableSyncErrors(ctx context.Context, now time.Time, limit int) ([]*models.SyncError, error) {
	var records []*models.SyncError
	query := s.db.WithContext(ctx).
		Where("status IN ?", []models.SyncErrorStatus{models.SyncErrorPending, models.SyncErrorRetrying}).
		Where("retry_count < max_retries").
		Where("next_retry_at <= ?", now).
		Order("created_at ASC").
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&records).Error
	return records, err
}

// ListFailedSyncs returns unresolved records, newest first
func (s *Store) ListFailedSyncs(ctx context.Context, limit int) ([]*models.SyncError, error) {
	var records []*models.SyncError
	query := s.db.WithContext(ctx).
		Where("status <> ?", models.SyncErrorResolved).
		Order("created_at DESC").
		Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&records).Error
	return records, err
}

// UpdateSyncError persists the retry bookkeeping of a record.
// A stale copy can never lower retry_count.
func (s *Store) UpdateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncError{}).
		Where("id = ? AND retry_count <= ?", syncErr.ID, syncErr.RetryCount).
		Updates(map[string]any{
			"status":        syncErr.Status,
			"retry_count":   syncErr.RetryCount,
			"error_message": syncErr.ErrorMessage,
			"next_retry_at": syncErr.NextRetryAt,
			"updated_at":    syncErr.UpdatedAt,
			"resolved_at":   syncErr.ResolvedAt,
		}).Error
}

// ListUnprocessedSyncTasks returns outbox tasks that haven't been handed off yet
func (s *Store) ListUnprocessedSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error) {
	var tasks []*models.SyncTask
	query := s.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at ASC").
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&tasks).Error
	return tasks, err
}

// MarkSyncTaskProcessed marks a task as handed off
func (s *Store) MarkSyncTaskProcessed(ctx context.Context, id uint64, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncTask{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}

// PurgeProcessedSyncTasks removes old processed tasks for cleanup
func (s *Store) PurgeProcessedSyncTasks(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before).
		Delete(&models.SyncTask{})
	return res.RowsAffected, res.Error
}

// AuditCounts returns the number of audit entries since the cutoff per source and outcome
func (s *Store) AuditCounts(ctx context.Context, since time.Time) ([]store.AuditCount, error) {
	var counts []store.AuditCount
	err := s.db.WithContext(ctx).
		Model(&models.AuditLogEntry{}).
		Select("event_source, success, COUNT(*) AS count").
		Where(`"timestamp" >= ?`, since).
		Group("event_source, success").
		Order("event_source").
		Scan(&counts).Error
	return counts, err
}

// SyncErrorCounts returns the number of error records per status
func (s *Store) SyncErrorCounts(ctx context.Context) (*store.SyncErrorCounts, error) {
	var rows []struct {
		Status models.SyncErrorStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.SyncError{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := &store.SyncErrorCounts{ByStatus: make(map[models.SyncErrorStatus]int64, len(rows))}
	for _, row := range rows {
		counts.ByStatus[row.Status] = row.Count
	}

	if err := s.db.WithContext(ctx).
		Model(&models.SyncError{}).
		Where("status <> ? AND retry_count >= max_retries", models.SyncErrorResolved).
		Count(&counts.Exhausted).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// OutboxStats returns statistics about the outbox
func (s *Store) OutboxStats(ctx context.Context) (*store.OutboxStats, error) {
	stats := &store.OutboxStats{}

	if err := s.db.WithContext(ctx).
		Model(&models.SyncTask{}).
		Where("processed_at IS NULL").
		Count(&stats.Pending).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.SyncTask{}).
		Where("processed_at IS NOT NULL").
		Count(&stats.Processed).Error; err != nil {
		return nil, err
	}

	var oldest models.SyncTask
	if err := s.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at ASC").
		Limit(1).
		Find(&oldest).Error; err != nil {
		return nil, err
	}
	if oldest.ID != 0 {
		stats.OldestPendingTime = &oldest.CreatedAt
	}

	return stats, nil
}
