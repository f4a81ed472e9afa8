package postgres

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealsync/pkg/models"
	"gorm.io/gorm/clause"
)

// Identifier mapping operations
func (q *queries) GetMappingByExternalID(ctx context.Context, externalID string) (*models.EntityMapping, error) {
	return first[models.EntityMapping](ctx, q.db, "external_id = ?", externalID)
}

func (q *queries) GetMappingByInternalID(ctx context.Context, internalID int64) (*models.EntityMapping, error) {
	return first[models.EntityMapping](ctx, q.db, "internal_id = ?", internalID)
}

func (q *queries) CreateMapping(ctx context.Context, mapping *models.EntityMapping) error {
	return q.db.WithContext(ctx).Create(mapping).Error
}

// InsertAuditEntry records entry unless its idempotence key was seen before.
func (q *queries) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) (bool, error) {
	if q.procedures {
		var status string
		err := q.db.WithContext(ctx).Raw(
			"SELECT log_audit_event(?, ?, ?, ?, ?::jsonb, ?::jsonb, ?, ?, ?, ?, ?)",
			entry.EventSource, entry.Table, entry.RecordID, entry.Action,
			entry.OldValue, entry.NewValue, entry.ActorID, entry.Success,
			entry.ErrorMessage, entry.IdempotenceKey, entry.Timestamp,
		).Scan(&status).Error
		if err != nil {
			return false, fmt.Errorf("log_audit_event: %w", err)
		}
		return status == auditStatusOK, nil
	}

	res := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotence_key"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Sync state operations
func (q *queries) GetSyncState(ctx context.Context, entityType, entityID string) (*models.SyncState, error) {
	return first[models.SyncState](ctx, q.db, "entity_type = ? AND entity_id = ?", entityType, entityID)
}

func (q *queries) UpsertSyncState(ctx context.Context, state *models.SyncState) error {
	if q.procedures {
		err := q.db.WithContext(ctx).Exec(
			"SELECT update_sync_state(?, ?, ?, ?, ?)",
			state.EntityType, state.EntityID, state.DataHash, state.SyncDirection, state.LastSyncedAt,
		).Error
		if err != nil {
			return fmt.Errorf("update_sync_state: %w", err)
		}
		return nil
	}

	return q.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data_hash", "last_synced_at", "sync_direction"}),
		}).
		Create(state).Error
}

func (q *queries) CreateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	return q.db.WithContext(ctx).Create(syncErr).Error
}

func (q *queries) EnqueueSyncTask(ctx context.Context, task *models.SyncTask) error {
	return q.db.WithContext(ctx).Create(task).Error
}
