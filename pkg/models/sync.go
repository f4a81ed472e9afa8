package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventSource names the side that originated an audited change.
type EventSource string

const (
	SourceDocumentStore   EventSource = "document_store"
	SourceRelationalStore EventSource = "relational_store"
	SourceSystem          EventSource = "system"
)

// AuditAction is the kind of mutation an audit entry or sync task describes.
type AuditAction string

const (
	ActionCreate AuditAction = "CREATE"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// SyncDirection is the direction a change flowed between the stores.
type SyncDirection string

const (
	DirectionDocToRel SyncDirection = "doc_to_rel"
	DirectionRelToDoc SyncDirection = "rel_to_doc"
)

// SyncErrorStatus is the lifecycle state of a [SyncError].
type SyncErrorStatus string

const (
	SyncErrorPending  SyncErrorStatus = "pending"
	SyncErrorRetrying SyncErrorStatus = "retrying"
	SyncErrorResolved SyncErrorStatus = "resolved"
)

// Error types recorded on a [SyncError].
const (
	ErrorTypeTransient            = "transient"
	ErrorTypeMappingInconsistency = "mapping_inconsistency"
	ErrorTypeSyncFailed           = "sync_failed"
)

// EntityMapping binds the document id of a group to its relational key.
// Both columns are unique, so the mapping is a bijection.
type EntityMapping struct {
	ExternalID  string    `gorm:"primaryKey;size:128" json:"external_id"`
	InternalID  int64     `gorm:"not null;uniqueIndex" json:"internal_id"`
	EntityType  string    `gorm:"size:64;not null;default:group" json:"entity_type"`
	DisplayName string    `json:"display_name,omitempty"`
	OwnerID     string    `gorm:"size:128" json:"owner_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for the entity mapping model
func (EntityMapping) TableName() string {
	return "entity_mapping"
}

// AuditLogEntry records one applied (or attempted) change. IdempotenceKey is
// unique: inserting an entry whose key already exists is a no-op, which is how
// redelivered events are detected.
type AuditLogEntry struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	EventSource    EventSource    `gorm:"size:32;not null;index:idx_audit_source_time" json:"event_source"`
	Table          string         `gorm:"column:table_name;size:64;not null" json:"table_name"`
	RecordID       string         `gorm:"size:256;not null;index" json:"record_id"`
	Action         AuditAction    `gorm:"size:16;not null" json:"action"`
	OldValue       datatypes.JSON `json:"old_value,omitempty"`
	NewValue       datatypes.JSON `json:"new_value,omitempty"`
	ActorID        *string        `gorm:"size:128" json:"actor_id,omitempty"`
	Success        bool           `gorm:"not null;default:true" json:"success"`
	ErrorMessage   *string        `gorm:"type:text" json:"error_message,omitempty"`
	IdempotenceKey string         `gorm:"size:64;not null;uniqueIndex" json:"idempotence_key"`
	Timestamp      time.Time      `gorm:"not null;index:idx_audit_source_time" json:"timestamp"`
}

// TableName returns the table name for the audit log model
func (AuditLogEntry) TableName() string {
	return "audit_log"
}

// SyncState is the last known content hash of an entity, used to skip writes
// that would not change anything and to detect edits made on both sides.
type SyncState struct {
	EntityType    string        `gorm:"primaryKey;size:64" json:"entity_type"`
	EntityID      string        `gorm:"primaryKey;size:256" json:"entity_id"`
	DataHash      string        `gorm:"size:64" json:"data_hash"`
	LastSyncedAt  time.Time     `json:"last_synced_at"`
	SyncDirection SyncDirection `gorm:"size:16" json:"sync_direction"`
}

// TableName returns the table name for the sync state model
func (SyncState) TableName() string {
	return "sync_state"
}

// SyncError is a failed sync attempt kept for retry and inspection.
// Records are never deleted; exhausted records stay visible.
type SyncError struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType   string          `gorm:"size:64;not null;index" json:"entity_type"`
	EntityID     string          `gorm:"size:256;not null" json:"entity_id"`
	Direction    SyncDirection   `gorm:"size:16;not null" json:"direction"`
	Action       AuditAction     `gorm:"size:16;not null" json:"action"`
	ErrorType    string          `gorm:"size:64;not null" json:"error_type"`
	ErrorMessage string          `gorm:"type:text" json:"error_message"`
	FailedData   datatypes.JSON  `json:"failed_data,omitempty"`
	RetryCount   int             `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int             `gorm:"not null;default:5" json:"max_retries"`
	Status       SyncErrorStatus `gorm:"size:16;not null;index:idx_sync_errors_queue" json:"status"`
	NextRetryAt  time.Time       `gorm:"index:idx_sync_errors_queue" json:"next_retry_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime:false;not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// TableName returns the table name for the sync error model
func (SyncError) TableName() string {
	return "sync_errors"
}

// Exhausted reports whether no automated attempts remain.
func (e *SyncError) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// MarkResolved marks the error as resolved
func (e *SyncError) MarkResolved(at time.Time) {
	e.Status = SyncErrorResolved
	e.ResolvedAt = &at
	e.UpdatedAt = at
}

// MarkRetryFailed records another failed attempt. RetryCount only grows.
func (e *SyncError) MarkRetryFailed(message string, at, next time.Time) {
	e.RetryCount++
	e.Status = SyncErrorRetrying
	e.ErrorMessage = message
	e.UpdatedAt = at
	e.NextRetryAt = next
}

// SyncTask is an outbox row. It is written in the same relational transaction
// as the change it describes and is drained by mirroring to the document store.
type SyncTask struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType  string         `gorm:"size:64;not null" json:"entity_type"`
	EntityID    string         `gorm:"size:256;not null" json:"entity_id"`
	Action      AuditAction    `gorm:"size:16;not null" json:"action"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime:false;not null;index" json:"created_at"`
	ProcessedAt *time.Time     `gorm:"index" json:"processed_at,omitempty"`
}

// TableName returns the table name for the outbox model
func (SyncTask) TableName() string {
	return "sync_outbox"
}

// IsProcessed returns true if the task has been handed off
func (t *SyncTask) IsProcessed() bool {
	return t.ProcessedAt != nil
}

// MarkProcessed marks the task as handed off
func (t *SyncTask) MarkProcessed(at time.Time) {
	t.ProcessedAt = &at
}
