// Package store defines the persistence contracts of the sync engine.
//
// The engine sits between two stores and talks to each through a narrow interface:
//
//   - [RelationalStore] is the authoritative store. Every mutation the engine makes
//     on it happens inside [RelationalStore.Transaction], and the [Tx] passed to the
//     callback carries the domain rows, the identifier mapping, the audit log, the
//     sync state, the error queue and the outbox, so that a change and its
//     bookkeeping commit together or not at all.
//   - [DocumentStore] is the real-time store clients write to directly. Besides
//     point reads and writes it exposes change subscriptions ([Subscription]) that
//     deliver [ChangeEvent] values at least once, in per-document order.
//
// Implementations live in sub-packages:
//
//   - [github.com/surrealdb/surrealsync/pkg/store/postgres]: GORM on PostgreSQL (and SQLite in tests)
//   - [github.com/surrealdb/surrealsync/pkg/store/surrealdb]: SurrealDB with LIVE queries
//   - [github.com/surrealdb/surrealsync/pkg/store/memdoc]: in-memory document store
//
// Read methods return (nil, nil) when a row or document does not exist, following
// the repository convention used across the stores.
package store

import (
	"context"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
)

// Tx is the set of relational operations available inside a transaction.
// The same methods are available outside a transaction on [RelationalStore],
// where each call commits on its own.
type Tx interface {
	// Identifier mapping
	GetMappingByExternalID(ctx context.Context, externalID string) (*models.EntityMapping, error)
	GetMappingByInternalID(ctx context.Context, internalID int64) (*models.EntityMapping, error)
	CreateMapping(ctx context.Context, mapping *models.EntityMapping) error

	// Users
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	// DeleteUser removes the user and its memberships.
	DeleteUser(ctx context.Context, id string) error

	// Groups
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	// CreateGroup inserts the group and sets group.ID to the allocated key.
	CreateGroup(ctx context.Context, group *models.Group) error
	SaveGroup(ctx context.Context, group *models.Group) error
	// DeleteGroup removes files, tags and memberships of the group, then the
	// group row, then its identifier mapping.
	DeleteGroup(ctx context.Context, id int64) error

	// Memberships
	GetMembership(ctx context.Context, id string) (*models.GroupMembership, error)
	SaveMembership(ctx context.Context, membership *models.GroupMembership) error
	DeleteMembership(ctx context.Context, id string) error

	// Files
	GetFile(ctx context.Context, id string) (*models.File, error)
	SaveFile(ctx context.Context, file *models.File) error
	DeleteFile(ctx context.Context, id string) error

	// Tags
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	SaveTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id string) error

	// InsertAuditEntry inserts entry unless an entry with the same idempotence
	// key exists. It reports whether a row was inserted.
	InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) (bool, error)

	GetSyncState(ctx context.Context, entityType, entityID string) (*models.SyncState, error)
	UpsertSyncState(ctx context.Context, state *models.SyncState) error

	CreateSyncError(ctx context.Context, syncErr *models.SyncError) error
	EnqueueSyncTask(ctx context.Context, task *models.SyncTask) error
}

// SyncErrorQueue is the retry side of the error table.
type SyncErrorQueue interface {
	// ListRetryableSyncErrors returns pending or retrying records that still
	// have attempts left and are due at now, oldest first.
	ListRetryableSyncErrors(ctx context.Context, now time.Time, limit int) ([]*models.SyncError, error)

	// ListFailedSyncs returns unresolved records, newest first.
	ListFailedSyncs(ctx context.Context, limit int) ([]*models.SyncError, error)

	// UpdateSyncError persists status, retry bookkeeping and message of syncErr.
	UpdateSyncError(ctx context.Context, syncErr *models.SyncError) error
}

// Outbox is the drain side of the sync task table.
type Outbox interface {
	// ListUnprocessedSyncTasks returns tasks not yet handed off, oldest first.
	ListUnprocessedSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error)

	// MarkSyncTaskProcessed marks a task as handed off.
	MarkSyncTaskProcessed(ctx context.Context, id uint64, at time.Time) error

	// PurgeProcessedSyncTasks removes tasks handed off before the cutoff.
	PurgeProcessedSyncTasks(ctx context.Context, before time.Time) (int64, error)
}

// SyncReporter aggregates the bookkeeping tables for monitoring.
type SyncReporter interface {
	AuditCounts(ctx context.Context, since time.Time) ([]AuditCount, error)
	SyncErrorCounts(ctx context.Context) (*SyncErrorCounts, error)
	OutboxStats(ctx context.Context) (*OutboxStats, error)
}

// RelationalStore is the authoritative store.
type RelationalStore interface {
	Tx
	SyncErrorQueue
	Outbox
	SyncReporter

	// Transaction runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, including when ctx expires.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// Migrate creates or updates the schema, including stored procedures
	// where the database supports them.
	Migrate(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// AuditCount is the number of audit entries per source and outcome.
type AuditCount struct {
	EventSource models.EventSource
	Success     bool
	Count       int64
}

// SyncErrorCounts summarises the error table.
type SyncErrorCounts struct {
	ByStatus  map[models.SyncErrorStatus]int64
	Exhausted int64
}

// OutboxStats provides statistics about the outbox table
type OutboxStats struct {
	Pending           int64
	Processed         int64
	OldestPendingTime *time.Time
}
