package store

import (
	"context"
	"errors"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
)

// ErrReadOnly is returned by write operations on a [ReadOnlyStore] while read-only.
var ErrReadOnly = errors.New("operation denied: store is in read-only mode")

// ReadOnlyStore wraps a RelationalStore and rejects write operations while
// isReadOnly returns true.
//
// The reporting commands open the relational store through this wrapper so that
// inspecting statistics or failed syncs can never mutate state. The read-only
// state is evaluated on every call, so it can be toggled without recreating
// the store. Transaction is allowed but the Tx handed to the callback is
// wrapped as well.
type ReadOnlyStore struct {
	RelationalStore
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store RelationalStore, isReadOnly func() bool) *ReadOnlyStore {
	return &ReadOnlyStore{
		RelationalStore: store,
		isReadOnly:      isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() RelationalStore {
	return r.RelationalStore
}

// checkReadOnly returns an error if the store is in read-only mode
func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

func (r *ReadOnlyStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.RelationalStore.Transaction(ctx, func(tx Tx) error {
		return fn(&readOnlyTx{Tx: tx, check: r.checkReadOnly})
	})
}

func (r *ReadOnlyStore) Migrate(ctx context.Context) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RelationalStore.Migrate(ctx)
}

func (r *ReadOnlyStore) UpdateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RelationalStore.UpdateSyncError(ctx, syncErr)
}

func (r *ReadOnlyStore) MarkSyncTaskProcessed(ctx context.Context, id uint64, at time.Time) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RelationalStore.MarkSyncTaskProcessed(ctx, id, at)
}

func (r *ReadOnlyStore) PurgeProcessedSyncTasks(ctx context.Context, before time.Time) (int64, error) {
	if err := r.checkReadOnly(); err != nil {
		return 0, err
	}
	return r.RelationalStore.PurgeProcessedSyncTasks(ctx, before)
}

func (r *ReadOnlyStore) CreateMapping(ctx context.Context, mapping *models.EntityMapping) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).CreateMapping(ctx, mapping)
}

func (r *ReadOnlyStore) SaveUser(ctx context.Context, user *models.User) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).SaveUser(ctx, user)
}

func (r *ReadOnlyStore) DeleteUser(ctx context.Context, id string) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).DeleteUser(ctx, id)
}

func (r *ReadOnlyStore) CreateGroup(ctx context.Context, group *models.Group) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).CreateGroup(ctx, group)
}

func (r *ReadOnlyStore) SaveGroup(ctx context.Context, group *models.Group) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).SaveGroup(ctx, group)
}

func (r *ReadOnlyStore) DeleteGroup(ctx context.Context, id int64) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).DeleteGroup(ctx, id)
}

func (r *ReadOnlyStore) SaveMembership(ctx context.Context, membership *models.GroupMembership) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).SaveMembership(ctx, membership)
}

func (r *ReadOnlyStore) DeleteMembership(ctx context.Context, id string) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).DeleteMembership(ctx, id)
}

func (r *ReadOnlyStore) SaveFile(ctx context.Context, file *models.File) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).SaveFile(ctx, file)
}

func (r *ReadOnlyStore) DeleteFile(ctx context.Context, id string) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).DeleteFile(ctx, id)
}

func (r *ReadOnlyStore) SaveTag(ctx context.Context, tag *models.Tag) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).SaveTag(ctx, tag)
}

func (r *ReadOnlyStore) DeleteTag(ctx context.Context, id string) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).DeleteTag(ctx, id)
}

func (r *ReadOnlyStore) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) (bool, error) {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).InsertAuditEntry(ctx, entry)
}

func (r *ReadOnlyStore) UpsertSyncState(ctx context.Context, state *models.SyncState) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).UpsertSyncState(ctx, state)
}

func (r *ReadOnlyStore) CreateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).CreateSyncError(ctx, syncErr)
}

func (r *ReadOnlyStore) EnqueueSyncTask(ctx context.Context, task *models.SyncTask) error {
	return (&readOnlyTx{Tx: r.RelationalStore, check: r.checkReadOnly}).EnqueueSyncTask(ctx, task)
}

// readOnlyTx guards the write methods of a Tx.
type readOnlyTx struct {
	Tx
	check func() error
}

func (t *readOnlyTx) CreateMapping(ctx context.Context, mapping *models.EntityMapping) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.CreateMapping(ctx, mapping)
}

func (t *readOnlyTx) SaveUser(ctx context.Context, user *models.User) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.SaveUser(ctx, user)
}

func (t *readOnlyTx) DeleteUser(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.DeleteUser(ctx, id)
}

func (t *readOnlyTx) CreateGroup(ctx context.Context, group *models.Group) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.CreateGroup(ctx, group)
}

func (t *readOnlyTx) SaveGroup(ctx context.Context, group *models.Group) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.SaveGroup(ctx, group)
}

func (t *readOnlyTx) DeleteGroup(ctx context.Context, id int64) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.DeleteGroup(ctx, id)
}

func (t *readOnlyTx) SaveMembership(ctx context.Context, membership *models.GroupMembership) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.SaveMembership(ctx, membership)
}

func (t *readOnlyTx) DeleteMembership(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.DeleteMembership(ctx, id)
}

func (t *readOnlyTx) SaveFile(ctx context.Context, file *models.File) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.SaveFile(ctx, file)
}

func (t *readOnlyTx) DeleteFile(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.DeleteFile(ctx, id)
}

func (t *readOnlyTx) SaveTag(ctx context.Context, tag *models.Tag) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.SaveTag(ctx, tag)
}

func (t *readOnlyTx) DeleteTag(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.DeleteTag(ctx, id)
}

func (t *readOnlyTx) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	return t.Tx.InsertAuditEntry(ctx, entry)
}

func (t *readOnlyTx) UpsertSyncState(ctx context.Context, state *models.SyncState) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.UpsertSyncState(ctx, state)
}

func (t *readOnlyTx) CreateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.CreateSyncError(ctx, syncErr)
}

func (t *readOnlyTx) EnqueueSyncTask(ctx context.Context, task *models.SyncTask) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.Tx.EnqueueSyncTask(ctx, task)
}
