package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/synctesting"
	"gorm.io/datatypes"
)

var t0 = synctesting.T0

func TestStore_TransactionRollback(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx store.Tx) error {
		g := &models.Group{Name: "Study Group", CreatedAt: t0, UpdatedAt: t0}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return err
		}
		if err := tx.CreateMapping(ctx, &models.EntityMapping{ExternalID: "abc123", InternalID: g.ID, EntityType: "group"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := s.GetMappingByExternalID(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, m)

	var groups int64
	require.NoError(t, s.DB().Model(&models.Group{}).Count(&groups).Error)
	assert.Zero(t, groups)
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	u, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	g, err := s.GetGroup(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, g)

	state, err := s.GetSyncState(ctx, "users", "nobody")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_SaveIsUpsert(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "a@example.com", CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "b@example.com", CreatedAt: t0, UpdatedAt: t0.Add(time.Hour)}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "b@example.com", u.Email)
	assert.True(t, u.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestStore_DeleteGroupCascades(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	g := &models.Group{Name: "Study Group", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.CreateGroup(ctx, g))
	require.NoError(t, s.CreateMapping(ctx, &models.EntityMapping{ExternalID: "abc123", InternalID: g.ID, EntityType: "group"}))
	require.NoError(t, s.SaveMembership(ctx, &models.GroupMembership{ID: "m1", GroupID: g.ID, UserID: "u1", Role: models.RoleMember}))
	require.NoError(t, s.SaveFile(ctx, &models.File{ID: "f1", GroupID: g.ID, Name: "notes.pdf"}))
	require.NoError(t, s.SaveTag(ctx, &models.Tag{ID: "t1", GroupID: g.ID, Name: "exam"}))

	require.NoError(t, s.DeleteGroup(ctx, g.ID))

	m, err := s.GetMembership(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m)
	f, err := s.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Nil(t, f)
	tag, err := s.GetTag(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, tag)
	mapping, err := s.GetMappingByInternalID(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestStore_DeleteUserRemovesMemberships(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1"}))
	require.NoError(t, s.SaveMembership(ctx, &models.GroupMembership{ID: "m1", GroupID: 1, UserID: "u1", Role: models.RoleMember}))
	require.NoError(t, s.DeleteUser(ctx, "u1"))

	m, err := s.GetMembership(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStore_InsertAuditEntryIsIdempotent(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	entry := func() *models.AuditLogEntry {
		return &models.AuditLogEntry{
			EventSource:    models.SourceDocumentStore,
			Table:          "groups",
			RecordID:       "abc123",
			Action:         models.ActionCreate,
			NewValue:       datatypes.JSON(`{"name":"Study Group"}`),
			Success:        true,
			IdempotenceKey: "k1",
			Timestamp:      t0,
		}
	}

	inserted, err := s.InsertAuditEntry(ctx, entry())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertAuditEntry(ctx, entry())
	require.NoError(t, err)
	assert.False(t, inserted)

	var n int64
	require.NoError(t, s.DB().Model(&models.AuditLogEntry{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestStore_UpsertSyncState(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSyncState(ctx, &models.SyncState{
		EntityType: "groups", EntityID: "abc123", DataHash: "h1",
		LastSyncedAt: t0, SyncDirection: models.DirectionDocToRel,
	}))
	require.NoError(t, s.UpsertSyncState(ctx, &models.SyncState{
		EntityType: "groups", EntityID: "abc123", DataHash: "h2",
		LastSyncedAt: t0.Add(time.Minute), SyncDirection: models.DirectionRelToDoc,
	}))

	state, err := s.GetSyncState(ctx, "groups", "abc123")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "h2", state.DataHash)
	assert.Equal(t, models.DirectionRelToDoc, state.SyncDirection)
	assert.True(t, state.LastSyncedAt.Equal(t0.Add(time.Minute)))
}

func newSyncError(id string, created time.Time) *models.SyncError {
	return &models.SyncError{
		EntityType:  "users",
		EntityID:    id,
		Direction:   models.DirectionRelToDoc,
		Action:      models.ActionUpdate,
		ErrorType:   "document_store",
		MaxRetries:  3,
		Status:      models.SyncErrorPending,
		NextRetryAt: created,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestStore_RetryQueue(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	later := newSyncError("later", t0.Add(time.Minute))
	first := newSyncError("first", t0)
	notDue := newSyncError("not-due", t0)
	notDue.NextRetryAt = t0.Add(time.Hour)
	exhausted := newSyncError("exhausted", t0)
	exhausted.RetryCount = 3
	resolved := newSyncError("resolved", t0)
	resolved.Status = models.SyncErrorResolved
	for _, rec := range []*models.SyncError{later, first, notDue, exhausted, resolved} {
		require.NoError(t, s.CreateSyncError(ctx, rec))
	}

	due, err := s.ListRetryableSyncErrors(ctx, t0.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "first", due[0].EntityID)
	assert.Equal(t, "later", due[1].EntityID)

	due, err = s.ListRetryableSyncErrors(ctx, t0.Add(10*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	failed, err := s.ListFailedSyncs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 4)
	assert.Equal(t, "later", failed[0].EntityID)

	counts, err := s.SyncErrorCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.ByStatus[models.SyncErrorPending])
	assert.Equal(t, int64(1), counts.ByStatus[models.SyncErrorResolved])
	assert.Equal(t, int64(1), counts.Exhausted)
}

func TestStore_UpdateSyncErrorIgnoresStaleCopies(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	rec := newSyncError("u1", t0)
	require.NoError(t, s.CreateSyncError(ctx, rec))

	current := *rec
	current.RetryCount = 2
	current.Status = models.SyncErrorRetrying
	require.NoError(t, s.UpdateSyncError(ctx, &current))

	stale := *rec
	stale.RetryCount = 1
	stale.Status = models.SyncErrorRetrying
	stale.ErrorMessage = "stale"
	require.NoError(t, s.UpdateSyncError(ctx, &stale))

	var got models.SyncError
	require.NoError(t, s.DB().First(&got, rec.ID).Error)
	assert.Equal(t, 2, got.RetryCount)
	assert.NotEqual(t, "stale", got.ErrorMessage)
}

func TestStore_Outbox(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.EnqueueSyncTask(ctx, &models.SyncTask{
			EntityType: "users",
			EntityID:   id,
			Action:     models.ActionCreate,
			CreatedAt:  t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	tasks, err := s.ListUnprocessedSyncTasks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].EntityID)

	require.NoError(t, s.MarkSyncTaskProcessed(ctx, tasks[0].ID, t0.Add(time.Hour)))

	stats, err := s.OutboxStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processed)
	require.NotNil(t, stats.OldestPendingTime)
	assert.True(t, stats.OldestPendingTime.Equal(t0.Add(time.Minute)))

	purged, err := s.PurgeProcessedSyncTasks(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestStore_AuditCounts(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()

	add := func(key string, source models.EventSource, success bool, at time.Time) {
		_, err := s.InsertAuditEntry(ctx, &models.AuditLogEntry{
			EventSource: source, Table: "users", RecordID: "u1", Action: models.ActionUpdate,
			Success: success, IdempotenceKey: key, Timestamp: at,
		})
		require.NoError(t, err)
	}
	add("old", models.SourceDocumentStore, true, t0.Add(-48*time.Hour))
	add("k1", models.SourceDocumentStore, true, t0)
	add("k2", models.SourceDocumentStore, false, t0)
	add("k3", models.SourceRelationalStore, true, t0)

	counts, err := s.AuditCounts(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)

	got := make(map[models.EventSource]map[bool]int64)
	for _, c := range counts {
		if got[c.EventSource] == nil {
			got[c.EventSource] = make(map[bool]int64)
		}
		got[c.EventSource][c.Success] = c.Count
	}
	assert.Equal(t, int64(1), got[models.SourceDocumentStore][true])
	assert.Equal(t, int64(1), got[models.SourceDocumentStore][false])
	assert.Equal(t, int64(1), got[models.SourceRelationalStore][true])
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	s := synctesting.NewRelationalStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1"}))

	readOnly := true
	ro := store.NewReadOnlyStore(s, func() bool { return readOnly })

	assert.ErrorIs(t, ro.SaveUser(ctx, &models.User{ID: "u2"}), store.ErrReadOnly)
	err := ro.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.NotNil(t, u)
		return tx.DeleteUser(ctx, "u1")
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)

	readOnly = false
	require.NoError(t, ro.SaveUser(ctx, &models.User{ID: "u2"}))
	u, err := s.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.NotNil(t, u)
}
