package syncengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/store/memdoc"
	"github.com/surrealdb/surrealsync/pkg/synctesting"
)

const eventually = 5 * time.Second

func TestEngine_InitializeAndShutdown(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.docs.FailSubscribe(CollectionTags, errors.New("permission denied"))
	f.docs.FailClose(CollectionFiles, errors.New("already gone"))

	n, err := f.engine.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, f.docs.Subscribers(CollectionGroups))
	assert.Equal(t, 0, f.docs.Subscribers(CollectionTags))

	_, err = f.engine.Initialize(ctx)
	assert.Error(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, eventually)
	defer cancel()
	f.engine.Shutdown(shutdownCtx)
	assert.Equal(t, 0, f.engine.Listeners())
	assert.Equal(t, 0, f.docs.Subscribers(CollectionGroups))

	// A second shutdown is harmless.
	f.engine.Shutdown(shutdownCtx)
}

func TestEngine_InitializeFailsWithoutSubscriptions(t *testing.T) {
	f := newFixture(t, Options{})
	for _, c := range []string{CollectionUsers, CollectionGroups, CollectionMemberships, CollectionFiles, CollectionTags} {
		f.docs.FailSubscribe(c, errors.New("offline"))
	}
	n, err := f.engine.Initialize(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestEngine_DocumentChangesReachRelationalStore(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.engine.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, f.docs.Set(ctx, synctesting.Ref(CollectionGroups, "abc123"), groupDoc("abc123", "Study Group", t1).Fields))
	require.NoError(t, f.docs.Set(ctx, synctesting.Ref(CollectionUsers, "u1"), map[string]any{
		"email":       "a@example.com",
		"displayName": "Ada",
		"createdAt":   t1,
		"updatedAt":   t1,
	}))

	require.Eventually(t, func() bool {
		u, err := f.rel.GetUser(ctx, "u1")
		if err != nil || u == nil {
			return false
		}
		_, ok, err := f.engine.Mappings().Lookup(ctx, f.rel, "abc123")
		return err == nil && ok
	}, eventually, 10*time.Millisecond)

	// Deleting the document deletes the row.
	require.NoError(t, f.docs.Delete(ctx, synctesting.Ref(CollectionUsers, "u1")))
	require.Eventually(t, func() bool {
		u, err := f.rel.GetUser(ctx, "u1")
		return err == nil && u == nil
	}, eventually, 10*time.Millisecond)
}

func TestEngine_NoSyncLoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, Options{Registerer: reg})
	ctx := context.Background()

	_, err := f.engine.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, f.writer.SaveUser(ctx, &models.User{ID: "u1", Email: "a@example.com"}))
	ext, err := f.writer.CreateGroup(ctx, &models.Group{Name: "Study Group", OwnerID: "u1"})
	require.NoError(t, err)

	// Both echoes arrive and release their guard entries.
	require.Eventually(t, func() bool {
		return f.engine.Guard().Len() == 0
	}, eventually, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.engine.metrics.events.WithLabelValues(CollectionUsers, "echo")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.engine.metrics.events.WithLabelValues(CollectionGroups, "echo")))
	assert.Zero(t, f.count(t, &models.AuditLogEntry{}, "event_source = ?", models.SourceDocumentStore))
	assert.Equal(t, int64(1), f.count(t, &models.Group{}, ""))

	state, err := f.rel.GetSyncState(ctx, "groups", ext)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionRelToDoc, state.SyncDirection)
}

func TestEngine_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.engine.Initialize(ctx)
	require.NoError(t, err)

	ref := synctesting.Ref(CollectionTags, "t1")
	require.NoError(t, f.docs.Set(ctx, ref, map[string]any{"groupId": "g1", "name": "exam", "color": "red", "createdAt": t1, "updatedAt": t1}))
	require.Eventually(t, func() bool {
		tag, err := f.rel.GetTag(ctx, "t1")
		return err == nil && tag != nil
	}, eventually, 10*time.Millisecond)

	doc, err := f.docs.Get(ctx, ref)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		f.docs.Redeliver(store.Created{Document: *doc})
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.engine.metrics.events.WithLabelValues(CollectionTags, "duplicate")) == 3
	}, eventually, 10*time.Millisecond)
	assert.Equal(t, int64(1), f.count(t, &models.Tag{}, ""))
	assert.Equal(t, int64(1), f.count(t, &models.Group{}, ""))
	assert.Len(t, f.auditEntries(t, "t1"), 1)
}

func TestEngine_New(t *testing.T) {
	rel := synctesting.NewRelationalStore(t)

	_, err := New(nil, nil, Options{})
	assert.Error(t, err)

	_, err = New(rel, memdoc.New(), Options{ConflictPolicy: "merge"})
	assert.Error(t, err)

	h := DefaultHandlers(&MappingResolver{now: time.Now}, time.Now)
	_, err = New(rel, memdoc.New(), Options{Handlers: append(h, h[0])})
	assert.Error(t, err)
}

func TestEngine_Statistics(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.writer.SaveUser(ctx, &models.User{ID: "u1"}))
	f.docs.FailWrites(errors.New("down"))
	require.NoError(t, f.writer.SaveUser(ctx, &models.User{ID: "u2"}))
	f.docs.FailWrites(nil)
	require.Equal(t, OutcomeApplied, f.deliver(t, store.Created{Document: groupDoc("abc123", "Study Group", t1)}))

	stats, err := f.engine.GetSyncStatistics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Days)
	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.FailedEvents)
	assert.Equal(t, int64(1), stats.SyncErrors[models.SyncErrorPending])
	assert.Zero(t, stats.Outbox.Pending)

	bySource := make(map[models.EventSource]EventCount)
	for _, ec := range stats.Events {
		bySource[ec.Source] = ec
	}
	assert.Equal(t, int64(2), bySource[models.SourceRelationalStore].Successful)
	assert.Equal(t, int64(1), bySource[models.SourceRelationalStore].Failed)
	assert.Equal(t, int64(1), bySource[models.SourceDocumentStore].Successful)

	failed, err := f.engine.GetFailedSyncs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "u2", failed[0].EntityID)
}
