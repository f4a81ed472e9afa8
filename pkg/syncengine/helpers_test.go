package syncengine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/store/memdoc"
	"github.com/surrealdb/surrealsync/pkg/store/postgres"
	"github.com/surrealdb/surrealsync/pkg/synctesting"
)

var (
	t1 = synctesting.T0
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
)

type fixture struct {
	rel    *postgres.Store
	docs   *memdoc.Store
	clock  *synctesting.Clock
	engine *Engine
	writer *Writer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		rel:   synctesting.NewRelationalStore(t),
		docs:  memdoc.New(),
		clock: synctesting.NewClock(t3.Add(time.Hour)),
	}
	if opts.Now == nil {
		opts.Now = f.clock.Now
	}
	engine, err := New(f.rel, f.docs, opts)
	require.NoError(t, err)
	f.engine = engine
	f.writer = NewWriter(engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})
	return f
}

func (f *fixture) handler(t *testing.T, collection string) EntitySyncHandler {
	t.Helper()
	h, ok := f.engine.byCollection[collection]
	require.True(t, ok, "no handler for %s", collection)
	return h
}

// deliver runs an event through the listener path as a subscription would.
func (f *fixture) deliver(t *testing.T, ev store.ChangeEvent) Outcome {
	t.Helper()
	return f.engine.processEvent(context.Background(), f.handler(t, ev.Ref().Collection), ev)
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	db := f.rel.DB().Model(model)
	if query != "" {
		db = db.Where(query, args...)
	}
	require.NoError(t, db.Count(&n).Error)
	return n
}

func (f *fixture) auditEntries(t *testing.T, recordID string) []models.AuditLogEntry {
	t.Helper()
	var entries []models.AuditLogEntry
	require.NoError(t, f.rel.DB().Where("record_id = ?", recordID).Order("id").Find(&entries).Error)
	return entries
}

func decodeJSON(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func groupDoc(id, name string, updatedAt time.Time) store.Document {
	return synctesting.Doc(CollectionGroups, id, map[string]any{
		"name":        name,
		"description": "",
		"ownerId":     "user-1",
		"createdAt":   t1,
		"updatedAt":   updatedAt,
	})
}
