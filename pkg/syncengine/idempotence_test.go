package syncengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

func TestIdempotenceKey(t *testing.T) {
	k1 := IdempotenceKey(models.SourceDocumentStore, "groups", "abc123", models.ActionCreate, t1, "h1")
	k2 := IdempotenceKey(models.SourceDocumentStore, "groups", "abc123", models.ActionCreate, t1.In(t1.Location()), "h1")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	for _, other := range []string{
		IdempotenceKey(models.SourceRelationalStore, "groups", "abc123", models.ActionCreate, t1, "h1"),
		IdempotenceKey(models.SourceDocumentStore, "files", "abc123", models.ActionCreate, t1, "h1"),
		IdempotenceKey(models.SourceDocumentStore, "groups", "abc124", models.ActionCreate, t1, "h1"),
		IdempotenceKey(models.SourceDocumentStore, "groups", "abc123", models.ActionUpdate, t1, "h1"),
		IdempotenceKey(models.SourceDocumentStore, "groups", "abc123", models.ActionCreate, t2, "h1"),
		IdempotenceKey(models.SourceDocumentStore, "groups", "abc123", models.ActionCreate, t1, "h2"),
	} {
		assert.NotEqual(t, k1, other)
	}

	// Field boundaries are not ambiguous.
	assert.NotEqual(t,
		IdempotenceKey(models.SourceDocumentStore, "ab", "c", models.ActionCreate, t1, ""),
		IdempotenceKey(models.SourceDocumentStore, "a", "bc", models.ActionCreate, t1, ""),
	)
}

func TestAuditRecorder_Duplicate(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ev := AuditEvent{
		Source:   models.SourceDocumentStore,
		Table:    "groups",
		RecordID: "abc123",
		Action:   models.ActionCreate,
		New:      map[string]any{"name": "Study Group"},
		ActorID:  "user-1",
		At:       t1,
	}

	var first, second AuditStatus
	require.NoError(t, f.rel.Transaction(ctx, func(tx store.Tx) error {
		var err error
		first, err = f.engine.audit.Log(ctx, tx, ev)
		return err
	}))
	require.NoError(t, f.rel.Transaction(ctx, func(tx store.Tx) error {
		var err error
		second, err = f.engine.audit.Log(ctx, tx, ev)
		return err
	}))

	assert.Equal(t, AuditOK, first)
	assert.Equal(t, AuditDuplicate, second)
	assert.Equal(t, "duplicate", second.String())

	entries := f.auditEntries(t, "abc123")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "user-1", *entries[0].ActorID)
	assert.Nil(t, entries[0].OldValue)
	assert.Equal(t, "Study Group", decodeJSON(t, entries[0].NewValue)["name"])
}

func TestAuditRecorder_FailedAttemptsDoNotShadowKey(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ev := AuditEvent{
		Source:   models.SourceDocumentStore,
		Table:    "users",
		RecordID: "u1",
		Action:   models.ActionUpdate,
		At:       t1,
	}
	failed := ev
	failed.Err = errors.New("boom")

	for _, e := range []AuditEvent{failed, failed, ev} {
		e := e
		require.NoError(t, f.rel.Transaction(ctx, func(tx store.Tx) error {
			status, err := f.engine.audit.Log(ctx, tx, e)
			assert.Equal(t, AuditOK, status)
			return err
		}))
		f.clock.Advance(1)
	}

	entries := f.auditEntries(t, "u1")
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Success)
	require.NotNil(t, entries[0].ErrorMessage)
	assert.Equal(t, "boom", *entries[0].ErrorMessage)
	assert.True(t, entries[2].Success)
	assert.Equal(t, IdempotenceKey(ev.Source, ev.Table, ev.RecordID, ev.Action, ev.At, ev.Hash), entries[2].IdempotenceKey)
}
