package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

func TestMappingResolver_ResolveCreatesGroupAndMapping(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	r := f.engine.Mappings()

	var id int64
	require.NoError(t, f.rel.Transaction(ctx, func(tx store.Tx) error {
		var created bool
		var err error
		id, created, err = r.Resolve(ctx, tx, "abc123", MappingSeed{Name: "Study Group", OwnerID: "user-1"})
		assert.True(t, created)
		return err
	}))

	g, err := f.rel.GetGroup(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Study Group", g.Name)

	m, err := f.rel.GetMappingByExternalID(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id, m.InternalID)
	assert.Equal(t, "user-1", m.OwnerID)

	again, created, err := r.Resolve(ctx, f.rel, "abc123", MappingSeed{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	ext, err := r.Reverse(ctx, f.rel, id)
	require.NoError(t, err)
	assert.Equal(t, "abc123", ext)
}

func TestMappingResolver_RollbackRemovesBoth(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	err := f.rel.Transaction(ctx, func(tx store.Tx) error {
		if _, _, err := f.engine.Mappings().Resolve(ctx, tx, "abc123", MappingSeed{}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Zero(t, f.count(t, &models.Group{}, ""))
	assert.Zero(t, f.count(t, &models.EntityMapping{}, ""))
}

func TestMappingResolver_ReverseMissing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.engine.Mappings().Reverse(context.Background(), f.rel, 99)
	require.ErrorIs(t, err, ErrMappingNotFound)
	assert.Equal(t, models.ErrorTypeMappingInconsistency, classify(err))
}

func TestMappingResolver_AssignIsBijective(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	seen := make(map[string]int64)
	for i := 0; i < 5; i++ {
		g := &models.Group{Name: "Group"}
		var ext string
		require.NoError(t, f.rel.Transaction(ctx, func(tx store.Tx) error {
			var err error
			ext, err = f.engine.Mappings().Assign(ctx, tx, g)
			return err
		}))
		require.NotZero(t, g.ID)
		require.NotContains(t, seen, ext)
		seen[ext] = g.ID
	}

	for ext, id := range seen {
		got, ok, err := f.engine.Mappings().Lookup(ctx, f.rel, ext)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, got)

		back, err := f.engine.Mappings().Reverse(ctx, f.rel, id)
		require.NoError(t, err)
		assert.Equal(t, ext, back)
	}
}

func TestMappingResolver_EmptyID(t *testing.T) {
	f := newFixture(t, Options{})
	_, _, err := f.engine.Mappings().Resolve(context.Background(), f.rel, "", MappingSeed{})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
