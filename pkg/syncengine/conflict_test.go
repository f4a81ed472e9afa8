package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(relAt, docAt time.Time) (Candidate, Candidate) {
	rel := Candidate{Side: SideRelational, Fields: map[string]any{"name": "Study Group v2"}, UpdatedAt: relAt}
	doc := Candidate{Side: SideDocument, Fields: map[string]any{"name": "SG Renamed"}, UpdatedAt: docAt}
	return rel, doc
}

func TestConflictResolver_LastWriteWins(t *testing.T) {
	r, err := NewConflictResolver("", "")
	require.NoError(t, err)
	assert.Equal(t, PolicyLastWriteWins, r.Policy())

	rel, doc := candidates(t2, t3)
	res, err := r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideDocument, res.Winner)
	assert.Equal(t, ReasonLaterWrite, res.Reason)
	assert.Equal(t, "SG Renamed", res.WinnerCandidate().Fields["name"])

	rel, doc = candidates(t3, t2)
	res, err = r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideRelational, res.Winner)
}

func TestConflictResolver_OrderIndependent(t *testing.T) {
	r, err := NewConflictResolver(PolicyLastWriteWins, SideRelational)
	require.NoError(t, err)

	for _, at := range [][2]time.Time{{t2, t3}, {t3, t2}, {t2, t2}} {
		rel, doc := candidates(at[0], at[1])
		ab, err := r.Resolve(rel, doc)
		require.NoError(t, err)
		ba, err := r.Resolve(doc, rel)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
	}
}

func TestConflictResolver_TieBreak(t *testing.T) {
	rel, doc := candidates(t2, t2)

	r, err := NewConflictResolver(PolicyLastWriteWins, SideRelational)
	require.NoError(t, err)
	res, err := r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideRelational, res.Winner)
	assert.Equal(t, ReasonTieBreak, res.Reason)

	r, err = NewConflictResolver(PolicyLastWriteWins, SideDocument)
	require.NoError(t, err)
	res, err = r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideDocument, res.Winner)
}

func TestConflictResolver_CreatedAtFallback(t *testing.T) {
	r, err := NewConflictResolver(PolicyLastWriteWins, SideRelational)
	require.NoError(t, err)

	rel := Candidate{Side: SideRelational, CreatedAt: t2}
	doc := Candidate{Side: SideDocument, CreatedAt: t1}
	res, err := r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideRelational, res.Winner)
}

func TestConflictResolver_FixedPolicies(t *testing.T) {
	rel, doc := candidates(t2, t3)

	r, err := NewConflictResolver(PolicyRelationalWins, SideDocument)
	require.NoError(t, err)
	res, err := r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideRelational, res.Winner)
	assert.Equal(t, ReasonPolicy, res.Reason)

	r, err = NewConflictResolver(PolicyDocumentWins, SideRelational)
	require.NoError(t, err)
	rel, doc = candidates(t3, t2)
	res, err = r.Resolve(rel, doc)
	require.NoError(t, err)
	assert.Equal(t, SideDocument, res.Winner)
}

func TestConflictResolver_Invalid(t *testing.T) {
	_, err := NewConflictResolver("first_write_wins", SideRelational)
	assert.Error(t, err)
	_, err = NewConflictResolver(PolicyLastWriteWins, "left")
	assert.Error(t, err)

	r, err := NewConflictResolver(PolicyLastWriteWins, SideRelational)
	require.NoError(t, err)
	_, err = r.Resolve(Candidate{Side: SideDocument}, Candidate{Side: SideDocument})
	assert.Error(t, err)
}
