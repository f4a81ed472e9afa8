// Package synctesting provides helpers for tests of the sync engine and its stores.
//
// [NewRelationalStore] opens the GORM relational store on a private in-memory
// SQLite database and migrates it, so tests exercise the same queries as
// production without a PostgreSQL server. [Clock] is a settable clock for the
// engine, the guard and the retry queue.
//
//	rel := synctesting.NewRelationalStore(t)
//	clock := synctesting.NewClock(synctesting.T0)
//	engine, err := syncengine.New(rel, memdoc.New(), syncengine.Options{Now: clock.Now})
package synctesting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/store/postgres"
	"gorm.io/driver/sqlite"
)

// T0 is a fixed instant tests start their clocks at.
var T0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// NewRelationalStore returns a migrated store backed by an in-memory SQLite
// database unique to t. The store is closed when the test ends.
func NewRelationalStore(t testing.TB) *postgres.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", databaseName(t.Name()))
	rel, err := postgres.OpenDialector(sqlite.Open(dsn), postgres.Options{
		MaxOpenConns: 1,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err, "Failed to open SQLite store")
	t.Cleanup(func() {
		_ = rel.Close()
	})

	require.NoError(t, rel.Migrate(context.Background()), "Failed to migrate SQLite store")
	return rel
}

func databaseName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// Clock is a manually advanced clock. It is safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Ref builds a document ref.
func Ref(collection, id string) store.DocumentRef {
	return store.DocumentRef{Collection: collection, ID: id}
}

// Doc builds a document.
func Doc(collection, id string, fields map[string]any) store.Document {
	return store.Document{DocumentRef: Ref(collection, id), Fields: fields}
}
