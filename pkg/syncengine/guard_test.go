package syncengine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealsync/pkg/synctesting"
)

func TestGuard_TryAcquire(t *testing.T) {
	clock := synctesting.NewClock(synctesting.T0)
	g := NewGuard(10*time.Second, clock.Now)
	key := GuardKey("groups", "abc123")

	assert.Equal(t, "groups-abc123", key)
	assert.True(t, g.TryAcquire(key))
	assert.False(t, g.TryAcquire(key), "held key must not be acquired twice")
	assert.True(t, g.InProgress(key))

	g.Release(key)
	assert.False(t, g.InProgress(key))
	assert.True(t, g.TryAcquire(key))
}

func TestGuard_Expiry(t *testing.T) {
	clock := synctesting.NewClock(synctesting.T0)
	g := NewGuard(10*time.Second, clock.Now)
	key := GuardKey("users", "u1")

	g.Acquire(key)
	clock.Advance(9 * time.Second)
	assert.True(t, g.InProgress(key))

	clock.Advance(time.Second)
	assert.False(t, g.InProgress(key), "entry must expire after the TTL")
	assert.True(t, g.TryAcquire(key))
	assert.Equal(t, 1, g.Len())
}

func TestGuard_AcquireRefreshes(t *testing.T) {
	clock := synctesting.NewClock(synctesting.T0)
	g := NewGuard(10*time.Second, clock.Now)

	g.Acquire("k")
	clock.Advance(8 * time.Second)
	g.Acquire("k")
	clock.Advance(8 * time.Second)
	assert.True(t, g.InProgress("k"))
}

func TestGuard_LenAndReset(t *testing.T) {
	clock := synctesting.NewClock(synctesting.T0)
	g := NewGuard(0, clock.Now)
	assert.Equal(t, DefaultGuardTTL, g.TTL())

	g.Acquire("a")
	clock.Advance(5 * time.Second)
	g.Acquire("b")
	assert.Equal(t, 2, g.Len())

	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, g.Len())

	g.Reset()
	assert.Equal(t, 0, g.Len())
}

func TestGuard_ConcurrentTryAcquire(t *testing.T) {
	g := NewGuard(time.Minute, nil)

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("files-f1") {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired.Load())
}
