package syncengine

import (
	"sync"
	"time"
)

// DefaultGuardTTL is how long a guard entry lives without being released.
const DefaultGuardTTL = 10 * time.Second

// sweepThreshold is the entry count above which expired entries are purged on write.
const sweepThreshold = 1024

// GuardKey returns the guard key of a document.
func GuardKey(collection, id string) string {
	return collection + "-" + id
}

// Guard tracks documents that are being synced so that the change a sync
// causes on the other store is not synced back.
//
// Entries expire after the TTL even when never released. The guard is safe for
// concurrent use; TryAcquire is an atomic check-and-set.
type Guard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewGuard returns a guard whose entries expire after ttl. now may be nil.
func NewGuard(ttl time.Duration, now func() time.Time) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

// TTL returns the entry lifetime.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// TryAcquire marks key unless it is already marked, and reports whether it did.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.entries[key]; ok && now.Before(expiry) {
		return false
	}
	g.set(key, now)
	return true
}

// Acquire marks key, refreshing its expiry if already marked.
func (g *Guard) Acquire(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set(key, g.now())
}

// InProgress reports whether key is marked and not expired.
func (g *Guard) InProgress(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, ok := g.entries[key]
	if !ok {
		return false
	}
	if !g.now().Before(expiry) {
		delete(g.entries, key)
		return false
	}
	return true
}

// Release unmarks key.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}

// Len returns the number of live entries.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep(g.now())
	return len(g.entries)
}

// Reset drops every entry.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = make(map[string]time.Time)
}

func (g *Guard) set(key string, now time.Time) {
	if len(g.entries) >= sweepThreshold {
		g.sweep(now)
	}
	g.entries[key] = now.Add(g.ttl)
}

func (g *Guard) sweep(now time.Time) {
	for key, expiry := range g.entries {
		if !now.Before(expiry) {
			delete(g.entries, key)
		}
	}
}
