// Package cache provides an injectable TTL cache used by the fx, order and
// quote layers. The clock is a seam so expiry can be tested deterministically.
package cache

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFakeClock returns a fake clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type entry[V any] struct {
	value   V
	expires time.Time // zero means never
}

// TTL is a key/value cache with per-entry expiry. Safe for concurrent use.
type TTL[V any] struct {
	mu      sync.RWMutex
	clock   Clock
	entries map[string]entry[V]
}

// NewTTL creates a cache using the given clock. A nil clock falls back to
// the system clock.
func NewTTL[V any](clock Clock) *TTL[V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TTL[V]{
		clock:   clock,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !e.expires.IsZero() && !c.clock.Now().Before(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A ttl of zero means the entry never
// expires (used for immutable facts like a past day's low).
func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = c.clock.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expires: expires}
	c.mu.Unlock()
}

// Delete removes key from the cache.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries including any not yet swept.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
