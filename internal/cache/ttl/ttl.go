// Package ttl implements a generic, size-bounded, time-expiring key-value
// store. Expiry is lazy: an expired entry is physically removed the first
// time Get observes it, or during a Cleanup sweep. The size bound is best
// effort — reaching it triggers a cleanup pass before insert, but live
// entries are never evicted to make room.
package ttl

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Stats is a point-in-time view of the cache. Reading it has no side
// effects: expired entries are counted, not removed.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]entry[V]
	maxEntries int
	now        func() time.Time
}

// New creates a cache holding at most maxEntries live entries (best effort).
// maxEntries <= 0 means unbounded.
func New[K comparable, V any](maxEntries int) *Cache[K, V] {
	return &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now(), ttl: ttl}
}

// Get returns the value for key if present and unexpired. An entry found
// expired is removed on the spot and reported as absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if e.expired(now) {
			s.Expired++
		} else {
			s.Active++
		}
	}
	return s
}

func (c *Cache[K, V]) sweepLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
