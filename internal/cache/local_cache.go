package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FetchFunc loads a value from the source of truth on a cache miss.
type FetchFunc func(ctx context.Context) (interface{}, error)

// LocalCache is the per-process TTL cache. Expired entries are treated as
// absent and purged lazily on the next access to their key; there is no
// background sweeper. GetOrFetch is the stampede-prevention primitive: all
// callers for the same key contend on a per-key gate so the backing store
// sees at most one concurrent fetch per key.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	flightMu sync.Mutex
	flights  map[string]*flight
}

type entry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// flight is the single-flight gate for one key. It exists only while at
// least one caller holds or waits on it, so the gate map is bounded by the
// number of distinct in-flight keys.
type flight struct {
	mu      sync.Mutex
	waiters int
}

// New creates an empty LocalCache.
func New() *LocalCache {
	return &LocalCache{
		entries: make(map[string]*entry),
		flights: make(map[string]*flight),
	}
}

// Get returns the cached value for key. An expired entry is purged and
// reported as absent.
func (c *LocalCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	if !e.expired(time.Now()) {
		v := e.value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()

	// Purge the expired entry under the write lock. Another goroutine may
	// have replaced it in the meantime, so only remove the same entry.
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// GetOrFetch returns the cached value for key, or runs fetch to populate it.
// Concurrent callers for the same key block on a per-key gate; the winner
// executes fetch and populates the cache, and each waiter re-checks the
// cache when the gate releases instead of fetching again.
//
// If fetch fails the gate still releases and the entry stays unset: each
// waiter present at release time then attempts its own fetch. A failing
// source therefore costs at most one fetch per blocked caller, never an
// unbounded retry loop, and the error a caller sees is from its own attempt.
func (c *LocalCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	f := c.acquireFlight(key)
	defer c.releaseFlight(key, f)

	f.mu.Lock()
	defer f.mu.Unlock()

	// The winner may have populated the entry while we waited on the gate.
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Set stores value under key. A non-positive ttl stores the entry without
// an expiry.
func (c *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Remove deletes the entry for key, if present.
func (c *LocalCache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// RemoveByPrefix deletes every entry whose key starts with prefix.
func (c *LocalCache) RemoveByPrefix(prefix string) {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *LocalCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Len returns the number of physically present entries, expired or not.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *LocalCache) acquireFlight(key string) *flight {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		f = &flight{}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *LocalCache) releaseFlight(key string, f *flight) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	f.waiters--
	if f.waiters == 0 {
		delete(c.flights, key)
	}
}
