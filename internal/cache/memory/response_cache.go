// Package memory implements domain cache interfaces in process memory.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// DefaultTTL is the freshness window for upstream responses.
const DefaultTTL = 30 * time.Second

// ResponseCache implements domain.ResponseCache with a map guarded by a
// RWMutex. Expired entries are dropped lazily on read and in bulk by Sweep.
//
// The lock is never held across a fetch, so two callers missing the same key
// concurrently will both fetch and the later write wins.
type ResponseCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]domain.CacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithMaxEntries bounds the number of stored entries. When the cache is full
// the entry with the oldest FetchedAt is evicted on insert. Zero means
// unbounded.
func WithMaxEntries(n int) Option {
	return func(c *ResponseCache) { c.maxEntries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// NewResponseCache creates a ResponseCache. A non-positive ttl selects
// DefaultTTL.
func NewResponseCache(ttl time.Duration, opts ...Option) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ResponseCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]domain.CacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached payload for key while it is younger than the
// TTL, otherwise it calls fetch, stores the result and returns it.
func (c *ResponseCache) GetOrFetch(ctx context.Context, key string, fetch domain.FetchFunc) ([]byte, error) {
	if payload, ok := c.get(key); ok {
		c.hits.Add(1)
		return payload, nil
	}
	c.misses.Add(1)

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.set(key, payload)
	return payload, nil
}

func (c *ResponseCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(entry, c.now()) {
		c.mu.Lock()
		// Re-check: another caller may have refreshed it meanwhile.
		if cur, ok := c.entries[key]; ok && c.expired(cur, c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.Payload, true
}

func (c *ResponseCache) set(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = domain.CacheEntry{
		Key:       key,
		Payload:   payload,
		FetchedAt: c.now(),
	}
}

func (c *ResponseCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.FetchedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.FetchedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

func (c *ResponseCache) expired(e domain.CacheEntry, now time.Time) bool {
	return now.Sub(e.FetchedAt) >= c.ttl
}

// Sweep removes every expired entry and returns how many were evicted.
func (c *ResponseCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the cumulative hit and miss counts.
func (c *ResponseCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// TTL returns the configured freshness window.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Compile-time interface check.
var _ domain.ResponseCache = (*ResponseCache)(nil)
