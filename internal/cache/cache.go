// Package cache provides a bounded in-memory key/value cache with TTL,
// used to memoize conversation reads.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a string-keyed TTL cache. Expired entries are evicted
// lazily on read; there is no background sweep. When the bound is
// reached, Set drops expired entries first and then the entry closest
// to expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	maxSize int
	now     func() time.Time
}

func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		entries: make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached value, or ok=false when absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value for ttl. A non-positive ttl is treated as one
// minute.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes a key. Missing keys are a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Has reports whether a live entry exists for key.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including any not yet
// lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked makes room for one entry: expired entries go first,
// otherwise the entry closest to expiry.
func (c *Cache) evictLocked() {
	now := c.now()
	var (
		victim   string
		earliest time.Time
	)
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			return
		}
		if victim == "" || e.expiresAt.Before(earliest) {
			victim = k
			earliest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}
