// Package cache provides the in-process TTL cache used in front of
// vector-index reads. It is constructed once per process and passed by
// reference; the clock is injected so expiry is testable.
package cache

import (
	"sync"
	"time"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

type entry struct {
	value     any
	expiresAt time.Time
}

// TTL is a read-mostly, last-writer-wins cache with a fixed per-entry
// lifetime. Expired entries are dropped lazily on read and during Set.
type TTL struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   Clock
}

func NewTTL(ttl time.Duration, now Clock) *TTL {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TTL{
		items: map[string]entry{},
		ttl:   ttl,
		now:   now,
	}
}

func (c *TTL) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the entry.
		if cur, still := c.items[key]; still && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *TTL) Set(key string, value any) {
	now := c.now()
	c.mu.Lock()
	c.items[key] = entry{value: value, expiresAt: now.Add(c.ttl)}
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
