// Package lrucache implements the bounded-capacity string->bytes cache
// used by the optional read-caching layer in front of a block store.
// Eviction order is the exact least-recently-accessed ordering the
// corpus's own groupcache/lru.Cache already provides (a doubly-linked
// list moved-to-front on every Get/Add), which is why it is reused here
// directly rather than reimplemented: groupcache/lru is deterministic,
// whereas the ristretto cache elsewhere in the dependency graph is a
// probabilistic TinyLFU admission cache and cannot promise an exact
// eviction order.
package lrucache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cache is a thread-safe, capacity-bounded cache of string keys to byte
// slice values.
type Cache struct {
	mu       sync.Mutex
	capacity int
	inner    *lru.Cache
}

// New creates a cache that holds at most capacity entries. capacity<=0
// means unbounded, matching groupcache/lru's own MaxEntries semantics.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	c := &Cache{capacity: capacity}
	c.inner = &lru.Cache{MaxEntries: capacity}
	return c
}

// Get returns the cached value for key and refreshes its recency.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put inserts or overwrites the value for key, evicting the least
// recently accessed entry if the cache is now over capacity.
func (c *Cache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, value)
}

// Invalidate removes key from the cache, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
