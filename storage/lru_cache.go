package storage

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/HITGYA/Mit-6.830/common"
)

// LRUCache is a fixed-capacity key/value cache ordered by access recency. Get and Put promote
// an entry to most-recently-used; Put past capacity drops the least-recently-used entry.
//
// The buffer pool never relies on the automatic drop: it evicts explicitly before inserting so it
// can pick a clean victim. All methods are safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[K, V]
	capacity int
}

// NewLRUCache creates a cache holding at most capacity entries.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	lru, err := simplelru.NewLRU[K, V](capacity, nil)
	common.Assert(err == nil, "invalid LRU capacity %d: %v", capacity, err)
	return &LRUCache[K, V]{lru: lru, capacity: capacity}
}

// Get returns the value for key and marks it most-recently-used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Peek returns the value for key without touching its recency.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(key)
}

// Put inserts or overwrites key and marks it most-recently-used. It reports whether an entry
// was dropped to make room.
func (c *LRUCache[K, V]) Put(key K, value V) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Add(key, value)
}

// Remove deletes key regardless of its position. Removing an absent key is a no-op.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

func (c *LRUCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *LRUCache[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns a snapshot of the keys from least to most recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Oldest returns the least-recently-used entry without promoting it.
func (c *LRUCache[K, V]) Oldest() (K, V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.GetOldest()
}

// Purge empties the cache.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
