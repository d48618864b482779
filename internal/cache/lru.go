// Package cache provides a generic LRU cache used for prepared statements
// and compiled operations.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default maximum number of cached entries.
const DefaultCapacity = 1000

// LRU stores values with least-recently-used eviction.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithEvict registers a callback invoked for every value leaving the cache,
// whether evicted, replaced, removed or cleared. It runs with the cache lock
// held and must not call back into the cache.
func WithEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// New creates a cache holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value cached under key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry[K, V]).value, true
}

// Set stores value under key, replacing any previous value and evicting the
// least recently used entry when the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		c.release(e)
		e.value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrLoad returns the cached value for key, calling load and caching its
// result on a miss. Errors are returned without caching. Concurrent misses
// for one key may call load more than once; the last result wins.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	c.release(elem.Value.(*entry[K, V]))
	return true
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		c.release(elem.Value.(*entry[K, V]))
	}
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// evictOldest must be called with the lock held.
func (c *LRU[K, V]) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.release(e)
	c.evictions.Add(1)
}

func (c *LRU[K, V]) release(e *entry[K, V]) {
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int     // Current number of entries.
	Capacity  int     // Maximum capacity.
	Hits      uint64  // Successful lookups.
	Misses    uint64  // Failed lookups.
	Evictions uint64  // Entries evicted for capacity.
	HitRate   float64 // hits / (hits + misses).
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	size := c.Len()
	hits := c.hits.Load()
	misses := c.misses.Load()

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
