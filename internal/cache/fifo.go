// Package cache holds small bounded caches shared by the readers.
package cache

import "sync"

// FIFO is a bounded map that evicts the oldest inserted entry when full.
// It is safe for concurrent use.
type FIFO[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	order   []K
	maxSize int
}

// NewFIFO creates a cache holding at most maxEntries values. A non-positive
// size falls back to 16 entries.
func NewFIFO[K comparable, V any](maxEntries int) *FIFO[K, V] {
	if maxEntries <= 0 {
		maxEntries = 16
	}
	return &FIFO[K, V]{
		entries: make(map[K]V, maxEntries),
		order:   make([]K, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Get returns the cached value for key.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores a value, evicting the oldest entry if the cache is full.
// Keys already present keep their original value.
func (c *FIFO[K, V]) Put(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = v
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *FIFO[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = c.order[:0]
}
