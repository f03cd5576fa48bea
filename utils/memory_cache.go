package utils

import (
	"sync"
	"time"
)

// CacheItem represents a cached item with expiration
type CacheItem[V any] struct {
	Value      V
	Expiration time.Time
}

// MemoryCache is an in-memory map with sliding expiration. Reads refresh the
// TTL, so entries live as long as they are in use.
type MemoryCache[V any] struct {
	items map[string]*CacheItem[V]
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a cache whose entries expire ttl after their last use
func NewMemoryCache[V any](ttl time.Duration) *MemoryCache[V] {
	cache := &MemoryCache[V]{
		items: make(map[string]*CacheItem[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go cache.cleanupLoop()

	return cache
}

// Set stores a value, replacing any previous one
func (c *MemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem[V]{Value: value, Expiration: c.now().Add(c.ttl)}
}

// Get retrieves a live value and refreshes its expiration
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.Expiration) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	item.Expiration = c.now().Add(c.ttl)
	return item.Value, true
}

// GetOrCreate returns the live value for key, building and storing it with
// create when absent. create runs under the cache lock.
func (c *MemoryCache[V]) GetOrCreate(key string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, exists := c.items[key]; exists && !now.After(item.Expiration) {
		item.Expiration = now.Add(c.ttl)
		return item.Value
	}
	value := create()
	c.items[key] = &CacheItem[V]{Value: value, Expiration: now.Add(c.ttl)}
	return value
}

// Delete removes an item from cache
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Size returns the number of items in cache
func (c *MemoryCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Close stops the cleanup goroutine
func (c *MemoryCache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupLoop periodically removes expired items
func (c *MemoryCache[V]) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes expired items
func (c *MemoryCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.Expiration) {
			delete(c.items, key)
		}
	}
}
