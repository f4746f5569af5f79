// ABOUTME: Thread-safe TTL response cache for the generation gateway
// ABOUTME: Size-limited with insertion-order eviction and a background expiry sweep

package generation

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// cacheEntry stores a response, its insertion time and its list element.
type cacheEntry struct {
	response  Response
	timestamp time.Time
	element   *list.Element
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// Cache provides a thread-safe, TTL-based, size-limited response cache.
// A doubly-linked list keeps insertion order so eviction is O(1).
// Concurrent writes for the same key are last-writer-wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries until Close.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns a non-expired response and counts a hit or a miss.
func (c *Cache) Get(key string) (Response, bool) {
	resp, ok := c.Peek(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return resp, ok
}

// Peek is Get without touching the counters.
func (c *Cache) Peek(key string) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		return Response{}, false
	}
	return entry.response, true
}

// Set stores a response. If the cache is at capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if entry, exists := c.entries[key]; exists {
		entry.response = resp
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		response:  resp,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Stats returns hit, miss and size counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: size}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
