package cache

import (
	"bytes"
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is a thread-safe LRU cache with TTL support. It is the
// community tier backend and the one the test suite runs against. The
// lock and counter primitives are process-local here, which is exactly
// as far as their guarantees reach without Redis.
type MemoryCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiration
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCache creates a new memory cache with the specified max size.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
	}
}

// Get retrieves a value. Returns nil, nil on a miss. A stored empty
// value comes back as a non-nil empty slice.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.live(key)
	if !ok {
		return nil, nil
	}

	if entry.value == nil {
		return []byte{}, nil
	}
	return entry.value, nil
}

// Set stores a value. A ttl of 0 stores without expiration.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, value, ttl)
	return nil
}

// SetNX stores a value only if the key is absent or expired.
func (c *MemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live(key); ok {
		return false, nil
	}

	c.set(key, value, ttl)
	return true, nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// CompareAndDelete removes the key only if it still holds value.
func (c *MemoryCache) CompareAndDelete(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.live(key)
	if !ok || !bytes.Equal(entry.value, value) {
		return nil
	}
	c.removeElement(c.items[key])
	return nil
}

// Increment atomically increments a counter, creating it with the
// given retention TTL.
func (c *MemoryCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.counters[key]

	if !ok || (!entry.expiresAt.IsZero() && now.After(entry.expiresAt)) {
		entry = &counterEntry{count: 0}
		if ttl > 0 {
			entry.expiresAt = now.Add(ttl)
		}
		c.counters[key] = entry
	}

	entry.count++
	return entry.count, nil
}

// Ping checks cache health.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

// live returns the entry for key if present and unexpired, evicting
// it if expired. Caller must hold the mutex.
func (c *MemoryCache) live(key string) (*cacheEntry, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry, true
}

// set writes the entry. Caller must hold the mutex.
func (c *MemoryCache) set(key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	entry := &cacheEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	elem := c.order.PushFront(entry)
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *MemoryCache) removeOldest() {
	elem := c.order.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}
