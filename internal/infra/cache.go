// Package infra provides small shared infrastructure primitives.
package infra

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TTLCache is a thread-safe, string-keyed cache with per-entry expiration.
// Keys are strings so that related entries can share a prefix and be
// evicted together with ClearPrefix. Expired entries are removed lazily on
// the first Get/Contains that observes them, or by the background sweep.
type TTLCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry[V]
	defaultTTL time.Duration
	stopCh     chan struct{}
	stopped    atomic.Bool

	// Statistics
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheConfig configures a TTL cache.
type CacheConfig struct {
	// DefaultTTL is the default time-to-live for entries.
	DefaultTTL time.Duration
	// CleanupInterval sets how often the background sweep scans for
	// expired entries (0 = no background sweep).
	CleanupInterval time.Duration
}

// NewTTLCache creates a new TTL cache with the given configuration.
func NewTTLCache[V any](config CacheConfig) *TTLCache[V] {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	c := &TTLCache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		defaultTTL: config.DefaultTTL,
		stopCh:     make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.cleanupLoop(config.CleanupInterval)
	}

	return c
}

// Set stores a value with the default TTL. An existing entry under the
// same key is replaced wholesale.
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	entry := &cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Get retrieves a value from the cache.
// Returns the value and true if found and not expired, zero value and
// false otherwise. An expired entry is deleted on the way out.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	if time.Now().After(entry.expiresAt) {
		c.misses.Add(1)
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return entry.value, true
}

// Contains checks if a key exists and is not expired. Like Get, it
// removes an expired entry when it observes one.
func (c *TTLCache[V]) Contains(key string) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false
	}

	return true
}

// Delete removes a key from the cache.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries from the cache.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry[V])
	c.mu.Unlock()
}

// ClearPrefix removes every entry whose key starts with prefix and
// returns the number removed. Entries under other prefixes are untouched.
func (c *TTLCache[V]) ClearPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.evicts.Add(uint64(removed))
	return removed
}

// Len returns the number of entries in the cache (including expired
// entries not yet swept).
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		Evicts:  c.evicts.Load(),
		HitRate: hitRate,
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	Evicts  uint64
	HitRate float64
}

// Cleanup removes expired entries and returns the number removed.
func (c *TTLCache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stop stops the background sweep goroutine.
func (c *TTLCache[V]) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
}

func (c *TTLCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCh:
			return
		}
	}
}
