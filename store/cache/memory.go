package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/repairsense/store"
)

// MemoryCache is an in-process cache with per-entry TTL and approximate LRU eviction.
//
// Expired entries are purged lazily at the start of every Get and Set. When a
// new key is inserted while the cache holds maxSize live entries, the
// oldest-accessed half is evicted in one pass so the sort is amortised over
// many insertions. All operations are serialised by a single mutex.
type MemoryCache struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	entries    map[string]*memoryEntry
	now        func() time.Time
	logger     *slog.Logger
}

type memoryEntry struct {
	value      store.ClassificationResult
	storedAt   time.Time
	ttl        time.Duration
	accessedAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.storedAt.Add(e.ttl))
}

// MemoryOption customises a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// WithLogger sets the logger used by the cache.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(c *MemoryCache) {
		c.logger = logger
	}
}

// NewMemoryCache creates a memory cache holding at most maxSize live entries.
func NewMemoryCache(maxSize int, defaultTTL time.Duration, opts ...MemoryOption) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	c := &MemoryCache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*memoryEntry),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache", "backend", backendMemory)
	return c
}

// Get retrieves a value from the memory cache.
func (c *MemoryCache) Get(_ context.Context, key string) (store.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.cleanupExpired(now)

	e, ok := c.entries[key]
	if !ok {
		recordOp(backendMemory, "get", "miss")
		c.logger.Debug("memory cache miss", "key", key)
		return store.ClassificationResult{}, false
	}

	e.accessedAt = now
	recordOp(backendMemory, "get", "hit")
	c.logger.Debug("memory cache hit", "key", key)
	return e.value, true
}

// Set stores value under key with the given ttl, or the default TTL when ttl <= 0.
func (c *MemoryCache) Set(_ context.Context, key string, value store.ClassificationResult, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.cleanupExpired(now)
	// Overwriting an existing key never triggers eviction; the size stays unchanged.
	if _, exists := c.entries[key]; !exists {
		c.evictIfNeeded()
	}

	c.entries[key] = &memoryEntry{
		value:      value,
		storedAt:   now,
		ttl:        ttl,
		accessedAt: now,
	}
	cacheEntries.WithLabelValues(backendMemory).Set(float64(len(c.entries)))
	recordOp(backendMemory, "set", "ok")
	c.logger.Debug("stored in memory cache", "key", key, "section", value.Section, "name", value.Name)
	return true
}

// Delete removes key and reports whether a live entry was present.
func (c *MemoryCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	cacheEntries.WithLabelValues(backendMemory).Set(float64(len(c.entries)))
	recordOp(backendMemory, "delete", "ok")
	return !e.expired(c.now())
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry)
	cacheEntries.WithLabelValues(backendMemory).Set(0)
	recordOp(backendMemory, "clear", "ok")
	c.logger.Info("cleared memory cache")
	return true
}

// Exists reports whether a non-expired entry is present.
func (c *MemoryCache) Exists(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && !e.expired(c.now())
}

// Size returns the number of entries currently held, expired or not.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

// evictIfNeeded drops the oldest-accessed half of the entries when the cache is full.
// At least enough entries are dropped to leave room for one insertion, so a
// cache of size one never exceeds its bound.
// Must be called with lock held.
func (c *MemoryCache) evictIfNeeded() {
	n := len(c.entries)
	if n < c.maxSize {
		return
	}

	count := n / 2
	if needed := n - c.maxSize + 1; count < needed {
		count = needed
	}

	keys := make([]string, 0, n)
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := c.entries[keys[i]].accessedAt, c.entries[keys[j]].accessedAt
		if ai.Equal(aj) {
			return keys[i] < keys[j]
		}
		return ai.Before(aj)
	})

	for _, k := range keys[:count] {
		delete(c.entries, k)
	}
	recordEvictions(backendMemory, "capacity", count)
	c.logger.Info("evicted entries from memory cache", "count", count)
}

// cleanupExpired removes every expired entry.
// Must be called with lock held.
func (c *MemoryCache) cleanupExpired(now time.Time) {
	var expired []string
	for k, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	if len(expired) == 0 {
		return
	}

	for _, k := range expired {
		delete(c.entries, k)
	}
	cacheEntries.WithLabelValues(backendMemory).Set(float64(len(c.entries)))
	recordEvictions(backendMemory, "expired", len(expired))
	c.logger.Info("cleaned up expired entries from memory cache", "count", len(expired))
}

// Ensure MemoryCache implements Register
var _ Register = (*MemoryCache)(nil)
