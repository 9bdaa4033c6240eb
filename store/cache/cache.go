// Package cache provides the classification cache registers placed in front of
// the repair classifier.
//
// Two backends implement Register:
//   - MemoryCache: in-process, bounded, TTL-expiring map (lost on restart)
//   - RedisCache: shared TTL store on Redis, namespaced under KeyPrefix
//
// NewRegister selects a backend from configuration and falls back to the
// memory cache when Redis cannot be reached at start-up. A disabled cache is
// represented by a nil Register; callers check for it explicitly.
package cache

import (
	"context"
	"time"

	"github.com/hrygo/repairsense/store"
)

const (
	// DefaultMaxSize is the memory cache capacity used when none is configured.
	DefaultMaxSize = 10000
	// DefaultTTL is the entry lifetime used when none is configured.
	DefaultTTL = 24 * time.Hour
)

// Register is the capability set shared by every cache backend.
// No method returns an error: I/O and decode failures are logged by the
// backend and surface as a miss or as false.
type Register interface {
	// Get returns the cached result for key. Returns false on miss, expiry or read error.
	Get(ctx context.Context, key string) (store.ClassificationResult, bool)

	// Set stores value under key. A ttl <= 0 uses the backend default.
	Set(ctx context.Context, key string, value store.ClassificationResult, ttl time.Duration) bool

	// Delete removes key and reports whether a live entry existed.
	Delete(ctx context.Context, key string) bool

	// Clear removes every entry in this cache's namespace.
	Clear(ctx context.Context) bool

	// Exists reports whether a non-expired entry is present for key.
	Exists(ctx context.Context, key string) bool

	// Close releases connections held by the backend.
	Close() error
}

// ttlHours converts a configured hour count into a TTL, falling back to DefaultTTL.
func ttlHours(hours int) time.Duration {
	if hours <= 0 {
		return DefaultTTL
	}
	return time.Duration(hours) * time.Hour
}
