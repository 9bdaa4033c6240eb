package cache

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/internal/profile"
)

// NewRegister builds the cache register selected by cfg.
//
// A disabled cache yields a nil Register and no error. When Redis is selected
// but unreachable, the failure is logged and a MemoryCache is returned instead
// so the service can still start. A missing sub-config for the selected type
// is an error.
func NewRegister(ctx context.Context, cfg *profile.CacheConfig, logger *slog.Logger) (Register, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil || !cfg.Enabled {
		logger.Info("classification cache disabled")
		return nil, nil
	}

	switch profile.NormalizeCacheType(cfg.Type) {
	case profile.CacheTypeRedis:
		if cfg.Redis == nil {
			return nil, errors.Wrap(profile.ErrInvalidConfig, "cache.redis is required for the redis cache")
		}
		rc, err := NewRedisCache(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to initialise redis cache, will fallback to in-memory cache", "error", err)
			return newMemoryFromConfig(cfg.Memory, logger), nil
		}
		return rc, nil

	case profile.CacheTypeMemory:
		if cfg.Memory == nil {
			return nil, errors.Wrap(profile.ErrInvalidConfig, "cache.memory is required for the memory cache")
		}
		return newMemoryFromConfig(cfg.Memory, logger), nil

	default:
		return nil, errors.Wrapf(profile.ErrInvalidConfig, "unsupported cache type %q", cfg.Type)
	}
}

// newMemoryFromConfig builds a MemoryCache; a nil config uses the package defaults.
func newMemoryFromConfig(cfg *profile.MemoryCacheConfig, logger *slog.Logger) *MemoryCache {
	maxSize, hours := DefaultMaxSize, 0
	if cfg != nil {
		maxSize, hours = cfg.MaxSize, cfg.TTLHours
	}
	logger.Info("using in-memory cache", "max_size", maxSize, "ttl", ttlHours(hours).String())
	return NewMemoryCache(maxSize, ttlHours(hours), WithLogger(logger))
}
