package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/store"
)

// KeyPrefix namespaces every classification entry stored in Redis.
const KeyPrefix = "repairs_classification"

const (
	defaultRedisTimeout  = 5 * time.Second
	defaultRedisPoolSize = 50
	defaultRedisRetries  = 3
	clearBatchSize       = 100
)

// RedisCache is a Redis-backed Register shared across processes.
//
// Keys are the SHA-256 of the cache key under KeyPrefix, values are JSON.
// Every Redis error is logged and reported as a miss or false.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection with a PING.
func NewRedisCache(ctx context.Context, cfg *profile.RedisCacheConfig, logger *slog.Logger) (*RedisCache, error) {
	if cfg == nil {
		return nil, errors.New("redis cache config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultRedisTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultRedisTimeout
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultRedisPoolSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultRedisRetries
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  connectTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: readTimeout,
		PoolTimeout:  readTimeout + time.Second,
		MaxRetries:   maxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr())
	}

	logger = logger.With("component", "cache", "backend", backendRedis)
	logger.Info("redis cache connected", "addr", cfg.Addr(), "pool_size", poolSize)

	return &RedisCache{
		client:     client,
		defaultTTL: ttlHours(cfg.TTLHours),
		logger:     logger,
	}, nil
}

// Get retrieves a classification result from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (store.ClassificationResult, bool) {
	data, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			recordOp(backendRedis, "get", "miss")
			c.logger.Debug("redis cache miss", "key", key)
		} else {
			recordOp(backendRedis, "get", "error")
			c.logger.Error("redis get error", "key", key, "error", err)
		}
		return store.ClassificationResult{}, false
	}

	value, err := decodeValue(data)
	if err != nil {
		recordOp(backendRedis, "get", "error")
		c.logger.Error("failed to decode cached value", "key", key, "error", err)
		return store.ClassificationResult{}, false
	}

	recordOp(backendRedis, "get", "hit")
	c.logger.Debug("redis cache hit", "key", key)
	return value, true
}

// Set stores value with an expiry of ttl, or the default TTL when ttl <= 0.
func (c *RedisCache) Set(ctx context.Context, key string, value store.ClassificationResult, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := encodeValue(value)
	if err != nil {
		recordOp(backendRedis, "set", "error")
		c.logger.Error("failed to encode cache value", "key", key, "error", err)
		return false
	}

	if err := c.client.SetEx(ctx, c.makeKey(key), data, ttl).Err(); err != nil {
		recordOp(backendRedis, "set", "error")
		c.logger.Error("redis set error", "key", key, "error", err)
		return false
	}

	recordOp(backendRedis, "set", "ok")
	c.logger.Debug("stored in redis cache", "key", key, "section", value.Section, "name", value.Name)
	return true
}

// Delete removes key and reports whether it existed.
func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	n, err := c.client.Del(ctx, c.makeKey(key)).Result()
	if err != nil {
		recordOp(backendRedis, "delete", "error")
		c.logger.Error("redis delete error", "key", key, "error", err)
		return false
	}
	recordOp(backendRedis, "delete", "ok")
	return n > 0
}

// Clear removes every key under KeyPrefix, leaving other data in the database untouched.
func (c *RedisCache) Clear(ctx context.Context) bool {
	iter := c.client.Scan(ctx, 0, KeyPrefix+":*", clearBatchSize).Iterator()

	var (
		keys    []string
		removed int64
	)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		removed += n
		keys = keys[:0]
		return nil
	}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= clearBatchSize {
			if err := flush(); err != nil {
				recordOp(backendRedis, "clear", "error")
				c.logger.Error("redis clear error", "error", err)
				return false
			}
		}
	}
	if err := iter.Err(); err != nil {
		recordOp(backendRedis, "clear", "error")
		c.logger.Error("redis scan error", "error", err)
		return false
	}
	if err := flush(); err != nil {
		recordOp(backendRedis, "clear", "error")
		c.logger.Error("redis clear error", "error", err)
		return false
	}

	recordOp(backendRedis, "clear", "ok")
	c.logger.Info("cleared redis cache", "removed", removed)
	return true
}

// Exists reports whether key is present in Redis.
func (c *RedisCache) Exists(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.makeKey(key)).Result()
	if err != nil {
		recordOp(backendRedis, "exists", "error")
		c.logger.Error("redis exists error", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Close closes the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// makeKey hashes key to bound its length and escape characters unsafe for Redis.
func (c *RedisCache) makeKey(key string) string {
	return KeyPrefix + ":" + KeyHash(key)
}

// KeyHash returns the hex SHA-256 of key.
func KeyHash(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func encodeValue(value store.ClassificationResult) ([]byte, error) {
	return json.Marshal(value)
}

func decodeValue(data []byte) (store.ClassificationResult, error) {
	var value store.ClassificationResult
	if err := json.Unmarshal(data, &value); err != nil {
		return store.ClassificationResult{}, errors.Wrap(err, "invalid cached value")
	}
	return value, nil
}

// Ensure RedisCache implements Register
var _ Register = (*RedisCache)(nil)
