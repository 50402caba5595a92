package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/support-toolchain/ticketrag/pkg/config"
)

const redisKeyPrefix = "ticketrag:emb:"

// RedisCache shares embedding vectors across replicas. Entries carry a TTL
// so the keyspace does not grow without bound.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies reachability.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client, ttl: ttl, logger: slog.Default()}, nil
}

// Get returns the cached vector for text, if present. Redis failures degrade
// to a cache miss.
func (c *RedisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	data, err := c.client.Get(ctx, cacheKey(text)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Redis cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", "error", err)
		return nil, false
	}
	return vec, true
}

// Set stores a vector under its source text. Failures are logged, not fatal.
func (c *RedisCache) Set(ctx context.Context, text string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(text), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", "error", err)
	}
}

// Clear removes all ticketrag embedding keys.
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Stats counts ticketrag embedding keys. The byte estimate is left zero:
// sizing the remote keyspace would require a full scan of values.
func (c *RedisCache) Stats(ctx context.Context) CacheStats {
	var entries int
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			c.logger.Warn("Redis cache stats scan failed", "error", err)
			break
		}
		entries += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return CacheStats{Entries: entries}
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cacheKey hashes the text so arbitrarily long chunk bodies become
// fixed-length keys.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}
