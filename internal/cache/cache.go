package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// JSONCache is a small read-through cache over redis. Every failure degrades
// to a miss so callers always fall back to the real computation.
type JSONCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewJSONCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *JSONCache {
	return &JSONCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get loads key into dest. Returns false on miss or any redis/decode error.
func (c *JSONCache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		if c.logger != nil {
			c.logger.Warn("Cache entry not decodable, treating as miss",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return false
	}
	return true
}

// Set stores v under key, best-effort.
func (c *JSONCache) Set(ctx context.Context, key string, v any) {
	if c == nil || c.rdb == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete drops key, best-effort.
func (c *JSONCache) Delete(ctx context.Context, key string) {
	if c == nil || c.rdb == nil {
		return
	}

	if err := c.rdb.Del(ctx, key).Err(); err != nil && c.logger != nil {
		c.logger.Warn("Cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
