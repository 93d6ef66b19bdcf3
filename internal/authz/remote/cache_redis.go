package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares authority decisions across instances. Cache failures
// are treated as misses; the authority call path must keep working when
// Redis is down.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "authz:decision:"
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (CachedDecision, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("decision cache read failed", "error", err)
		}
		return CachedDecision{}, false
	}
	var decision CachedDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		c.logger.Warn("decision cache entry corrupt", "key", key, "error", err)
		return CachedDecision{}, false
	}
	return decision, true
}

func (c *RedisCache) Set(ctx context.Context, key string, decision CachedDecision, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.logger.Warn("decision cache write failed", "error", err)
	}
}
