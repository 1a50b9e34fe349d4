package countcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"DocrestAPI/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Redis shares cached totals between processes.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) (int64, bool) {
	cached, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("count_cache_get_failed", map[string]any{"key": key, "error": err.Error()})
		}
		return 0, false
	}
	total, err := strconv.ParseInt(cached, 10, 64)
	if err != nil {
		logger.Warn("count_cache_invalid_value", map[string]any{"key": key, "value": cached})
		return 0, false
	}
	return total, true
}

func (c *Redis) Set(ctx context.Context, key string, total int64) {
	if err := c.rdb.Set(ctx, key, total, c.ttl).Err(); err != nil {
		logger.Warn("count_cache_set_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// Invalidate removes every cached total of collection.
func (c *Redis) Invalidate(ctx context.Context, collection string) error {
	iter := c.rdb.Scan(ctx, 0, collectionPrefix(collection)+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

// Flush removes every cached total.
func (c *Redis) Flush(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}
