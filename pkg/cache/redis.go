package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LookupCache is the fast key/value layer in front of the link store.
// Callers treat any error as a miss or no-op; the cache being down must
// never fail a request.
type LookupCache interface {
	Get(ctx context.Context, code string) (string, bool, error)
	Set(ctx context.Context, code string, url string, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
	IncrementClick(ctx context.Context, code string) (int64, error)
	GetClickCount(ctx context.Context, code string) (int64, error)
}

// RedisCache stores destination URLs under url:<code> and live click
// counters under clicks:<code>. Every call carries a bounded timeout so a
// slow Redis degrades to a miss instead of stalling the hot path.
type RedisCache struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewRedisCache(client *redis.Client, opTimeout time.Duration) *RedisCache {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &RedisCache{client: client, opTimeout: opTimeout}
}

func urlKey(code string) string   { return "url:" + code }
func clickKey(code string) string { return "clicks:" + code }

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisCache) Get(ctx context.Context, code string) (string, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, urlKey(code)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, url string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.Set(ctx, urlKey(code), url, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, code string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.Del(ctx, urlKey(code)).Err()
}

func (c *RedisCache) IncrementClick(ctx context.Context, code string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.Incr(ctx, clickKey(code)).Result()
}

func (c *RedisCache) GetClickCount(ctx context.Context, code string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.Get(ctx, clickKey(code)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
