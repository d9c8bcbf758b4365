package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a tier change can take to be observed.
const DefaultCacheTTL = 5 * time.Minute

// RedisCache caches resolved tiers in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		client: client,
		prefix: "tier:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

// Get returns the cached tier. ok is false on a cache miss.
func (c *RedisCache) Get(ctx context.Context, userID string) (Tier, bool, error) {
	value, err := c.client.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached tier: %w", err)
	}
	return Normalize(value), true, nil
}

// Set stores a tier for the cache TTL.
func (c *RedisCache) Set(ctx context.Context, userID string, t Tier) error {
	if err := c.client.Set(ctx, c.key(userID), string(t), c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached tier: %w", err)
	}
	return nil
}

// Delete removes a cached tier.
func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete cached tier: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
