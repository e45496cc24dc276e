// Package cache is the Redis layer: link lookups, negative entries,
// and the creation rate limit bucket.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the Redis client used by the resolver hot path.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
// Pool sizing comes from config so deployments can tune it per
// instance.
func New(ctx context.Context, redisURL string, poolSize, minIdleConns int) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = poolSize
	opt.MinIdleConns = minIdleConns
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping checks Redis connectivity for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for test harness cleanup.
func (c *Cache) Client() *redis.Client {
	return c.client
}
