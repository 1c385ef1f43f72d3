// Package statscache caches the dashboard stats aggregate in Redis.
//
// The stats endpoint fans out into several aggregate queries; under a polling
// dashboard the same answer is recomputed every few seconds. A short TTL keeps
// the cache disposable: a miss or a Redis outage falls through to the store.
package statscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wafguard-systems/wafguard/internal/models"
)

const statsKey = "wafguard:stats"

// Cache is a short-TTL Redis cache for the stats aggregate. A nil or
// disabled cache is a no-op passthrough.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// New creates a cache from a Redis URL. When enabled is false the returned
// cache is a passthrough and no connection is made.
func New(url string, ttl time.Duration, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &Cache{
		client:  redis.NewClient(opts),
		ttl:     ttl,
		enabled: true,
	}, nil
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Get returns the cached stats, or nil on a miss or any Redis failure.
func (c *Cache) Get(ctx context.Context) *models.Stats {
	if !c.Enabled() {
		return nil
	}

	data, err := c.client.Get(ctx, statsKey).Result()
	if err != nil {
		// redis.Nil is an ordinary miss; anything else degrades to the store.
		return nil
	}

	var stats models.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil
	}

	return &stats
}

// Set stores the stats snapshot for the configured TTL. Failures are
// swallowed; the cache is best effort.
func (c *Cache) Set(ctx context.Context, stats *models.Stats) {
	if !c.Enabled() || stats == nil {
		return
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}

	c.client.Set(ctx, statsKey, data, c.ttl)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.Enabled() {
		return c.client.Close()
	}
	return nil
}
