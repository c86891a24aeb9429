// Package redis wraps the shared Redis client used by the edge lookup cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relaypad/internal/platform/config"
)

// Client wraps go-redis with health checking. The edge treats Redis as a
// best-effort layer, but a misconfigured URL should fail at startup, not on
// the first request.
type Client struct {
	*redis.Client
}

// New creates a Redis client from the provided configuration and verifies
// connectivity. Returns nil if no URL is configured; callers fall back to
// direct store reads.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPoolConfig(opts, cfg)

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// applyPoolConfig layers our knobs over the URL options. Zero values keep
// the edge-friendly defaults: short timeouts, a warm idle pool.
func applyPoolConfig(opts *redis.Options, cfg config.RedisConfig) {
	opts.PoolSize = orInt(cfg.PoolSize, 10)
	opts.MinIdleConns = orInt(cfg.MinIdleConns, 2)
	opts.DialTimeout = orDuration(cfg.DialTimeout, 5*time.Second)
	opts.ReadTimeout = orDuration(cfg.ReadTimeout, 500*time.Millisecond)
	opts.WriteTimeout = orDuration(cfg.WriteTimeout, 500*time.Millisecond)
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
