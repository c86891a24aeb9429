package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"relaypad/pkg/platform/sentinel"
)

// missMarker is stored for lookups that resolved to not-found so a hot
// unknown Host header cannot hammer the backing store.
const missMarker = "__miss__"

// RedisDomainCache is a read-through cache shared by edge instances. Redis
// being down degrades to direct store reads; it never turns a hit into an
// error.
type RedisDomainCache struct {
	rdb    *redis.Client
	next   DomainReader
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisDomainCache(rdb *redis.Client, next DomainReader, ttl time.Duration, logger *slog.Logger) *RedisDomainCache {
	return &RedisDomainCache{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func (c *RedisDomainCache) Find(ctx context.Context, domain string) (*DomainRecord, error) {
	key := "edge:domain:" + domain

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == missMarker {
			return nil, sentinel.ErrNotFound
		}
		var record DomainRecord
		if err := json.Unmarshal([]byte(val), &record); err == nil {
			return &record, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "domain cache read failed", "domain", domain, "error", err)
	}

	record, err := c.next.Find(ctx, domain)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.set(ctx, key, missMarker)
		}
		return nil, err
	}

	if buf, merr := json.Marshal(record); merr == nil {
		c.set(ctx, key, string(buf))
	}
	return record, nil
}

func (c *RedisDomainCache) set(ctx context.Context, key, val string) {
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "domain cache write failed", "key", key, "error", err)
	}
}
