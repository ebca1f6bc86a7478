package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func dedupeKey(tenantID string, messageID string) string {
	return fmt.Sprintf("inbound:%s:%s", tenantID, messageID)
}

// Seen uses SETNX so marking and checking are one atomic round trip.
func (c *RedisDeduper) Seen(ctx context.Context, tenantID string, messageID string) (bool, error) {
	created, err := c.rdb.SetNX(ctx, dedupeKey(tenantID, messageID), 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	return !created, nil
}
