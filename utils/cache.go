// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"findmycoach/config"
)

// NewCacheClient builds the Redis cache client from configuration and verifies
// connectivity. The caller owns the client and passes it explicitly to the
// components that cache.
// BookingCacheKey is the cache key for a booking's read-through entry. Every
// component that transitions a booking deletes this key, whichever path the
// write came in on.
func BookingCacheKey(id string) string {
	return "booking:" + id
}

func NewCacheClient(cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis (Cache): %w", err)
	}
	return client, nil
}
