package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker implements the observability.Checker interface for Redis.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a health checker for the given client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the component name.
func (h *RedisChecker) Name() string {
	return "redis"
}

// Check verifies connectivity using Ping.
func (h *RedisChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
