package reconciler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LeaderLock gates a reconciliation cycle. Running several service
// replicas without coordination would produce redundant (idempotent but
// racy) writes; a short lease makes exactly one replica reconcile per
// cycle.
type LeaderLock interface {
	// Acquire returns true when this instance holds the lease.
	Acquire(ctx context.Context) (bool, error)

	// Release gives the lease up early. Safe to call without holding it.
	Release(ctx context.Context) error
}

// NoopLock always grants the lease. Used for single-instance deployments
// and tests.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (NoopLock) Release(context.Context) error         { return nil }

// releaseScript deletes the lease only when it is still ours, so a lease
// that expired and was re-acquired by another instance is never stolen.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-key lease (SET NX PX) with a compare-and-delete
// release. The lease TTL is a crash safety net: if the holder dies, the
// lease expires and another replica takes over on its next cycle.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	id     string
}

// NewRedisLock creates a lease on the given key with the given TTL.
// Each lock instance has a random identity so releases cannot cross.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if client == nil {
		panic("reconciler: redis client cannot be nil")
	}
	if key == "" {
		key = "flagward:reconciler:lease"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reconciler: failed to generate lock identity: %v", err))
	}

	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		id:     hex.EncodeToString(buf),
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %q: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.id).Err(); err != nil {
		return fmt.Errorf("failed to release lease %q: %w", l.key, err)
	}
	return nil
}
