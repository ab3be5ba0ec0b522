// Package cache provides the in-memory read-through cache that sits
// between the evaluation service and the flag store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/maypok86/otter"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/observability"
	"github.com/veigo-labs/flagward/internal/store"
)

// DefaultTTL bounds staleness between the store and evaluation callers.
// Flags are read on virtually every gated request but change rarely, so a
// short TTL removes store round-trips from the hot path.
const DefaultTTL = 60 * time.Second

// Lookup is the narrow store surface the cache needs. *store.PostgresStore
// and *store.MemoryStore both satisfy it.
type Lookup interface {
	FindByKey(ctx context.Context, key string) (*flag.Definition, error)
}

// entry is a cached snapshot with its fill time. Expiration is lazy: we
// keep the timestamp and compare on read instead of relying on a timer,
// so tests can drive staleness with a fake clock.
type entry struct {
	def      *flag.Definition
	cachedAt time.Time
}

// Cache is a TTL-bounded read-through cache keyed by flag key.
//
// The backing structure is an otter cache (S3-FIFO), so concurrent readers
// never block each other. Cached definitions are shared between callers
// and must be treated as read-only; the evaluation path never mutates them.
type Cache struct {
	lookup  Lookup
	entries otter.Cache[string, entry]
	ttl     time.Duration
	clk     clock.Clock
}

// New creates a cache over the given lookup. capacity is a hard cap on the
// number of cached flags; ttl <= 0 falls back to DefaultTTL.
func New(lookup Lookup, capacity int, ttl time.Duration, clk clock.Clock) (*Cache, error) {
	if lookup == nil {
		panic("cache: lookup cannot be nil")
	}
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entries, err := otter.MustBuilder[string, entry](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}

	return &Cache{
		lookup:  lookup,
		entries: entries,
		ttl:     ttl,
		clk:     clk,
	}, nil
}

// Get returns the flag for key, serving from memory while the snapshot is
// fresh and falling through to the store otherwise.
//
// A not-found result is never cached: every evaluation of an unknown key
// re-queries the store, so a freshly created flag is visible immediately.
func (c *Cache) Get(ctx context.Context, key string) (*flag.Definition, error) {
	now := c.clk.Now()

	if e, ok := c.entries.Get(key); ok && now.Sub(e.cachedAt) < c.ttl {
		observability.CacheHits.Inc()
		return e.def, nil
	}
	observability.CacheMisses.Inc()

	def, err := c.lookup.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Drop any stale snapshot for a flag that no longer exists.
			c.entries.Delete(key)
		}
		return nil, err
	}

	c.entries.Set(key, entry{def: def, cachedAt: now})
	return def, nil
}

// Invalidate removes a single entry. Every administrative mutation and
// every reconciler transition calls this so the next read is fresh.
func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
}

// Clear wipes the entire cache. Exposed as an explicit admin operation.
func (c *Cache) Clear() {
	c.entries.Clear()
}

// Len returns the current number of cached flags.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Close releases the background resources of the backing cache.
func (c *Cache) Close() {
	c.entries.Close()
}
