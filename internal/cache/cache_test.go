package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/store"
)

// countingLookup wraps a map of definitions and counts store round-trips.
type countingLookup struct {
	flags map[string]*flag.Definition
	calls atomic.Int64
}

func (c *countingLookup) FindByKey(_ context.Context, key string) (*flag.Definition, error) {
	c.calls.Add(1)
	def, ok := c.flags[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return def.Clone(), nil
}

func newTestCache(t *testing.T, lookup Lookup, ttl time.Duration, clk clock.Clock) *Cache {
	t.Helper()
	c, err := New(lookup, 128, ttl, clk)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetServesFromCacheWithinTTL(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{
		"checkout-v2": {Key: "checkout-v2", Active: true},
	}}
	mock := clock.NewMock()
	c := newTestCache(t, lookup, 60*time.Second, mock)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		def, err := c.Get(ctx, "checkout-v2")
		require.NoError(t, err)
		assert.Equal(t, "checkout-v2", def.Key)
	}

	// Ten reads inside the TTL cost exactly one store query.
	assert.Equal(t, int64(1), lookup.calls.Load())
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{
		"checkout-v2": {Key: "checkout-v2", Active: true},
	}}
	mock := clock.NewMock()
	c := newTestCache(t, lookup, 60*time.Second, mock)

	ctx := context.Background()
	_, err := c.Get(ctx, "checkout-v2")
	require.NoError(t, err)

	// Just inside the TTL: still a hit.
	mock.Add(59 * time.Second)
	_, err = c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), lookup.calls.Load())

	// Crossing the TTL boundary forces a refetch.
	mock.Add(2 * time.Second)
	_, err = c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), lookup.calls.Load())
}

func TestGetPicksUpStoreChangesAfterExpiry(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{
		"checkout-v2": {Key: "checkout-v2", Active: true},
	}}
	mock := clock.NewMock()
	c := newTestCache(t, lookup, time.Minute, mock)

	ctx := context.Background()
	def, err := c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.True(t, def.Active)

	lookup.flags["checkout-v2"] = &flag.Definition{Key: "checkout-v2", Active: false}

	// The stale value is served until the TTL elapses.
	def, err = c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.True(t, def.Active)

	mock.Add(time.Minute + time.Second)
	def, err = c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.False(t, def.Active)
}

func TestInvalidateForcesImmediateRefetch(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{
		"checkout-v2": {Key: "checkout-v2", Active: true},
	}}
	c := newTestCache(t, lookup, time.Minute, clock.NewMock())

	ctx := context.Background()
	_, err := c.Get(ctx, "checkout-v2")
	require.NoError(t, err)

	lookup.flags["checkout-v2"] = &flag.Definition{Key: "checkout-v2", Active: false}
	c.Invalidate("checkout-v2")

	def, err := c.Get(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.False(t, def.Active)
	assert.Equal(t, int64(2), lookup.calls.Load())
}

func TestNotFoundIsNeverCached(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{}}
	c := newTestCache(t, lookup, time.Minute, clock.NewMock())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "ghost")
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	// Every miss re-queried the store, so a freshly created flag becomes
	// visible on the very next evaluation.
	assert.Equal(t, int64(3), lookup.calls.Load())

	lookup.flags["ghost"] = &flag.Definition{Key: "ghost", Active: true}
	def, err := c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.True(t, def.Active)
}

func TestClearWipesAllEntries(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{
		"flag-a": {Key: "flag-a"},
		"flag-b": {Key: "flag-b"},
	}}
	c := newTestCache(t, lookup, time.Minute, clock.NewMock())

	ctx := context.Background()
	_, err := c.Get(ctx, "flag-a")
	require.NoError(t, err)
	_, err = c.Get(ctx, "flag-b")
	require.NoError(t, err)

	c.Clear()

	_, err = c.Get(ctx, "flag-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), lookup.calls.Load())
}

func TestNewDefaultsTTL(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{flags: map[string]*flag.Definition{}}
	c, err := New(lookup, 128, 0, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DefaultTTL, c.ttl)
}
