package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/store"
)

// recordingInvalidator captures cache eviction calls.
type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingInvalidator) invalidated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// deniedLock simulates another instance holding the lease.
type deniedLock struct{}

func (deniedLock) Acquire(context.Context) (bool, error) { return false, nil }
func (deniedLock) Release(context.Context) error         { return nil }

func newTestRunner(t *testing.T, st store.FlagStore, inv Invalidator, lock LeaderLock, clk clock.Clock) *Runner {
	t.Helper()
	return NewRunner(nil, Config{
		Interval:    time.Hour,
		Environment: flag.EnvProduction,
	}, st, inv, lock, clk)
}

func TestRunOnceAppliesDueEnable(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	st := store.NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	enableAt := mock.Now().Add(-time.Hour)
	_, err := st.Create(ctx, store.CreateParams{
		Key:       "launch-day",
		Name:      "Launch Day",
		Active:    false,
		CreatedBy: "a",
		Environments: map[flag.Environment]flag.EnvironmentConfig{
			flag.EnvProduction: {Enabled: false},
		},
		ScheduledEnableAt: &enableAt,
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	runner := newTestRunner(t, st, inv, NoopLock{}, mock)

	require.NoError(t, runner.RunOnce(ctx))

	def, err := st.FindByKey(ctx, "launch-day")
	require.NoError(t, err)
	assert.True(t, def.Environments[flag.EnvProduction].Enabled)
	assert.Nil(t, def.ScheduledEnableAt, "one-shot date must be consumed")
	assert.Contains(t, inv.invalidated(), "launch-day")
}

func TestRunOnceAppliesDueDisable(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	st := store.NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	disableAt := mock.Now().Add(-time.Minute)
	_, err := st.Create(ctx, store.CreateParams{
		Key:       "sunset",
		Name:      "Sunset",
		Active:    true,
		CreatedBy: "a",
		Environments: map[flag.Environment]flag.EnvironmentConfig{
			flag.EnvProduction: {Enabled: true},
		},
		ScheduledDisableAt: &disableAt,
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	runner := newTestRunner(t, st, inv, NoopLock{}, mock)

	require.NoError(t, runner.RunOnce(ctx))

	def, err := st.FindByKey(ctx, "sunset")
	require.NoError(t, err)
	assert.False(t, def.Environments[flag.EnvProduction].Enabled)
	assert.Nil(t, def.ScheduledDisableAt)
	assert.Contains(t, inv.invalidated(), "sunset")
}

func TestRunOnceIsIdempotent(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	st := store.NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	enableAt := mock.Now().Add(-time.Hour)
	_, err := st.Create(ctx, store.CreateParams{
		Key: "once", Name: "Once", Active: false, CreatedBy: "a",
		ScheduledEnableAt: &enableAt,
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	runner := newTestRunner(t, st, inv, NoopLock{}, mock)

	require.NoError(t, runner.RunOnce(ctx))
	require.Len(t, inv.invalidated(), 1)

	// The consumed date means the second cycle plans nothing.
	require.NoError(t, runner.RunOnce(ctx))
	assert.Len(t, inv.invalidated(), 1)
}

func TestRunOnceLeavesFutureSchedulesAlone(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	st := store.NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	enableAt := mock.Now().Add(time.Hour)
	_, err := st.Create(ctx, store.CreateParams{
		Key: "not-yet", Name: "Not Yet", Active: false, CreatedBy: "a",
		ScheduledEnableAt: &enableAt,
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	runner := newTestRunner(t, st, inv, NoopLock{}, mock)

	require.NoError(t, runner.RunOnce(ctx))

	def, err := st.FindByKey(ctx, "not-yet")
	require.NoError(t, err)
	require.NotNil(t, def.ScheduledEnableAt)
	assert.Empty(t, inv.invalidated())

	// Advance past the date: the next cycle picks it up.
	mock.Add(2 * time.Hour)
	require.NoError(t, runner.RunOnce(ctx))

	def, err = st.FindByKey(ctx, "not-yet")
	require.NoError(t, err)
	assert.Nil(t, def.ScheduledEnableAt)
	assert.True(t, def.Environments[flag.EnvProduction].Enabled)
}

func TestRunOnceSkipsWhenNotLeader(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	st := store.NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	enableAt := mock.Now().Add(-time.Hour)
	_, err := st.Create(ctx, store.CreateParams{
		Key: "leased", Name: "Leased", Active: false, CreatedBy: "a",
		ScheduledEnableAt: &enableAt,
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	runner := newTestRunner(t, st, inv, deniedLock{}, mock)

	// Not an error: the lease holder covers this cycle.
	require.NoError(t, runner.RunOnce(ctx))

	def, err := st.FindByKey(ctx, "leased")
	require.NoError(t, err)
	require.NotNil(t, def.ScheduledEnableAt)
	assert.Empty(t, inv.invalidated())
}

func TestNewRunnerDefaults(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	inv := &recordingInvalidator{}

	r := NewRunner(nil, Config{Interval: time.Second, Environment: flag.EnvStaging}, st, inv, nil, nil)
	assert.Equal(t, time.Hour, r.cfg.Interval, "sub-minute intervals fall back to the safe default")

	assert.Panics(t, func() {
		NewRunner(nil, Config{Interval: time.Hour, Environment: flag.Environment("qa")}, st, inv, nil, nil)
	})
	assert.Panics(t, func() {
		NewRunner(nil, Config{Interval: time.Hour, Environment: flag.EnvStaging}, nil, inv, nil, nil)
	})
}
