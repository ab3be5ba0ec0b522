package store

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veigo-labs/flagward/internal/flag"
)

func TestMemoryStoreCreateAndFind(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	created, err := st.Create(ctx, CreateParams{
		Key:       "checkout-v2",
		Name:      "Checkout V2",
		Active:    true,
		Status:    flag.StatusBeta,
		Tags:      []string{"checkout", "payments"},
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "checkout-v2", created.Key)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, "alice", created.LastModifiedBy)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NotNil(t, created.Environments)

	found, err := st.FindByKey(ctx, "checkout-v2")
	require.NoError(t, err)
	assert.Equal(t, created.Key, found.Key)
	assert.Equal(t, created.Name, found.Name)
}

func TestMemoryStoreCreateDuplicateKey(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{Key: "dup", Name: "Dup", CreatedBy: "alice"})
	require.NoError(t, err)

	_, err = st.Create(ctx, CreateParams{Key: "dup", Name: "Dup Again", CreatedBy: "bob"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMemoryStoreFindByKeyNotFound(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	_, err := st.FindByKey(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnedDefinitionsAreClones(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{
		Key: "iso", Name: "Iso", CreatedBy: "alice",
		Tags: []string{"original"},
	})
	require.NoError(t, err)

	found, err := st.FindByKey(ctx, "iso")
	require.NoError(t, err)
	found.Tags[0] = "mutated"
	found.Name = "mutated"

	again, err := st.FindByKey(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Tags[0])
	assert.Equal(t, "Iso", again.Name)
}

func TestMemoryStoreFindAllOrderingAndFilters(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	st := NewMemoryStoreWithClock(mock)
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{Key: "first", Name: "First", Status: flag.StatusStable, Tags: []string{"core"}, CreatedBy: "a"})
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = st.Create(ctx, CreateParams{Key: "second", Name: "Second", Status: flag.StatusBeta, Tags: []string{"core", "beta"}, CreatedBy: "a"})
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = st.Create(ctx, CreateParams{Key: "third", Name: "Third", Status: flag.StatusBeta, CreatedBy: "a"})
	require.NoError(t, err)

	all, err := st.FindAll(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Key)
	assert.Equal(t, "second", all[1].Key)
	assert.Equal(t, "first", all[2].Key)

	beta, err := st.FindAll(ctx, ListFilter{Status: flag.StatusBeta})
	require.NoError(t, err)
	require.Len(t, beta, 2)

	core, err := st.FindAll(ctx, ListFilter{Tag: "core"})
	require.NoError(t, err)
	require.Len(t, core, 2)

	both, err := st.FindAll(ctx, ListFilter{Status: flag.StatusBeta, Tag: "core"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "second", both[0].Key)
}

func TestMemoryStoreUpdate(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{Key: "upd", Name: "Before", Active: true, CreatedBy: "alice"})
	require.NoError(t, err)

	name := "After"
	active := false
	modifier := "bob"
	updated, err := st.Update(ctx, "upd", UpdateFields{
		Name:           &name,
		Active:         &active,
		LastModifiedBy: &modifier,
	})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Name)
	assert.False(t, updated.Active)
	assert.Equal(t, "bob", updated.LastModifiedBy)
	assert.Equal(t, "alice", updated.CreatedBy)
}

func TestMemoryStoreUpdatePartialLeavesOtherFields(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{
		Key: "partial", Name: "Keep Me", Description: "keep", Active: true, CreatedBy: "alice",
	})
	require.NoError(t, err)

	desc := "changed"
	updated, err := st.Update(ctx, "partial", UpdateFields{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Keep Me", updated.Name)
	assert.Equal(t, "changed", updated.Description)
	assert.True(t, updated.Active)
}

func TestMemoryStoreUpdateScheduledDates(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	when := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	_, err := st.Create(ctx, CreateParams{Key: "sched", Name: "Sched", CreatedBy: "a", ScheduledEnableAt: &when})
	require.NoError(t, err)

	// Setting the disable date leaves the enable date alone.
	updated, err := st.Update(ctx, "sched", UpdateFields{ScheduledDisableAt: &when})
	require.NoError(t, err)
	require.NotNil(t, updated.ScheduledEnableAt)
	require.NotNil(t, updated.ScheduledDisableAt)

	// Clearing is explicit, not a nil pointer.
	updated, err = st.Update(ctx, "sched", UpdateFields{ClearScheduledEnable: true, ClearScheduledDisable: true})
	require.NoError(t, err)
	assert.Nil(t, updated.ScheduledEnableAt)
	assert.Nil(t, updated.ScheduledDisableAt)
}

func TestMemoryStoreUpdateNotFound(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	name := "x"
	_, err := st.Update(context.Background(), "ghost", UpdateFields{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{Key: "gone", Name: "Gone", CreatedBy: "a"})
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, "gone"))
	_, err = st.FindByKey(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, st.Delete(ctx, "gone"), ErrNotFound)
}

func TestMemoryStoreListDueQueries(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	mustCreate := func(p CreateParams) {
		p.Name = p.Key
		p.CreatedBy = "a"
		_, err := st.Create(ctx, p)
		require.NoError(t, err)
	}

	mustCreate(CreateParams{Key: "due-enable", Active: false, ScheduledEnableAt: &past})
	mustCreate(CreateParams{Key: "future-enable", Active: false, ScheduledEnableAt: &future})
	mustCreate(CreateParams{Key: "already-active", Active: true, ScheduledEnableAt: &past})
	mustCreate(CreateParams{Key: "due-disable", Active: true, ScheduledDisableAt: &past})
	mustCreate(CreateParams{Key: "future-disable", Active: true, ScheduledDisableAt: &future})
	mustCreate(CreateParams{Key: "no-schedule", Active: true})

	dueEnable, err := st.ListDueForEnable(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueEnable, 1)
	assert.Equal(t, "due-enable", dueEnable[0].Key)

	dueDisable, err := st.ListDueForDisable(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueDisable, 1)
	assert.Equal(t, "due-disable", dueDisable[0].Key)
}

func TestMemoryStoreRecordEvaluation(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Create(ctx, CreateParams{Key: "counted", Name: "Counted", CreatedBy: "a"})
	require.NoError(t, err)

	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordEvaluation(ctx, "counted", at))
	require.NoError(t, st.RecordEvaluation(ctx, "counted", at.Add(time.Minute)))

	def, err := st.FindByKey(ctx, "counted")
	require.NoError(t, err)
	assert.Equal(t, int64(2), def.EvaluationCount)
	require.NotNil(t, def.LastEvaluatedAt)
	assert.True(t, def.LastEvaluatedAt.Equal(at.Add(time.Minute)))

	// Best-effort: a missing key is not an error.
	assert.NoError(t, st.RecordEvaluation(ctx, "ghost", at))
}
