package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/veigo-labs/flagward/internal/flag"
)

// Compile-time check to verify that MemoryStore implements FlagStore.
var _ FlagStore = (*MemoryStore)(nil)

// MemoryStore is a mutex-protected FlagStore kept entirely in memory.
// It backs unit tests and local development where PostgreSQL is overkill.
// All reads and writes operate on deep clones, so callers can never mutate
// stored state through a returned pointer.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]*flag.Definition
	// seq preserves insertion order so FindAll can break created-at ties
	// deterministically (fake clocks often produce identical timestamps).
	seq map[string]int64
	n   int64
	clk clock.Clock
}

// NewMemoryStore creates an empty in-memory store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clock.New())
}

// NewMemoryStoreWithClock creates an in-memory store with an injected
// clock, which lets tests control created/updated timestamps.
func NewMemoryStoreWithClock(clk clock.Clock) *MemoryStore {
	if clk == nil {
		panic("store: clock cannot be nil")
	}
	return &MemoryStore{
		flags: make(map[string]*flag.Definition),
		seq:   make(map[string]int64),
		clk:   clk,
	}
}

func (s *MemoryStore) FindByKey(_ context.Context, key string) (*flag.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.flags[key]
	if !ok {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

func (s *MemoryStore) FindAll(_ context.Context, filter ListFilter) ([]*flag.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]*flag.Definition, 0, len(s.flags))
	for _, def := range s.flags {
		if filter.Status != "" && def.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !slices.Contains(def.Tags, filter.Tag) {
			continue
		}
		defs = append(defs, def.Clone())
	}

	// Newest first, insertion order as the tie-breaker.
	slices.SortFunc(defs, func(a, b *flag.Definition) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return int(s.seq[b.Key] - s.seq[a.Key])
	})
	return defs, nil
}

func (s *MemoryStore) Create(_ context.Context, p CreateParams) (*flag.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flags[p.Key]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, p.Key)
	}

	now := s.clk.Now()
	envs := p.Environments
	if envs == nil {
		envs = map[flag.Environment]flag.EnvironmentConfig{}
	}
	def := &flag.Definition{
		Key:                p.Key,
		Name:               p.Name,
		Description:        p.Description,
		Active:             p.Active,
		Status:             p.Status,
		Tags:               p.Tags,
		Environments:       envs,
		ScheduledEnableAt:  p.ScheduledEnableAt,
		ScheduledDisableAt: p.ScheduledDisableAt,
		CreatedBy:          p.CreatedBy,
		LastModifiedBy:     p.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.n++
	s.seq[p.Key] = s.n
	s.flags[p.Key] = def.Clone()
	return def, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fields UpdateFields) (*flag.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.flags[key]
	if !ok {
		return nil, ErrNotFound
	}

	if fields.Name != nil {
		def.Name = *fields.Name
	}
	if fields.Description != nil {
		def.Description = *fields.Description
	}
	if fields.Active != nil {
		def.Active = *fields.Active
	}
	if fields.Status != nil {
		def.Status = *fields.Status
	}
	if fields.Tags != nil {
		def.Tags = append([]string(nil), (*fields.Tags)...)
	}
	if fields.Environments != nil {
		def.Environments = make(map[flag.Environment]flag.EnvironmentConfig, len(*fields.Environments))
		for env, cfg := range *fields.Environments {
			def.Environments[env] = cfg
		}
	}
	switch {
	case fields.ClearScheduledEnable:
		def.ScheduledEnableAt = nil
	case fields.ScheduledEnableAt != nil:
		t := *fields.ScheduledEnableAt
		def.ScheduledEnableAt = &t
	}
	switch {
	case fields.ClearScheduledDisable:
		def.ScheduledDisableAt = nil
	case fields.ScheduledDisableAt != nil:
		t := *fields.ScheduledDisableAt
		def.ScheduledDisableAt = &t
	}
	if fields.LastModifiedBy != nil {
		def.LastModifiedBy = *fields.LastModifiedBy
	}
	def.UpdatedAt = s.clk.Now()

	return def.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flags[key]; !ok {
		return ErrNotFound
	}
	delete(s.flags, key)
	delete(s.seq, key)
	return nil
}

func (s *MemoryStore) ListDueForEnable(_ context.Context, now time.Time) ([]*flag.Definition, error) {
	return s.listDue(now, false)
}

func (s *MemoryStore) ListDueForDisable(_ context.Context, now time.Time) ([]*flag.Definition, error) {
	return s.listDue(now, true)
}

func (s *MemoryStore) listDue(now time.Time, active bool) ([]*flag.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var defs []*flag.Definition
	for _, def := range s.flags {
		if def.Active != active {
			continue
		}
		due := def.ScheduledEnableAt
		if active {
			due = def.ScheduledDisableAt
		}
		if due == nil || due.After(now) {
			continue
		}
		defs = append(defs, def.Clone())
	}
	return defs, nil
}

func (s *MemoryStore) RecordEvaluation(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.flags[key]
	if !ok {
		// Best-effort: a flag deleted mid-flight is not worth an error.
		return nil
	}
	def.EvaluationCount++
	t := at
	def.LastEvaluatedAt = &t
	return nil
}
