package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/observability"
	"github.com/veigo-labs/flagward/internal/store"
)

// Invalidator evicts a flag from the read cache after the reconciler
// changed it. The cache implements it.
type Invalidator interface {
	Invalidate(key string)
}

// Config holds the runner settings.
type Config struct {
	// Interval is the duration between reconciliation cycles.
	Interval time.Duration

	// Environment is the ambient environment whose enabled switch the
	// scheduled transitions flip.
	Environment flag.Environment
}

// Runner executes reconciliation on a fixed period.
type Runner struct {
	logger *slog.Logger
	cfg    Config
	store  store.FlagStore
	cache  Invalidator
	lock   LeaderLock
	clk    clock.Clock
}

// NewRunner creates a reconciler runner. lock may be a NoopLock for
// single-instance deployments; clk may be nil for the wall clock.
func NewRunner(logger *slog.Logger, cfg Config, st store.FlagStore, cache Invalidator, lock LeaderLock, clk clock.Clock) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		panic("reconciler: flag store cannot be nil")
	}
	if cache == nil {
		panic("reconciler: cache invalidator cannot be nil")
	}
	if lock == nil {
		lock = NoopLock{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval < time.Minute {
		cfg.Interval = time.Hour // safe default
	}
	if !cfg.Environment.Valid() {
		panic("reconciler: ambient environment is not valid")
	}

	return &Runner{
		logger: logger,
		cfg:    cfg,
		store:  st,
		cache:  cache,
		lock:   lock,
		clk:    clk,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting reconciler",
		slog.String("interval", r.cfg.Interval.String()),
		slog.String("environment", string(r.cfg.Environment)),
	)

	ticker := r.clk.Ticker(r.cfg.Interval)
	defer ticker.Stop()

	// Run once immediately on startup so overdue schedules are not left
	// pending for a full interval after a deploy.
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("initial reconciliation failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping...")
			return nil
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				// Log and retry on the next tick; the dates stay set
				// until a cycle succeeds.
				r.logger.Error("reconciliation cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single reconciliation cycle. When a leader lock is
// configured and held elsewhere, the cycle is skipped, not queued: the
// holding instance covers it.
func (r *Runner) RunOnce(ctx context.Context) error {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		observability.ReconcilerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to acquire reconciler lease: %w", err)
	}
	if !acquired {
		observability.ReconcilerRuns.WithLabelValues("skipped_not_leader").Inc()
		r.logger.Debug("skipping reconciliation, lease held elsewhere")
		return nil
	}
	defer func() {
		if err := r.lock.Release(ctx); err != nil {
			r.logger.Warn("failed to release reconciler lease", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	now := r.clk.Now()

	dueEnable, err := r.store.ListDueForEnable(ctx, now)
	if err != nil {
		observability.ReconcilerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to list flags due for enable: %w", err)
	}
	dueDisable, err := r.store.ListDueForDisable(ctx, now)
	if err != nil {
		observability.ReconcilerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to list flags due for disable: %w", err)
	}

	actions := Plan(now, r.cfg.Environment, dueEnable, dueDisable)

	applied := 0
	for _, action := range actions {
		if err := r.apply(ctx, action); err != nil {
			// Keep going: one failing flag must not block the batch.
			// The date stays set, so the next cycle retries it.
			r.logger.Warn("failed to apply scheduled transition",
				slog.String("flag_key", action.Def.Key),
				slog.String("transition", string(action.Transition)),
				slog.String("error", err.Error()),
			)
			continue
		}
		applied++
	}

	observability.ReconcilerRuns.WithLabelValues("success").Inc()
	observability.ReconcilerDuration.Observe(time.Since(start).Seconds())

	if len(actions) > 0 {
		r.logger.Info("reconciliation cycle completed",
			slog.Int("planned", len(actions)),
			slog.Int("applied", applied),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return nil
}

// apply flips the environment switch, consumes the one-shot date, and
// evicts the flag from the cache so the change is visible immediately.
func (r *Runner) apply(ctx context.Context, action Action) error {
	envs := make(map[flag.Environment]flag.EnvironmentConfig, len(action.Def.Environments))
	for env, cfg := range action.Def.Environments {
		envs[env] = cfg
	}

	cfg := envs[action.Environment]
	cfg.Enabled = action.Transition == TransitionEnable
	envs[action.Environment] = cfg

	fields := store.UpdateFields{Environments: &envs}
	switch action.Transition {
	case TransitionEnable:
		fields.ClearScheduledEnable = true
	case TransitionDisable:
		fields.ClearScheduledDisable = true
	}

	if _, err := r.store.Update(ctx, action.Def.Key, fields); err != nil {
		return err
	}
	r.cache.Invalidate(action.Def.Key)

	observability.ReconcilerTransitions.WithLabelValues(string(action.Transition)).Inc()
	r.logger.Info("applied scheduled transition",
		slog.String("flag_key", action.Def.Key),
		slog.String("transition", string(action.Transition)),
		slog.String("environment", string(action.Environment)),
	)
	return nil
}
