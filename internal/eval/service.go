// Package eval implements the flag evaluation decision policy.
//
// The contract is fail-safe: IsEnabled never returns an error and never
// panics outward. Any internal failure (store outage, corrupt definition,
// programming error) degrades to "disabled". A guard that merely checks a
// flag must never break the request it is guarding, and an error must
// never accidentally enable a feature.
package eval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/observability"
	"github.com/veigo-labs/flagward/internal/ruleengine"
	"github.com/veigo-labs/flagward/internal/store"
)

// Decision reasons, used as metric labels and in debug logs.
const (
	reasonNotFound       = "not_found"
	reasonError          = "error"
	reasonInactive       = "inactive"
	reasonBeforeSchedule = "before_schedule"
	reasonAfterSchedule  = "after_schedule"
	reasonEnvDisabled    = "env_disabled"
	reasonTargeting      = "targeting"
	reasonDefault        = "default"
)

// statsTimeout bounds the background usage-statistics write.
const statsTimeout = 5 * time.Second

// FlagSource resolves a flag definition by key. In production this is the
// read-through cache; tests may plug the store in directly.
type FlagSource interface {
	Get(ctx context.Context, key string) (*flag.Definition, error)
}

// StatsRecorder receives best-effort usage statistics. The store
// implements it.
type StatsRecorder interface {
	RecordEvaluation(ctx context.Context, key string, at time.Time) error
}

// Service orchestrates cache/store lookup, master-switch, schedule, and
// environment checks, delegating targeting to the rule engine.
type Service struct {
	logger     *slog.Logger
	flags      FlagSource
	stats      StatsRecorder
	engine     *ruleengine.Engine
	ambientEnv flag.Environment
	clk        clock.Clock
}

// New creates an evaluation service.
//
// ambientEnv is the process-wide environment used when the evaluation
// context does not name one. A nil clock falls back to the wall clock.
func New(logger *slog.Logger, flags FlagSource, stats StatsRecorder, engine *ruleengine.Engine, ambientEnv flag.Environment, clk clock.Clock) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if flags == nil {
		panic("eval: flag source cannot be nil")
	}
	if stats == nil {
		panic("eval: stats recorder cannot be nil")
	}
	if engine == nil {
		panic("eval: rule engine cannot be nil")
	}
	if !ambientEnv.Valid() {
		panic("eval: ambient environment is not valid")
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		logger:     logger,
		flags:      flags,
		stats:      stats,
		engine:     engine,
		ambientEnv: ambientEnv,
		clk:        clk,
	}
}

// IsEnabled reports whether the flag identified by key is enabled for the
// given context. The decision policy, terminal at the first disabling
// branch:
//
//  1. unknown key                          -> false
//  2. master switch off                    -> false
//  3. before the scheduled enable date     -> false
//  4. at/after the scheduled disable date  -> false
//  5. environment absent or disabled       -> false
//  6. non-empty targeting list             -> rule engine result, verbatim
//  7. otherwise                            -> true (+ async usage stats)
func (s *Service) IsEnabled(ctx context.Context, key string, ectx flag.EvaluationContext) (enabled bool) {
	start := time.Now()
	defer func() {
		observability.EvalDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			s.logger.Error("panic during flag evaluation",
				slog.String("flag_key", key),
				slog.Any("panic", r),
			)
			observability.EvalTotal.WithLabelValues("false", reasonError).Inc()
			enabled = false
		}
	}()

	def, err := s.flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown flags must never silently default to enabled.
			s.logger.Warn("evaluated unknown flag", slog.String("flag_key", key))
			return s.decide(false, reasonNotFound)
		}
		s.logger.Error("failed to resolve flag",
			slog.String("flag_key", key),
			slog.String("error", err.Error()),
		)
		return s.decide(false, reasonError)
	}

	if !def.Active {
		return s.decide(false, reasonInactive)
	}

	now := s.clk.Now()
	if def.ScheduledEnableAt != nil && now.Before(*def.ScheduledEnableAt) {
		return s.decide(false, reasonBeforeSchedule)
	}
	if def.ScheduledDisableAt != nil && !now.Before(*def.ScheduledDisableAt) {
		// Redundant with the reconciler clearing the date later; both
		// paths must agree so the flag is off the moment the date passes.
		return s.decide(false, reasonAfterSchedule)
	}

	env := ectx.Environment
	if env == "" {
		env = s.ambientEnv
	}

	envCfg, ok := def.EnvConfig(env)
	if !ok || !envCfg.Enabled {
		return s.decide(false, reasonEnvDisabled)
	}

	if len(envCfg.Targeting) > 0 {
		// Terminal: a false targeting result never falls through to true.
		return s.decide(s.engine.Evaluate(envCfg.Targeting, ectx), reasonTargeting)
	}

	s.recordUsage(key, now)
	return s.decide(true, reasonDefault)
}

// AllEnabled reports whether every one of the given flags is enabled for
// the context. Composition across distinct flag keys is AND; rules within
// a single flag remain OR'd.
func (s *Service) AllEnabled(ctx context.Context, keys []string, ectx flag.EvaluationContext) bool {
	for _, key := range keys {
		if !s.IsEnabled(ctx, key, ectx) {
			return false
		}
	}
	return true
}

// decide records the decision metric and returns the result.
func (s *Service) decide(result bool, reason string) bool {
	label := "false"
	if result {
		label = "true"
	}
	observability.EvalTotal.WithLabelValues(label, reason).Inc()
	return result
}

// recordUsage bumps the flag's evaluation statistics in the background.
// Fire-and-forget: lost updates under load are acceptable, and a failure
// must never change the returned boolean or reach the caller.
func (s *Service) recordUsage(key string, at time.Time) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recording evaluation stats", slog.Any("panic", r))
			}
		}()

		// Detached from the request context: the caller's request may be
		// long gone by the time this write lands.
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()

		if err := s.stats.RecordEvaluation(ctx, key, at); err != nil {
			observability.EvalStatsFailures.Inc()
			s.logger.Debug("failed to record evaluation stats",
				slog.String("flag_key", key),
				slog.String("error", err.Error()),
			)
		}
	}()
}
