package ruleengine

import (
	"log/slog"

	"github.com/veigo-labs/flagward/internal/flag"
)

// Engine dispatches rules to their strategies and combines the results.
type Engine struct {
	strategies map[flag.RuleType]Evaluator
	logger     *slog.Logger
}

// New creates an Engine with the built-in strategies registered.
// A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger: logger,
		strategies: map[flag.RuleType]Evaluator{
			flag.RuleTypeUser:       &UserEvaluator{},
			flag.RuleTypeRole:       &RoleEvaluator{},
			flag.RuleTypeEmail:      &EmailEvaluator{},
			flag.RuleTypePercentage: &PercentageEvaluator{},
		},
	}
}

// Evaluate walks the rules in their stored order and returns true on the
// first match (rules within one flag are OR'd, never AND'd).
//
// When no rule matches the result is false: a non-empty targeting list
// never falls through to enabled. Unknown rule types and malformed rules
// are skipped fail-closed with a log line instead of aborting the walk.
func (e *Engine) Evaluate(rules []flag.TargetingRule, ectx flag.EvaluationContext) bool {
	for _, rule := range rules {
		strategy, exists := e.strategies[rule.Type]
		if !exists {
			e.logger.Warn("skipping unknown rule type", slog.String("type", string(rule.Type)))
			continue
		}

		match, err := strategy.Eval(rule, ectx)
		if err != nil {
			e.logger.Error("rule evaluation failed",
				slog.String("type", string(rule.Type)),
				slog.String("error", err.Error()),
			)
			continue
		}

		if match {
			return true
		}
	}

	return false
}
