// Package ruleengine evaluates targeting rules against an evaluation
// context. Each rule type is a strategy; the engine dispatches on the
// rule's type discriminator.
package ruleengine

import "github.com/veigo-labs/flagward/internal/flag"

// Evaluator is the interface every rule strategy implements.
type Evaluator interface {
	// Eval reports whether the context satisfies the rule.
	//
	// A false result with a nil error is a mismatch. A non-nil error
	// signals a malformed rule (e.g. percentage out of range); the engine
	// treats it as a mismatch and logs it, never propagating it upward.
	Eval(rule flag.TargetingRule, ectx flag.EvaluationContext) (bool, error)
}
