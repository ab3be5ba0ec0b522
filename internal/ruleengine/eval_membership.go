package ruleengine

import (
	"slices"

	"github.com/veigo-labs/flagward/internal/flag"
)

// The three membership strategies share the same shape: pick one attribute
// off the context and test it against the rule's value set. An empty
// attribute can never match an allow-list.

// UserEvaluator matches when the context's user ID is in the rule values.
type UserEvaluator struct{}

func (e *UserEvaluator) Eval(rule flag.TargetingRule, ectx flag.EvaluationContext) (bool, error) {
	return matchMembership(ectx.UserID, rule.Values), nil
}

// RoleEvaluator matches when the context's role is in the rule values.
type RoleEvaluator struct{}

func (e *RoleEvaluator) Eval(rule flag.TargetingRule, ectx flag.EvaluationContext) (bool, error) {
	return matchMembership(ectx.UserRole, rule.Values), nil
}

// EmailEvaluator matches when the context's email is in the rule values.
type EmailEvaluator struct{}

func (e *EmailEvaluator) Eval(rule flag.TargetingRule, ectx flag.EvaluationContext) (bool, error) {
	return matchMembership(ectx.UserEmail, rule.Values), nil
}

func matchMembership(attr string, values []string) bool {
	if attr == "" {
		return false
	}
	return slices.Contains(values, attr)
}
