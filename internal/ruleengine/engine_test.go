package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veigo-labs/flagward/internal/flag"
)

func TestEngineEvaluate(t *testing.T) {
	t.Parallel()

	engine := New(nil)

	tests := []struct {
		name  string
		rules []flag.TargetingRule
		ectx  flag.EvaluationContext
		want  bool
	}{
		{
			name:  "no rules returns false",
			rules: nil,
			ectx:  flag.EvaluationContext{UserID: "u1"},
			want:  false,
		},
		{
			name: "single matching user rule",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypeUser, Values: []string{"u1", "u2"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1"},
			want: true,
		},
		{
			name: "single non-matching user rule",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypeUser, Values: []string{"u2"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1"},
			want: false,
		},
		{
			name: "rules are OR'd, second rule matches",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypeUser, Values: []string{"someone-else"}},
				{Type: flag.RuleTypeRole, Values: []string{"admin"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1", UserRole: "admin"},
			want: true,
		},
		{
			name: "no rule matches returns false, never falls through",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypeUser, Values: []string{"other"}},
				{Type: flag.RuleTypeEmail, Values: []string{"other@example.com"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1", UserEmail: "u1@example.com"},
			want: false,
		},
		{
			name: "unknown rule type is skipped, later rule still matches",
			rules: []flag.TargetingRule{
				{Type: flag.RuleType("geo"), Values: []string{"BR"}},
				{Type: flag.RuleTypeUser, Values: []string{"u1"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1"},
			want: true,
		},
		{
			name: "unknown rule type alone fails closed",
			rules: []flag.TargetingRule{
				{Type: flag.RuleType("geo"), Values: []string{"BR"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1"},
			want: false,
		},
		{
			name: "malformed percentage rule is skipped, later rule matches",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypePercentage, Percentage: 150},
				{Type: flag.RuleTypeRole, Values: []string{"qa"}},
			},
			ectx: flag.EvaluationContext{UserID: "u1", UserRole: "qa"},
			want: true,
		},
		{
			name: "email rule matches",
			rules: []flag.TargetingRule{
				{Type: flag.RuleTypeEmail, Values: []string{"u1@example.com"}},
			},
			ectx: flag.EvaluationContext{UserEmail: "u1@example.com"},
			want: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, engine.Evaluate(tt.rules, tt.ectx))
		})
	}
}

func TestMembershipEmptyAttributeNeverMatches(t *testing.T) {
	t.Parallel()

	engine := New(nil)

	// A rule listing the empty string must not match an anonymous caller.
	rules := []flag.TargetingRule{
		{Type: flag.RuleTypeUser, Values: []string{""}},
		{Type: flag.RuleTypeRole, Values: []string{""}},
		{Type: flag.RuleTypeEmail, Values: []string{""}},
	}

	assert.False(t, engine.Evaluate(rules, flag.EvaluationContext{}))
}
