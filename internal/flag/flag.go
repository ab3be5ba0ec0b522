// Package flag defines the feature flag domain model shared by the store,
// the cache, the rule engine, and the evaluation service.
package flag

import (
	"fmt"
	"time"
)

// Environment identifies one of the deployment environments a flag can be
// configured for. Evaluation always resolves against exactly one environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Environments returns all known environments in a stable order.
func Environments() []Environment {
	return []Environment{EnvDevelopment, EnvStaging, EnvProduction}
}

// Valid reports whether e is one of the known environments.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	}
	return false
}

// Status is the informational lifecycle stage of a flag.
// It never gates evaluation; it exists for admin categorization.
type Status string

const (
	StatusDevelopment Status = "development"
	StatusBeta        Status = "beta"
	StatusStable      Status = "stable"
	StatusDeprecated  Status = "deprecated"
)

// Valid reports whether s is one of the known lifecycle stages.
func (s Status) Valid() bool {
	switch s {
	case StatusDevelopment, StatusBeta, StatusStable, StatusDeprecated:
		return true
	}
	return false
}

// RuleType is the discriminator that selects the targeting strategy.
type RuleType string

const (
	RuleTypeUser       RuleType = "user"
	RuleTypeRole       RuleType = "role"
	RuleTypeEmail      RuleType = "email"
	RuleTypePercentage RuleType = "percentage"
)

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeUser, RuleTypeRole, RuleTypeEmail, RuleTypePercentage:
		return true
	}
	return false
}

// TargetingRule is a single targeting condition. Rules inside one
// environment's targeting list are OR'd: the first matching rule wins.
type TargetingRule struct {
	// Type selects the matching strategy.
	Type RuleType `json:"type"`

	// Values holds the membership set for user/role/email rules.
	// It is ignored by percentage rules.
	Values []string `json:"values,omitempty"`

	// Percentage is the rollout fraction (0-100) for percentage rules.
	// It is ignored by membership rules.
	Percentage int `json:"percentage,omitempty"`
}

// Validate enforces the structural invariants of a rule at the mutation
// boundary. Evaluation assumes rules have already passed this check.
func (r TargetingRule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	if r.Type == RuleTypePercentage {
		if r.Percentage < 0 || r.Percentage > 100 {
			return fmt.Errorf("percentage must be between 0 and 100, got %d", r.Percentage)
		}
		return nil
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%s rule requires at least one value", r.Type)
	}
	return nil
}

// EnvironmentConfig holds the per-environment switch and targeting rules.
type EnvironmentConfig struct {
	Enabled   bool            `json:"enabled"`
	Targeting []TargetingRule `json:"targeting,omitempty"`
}

// Definition is the persisted feature flag entity.
type Definition struct {
	// Key is the globally unique, immutable natural identifier.
	// Evaluation is always by key.
	Key string `json:"key"`

	// Name and Description are display metadata.
	Name        string `json:"name"`
	Description string `json:"description"`

	// Active is the master switch. When false the flag evaluates to
	// disabled regardless of any environment configuration.
	Active bool `json:"active"`

	// Status is informational only and never gates evaluation.
	Status Status `json:"status"`

	// Tags categorize the flag for admin tooling.
	Tags []string `json:"tags,omitempty"`

	// Environments maps each environment to its switch and targeting.
	Environments map[Environment]EnvironmentConfig `json:"environments"`

	// ScheduledEnableAt and ScheduledDisableAt are one-shot triggers
	// consumed (cleared) by the reconciler once acted upon.
	ScheduledEnableAt  *time.Time `json:"scheduled_enable_at,omitempty"`
	ScheduledDisableAt *time.Time `json:"scheduled_disable_at,omitempty"`

	// EvaluationCount and LastEvaluatedAt are eventually-consistent usage
	// statistics updated best-effort off the evaluation path.
	EvaluationCount int64      `json:"evaluation_count"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`

	// CreatedBy and LastModifiedBy are audit references.
	CreatedBy      string `json:"created_by"`
	LastModifiedBy string `json:"last_modified_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnvConfig returns the configuration for the given environment.
// The second return value is false when the environment is not configured.
func (d *Definition) EnvConfig(env Environment) (EnvironmentConfig, bool) {
	cfg, ok := d.Environments[env]
	return cfg, ok
}

// Clone returns a deep copy of the definition. The in-memory store and the
// cache hand out clones so callers can never mutate shared state.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	if d.Tags != nil {
		out.Tags = append([]string(nil), d.Tags...)
	}
	if d.Environments != nil {
		out.Environments = make(map[Environment]EnvironmentConfig, len(d.Environments))
		for env, cfg := range d.Environments {
			cloned := cfg
			if cfg.Targeting != nil {
				cloned.Targeting = make([]TargetingRule, len(cfg.Targeting))
				for i, rule := range cfg.Targeting {
					cloned.Targeting[i] = rule
					if rule.Values != nil {
						cloned.Targeting[i].Values = append([]string(nil), rule.Values...)
					}
				}
			}
			out.Environments[env] = cloned
		}
	}
	out.ScheduledEnableAt = cloneTime(d.ScheduledEnableAt)
	out.ScheduledDisableAt = cloneTime(d.ScheduledDisableAt)
	out.LastEvaluatedAt = cloneTime(d.LastEvaluatedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// EvaluationContext carries the identity attributes of the caller being
// evaluated. It is transient and never persisted. All fields are optional;
// an empty Environment falls back to the service's ambient environment.
type EvaluationContext struct {
	UserID      string      `json:"user_id,omitempty"`
	UserEmail   string      `json:"user_email,omitempty"`
	UserRole    string      `json:"user_role,omitempty"`
	Environment Environment `json:"environment,omitempty"`
}
