package ruleengine

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/veigo-labs/flagward/internal/flag"
)

// PercentageEvaluator implements gradual rollouts. It hashes the user ID
// with unseeded 32-bit Murmur3, so the same user always lands in the same
// bucket across calls, restarts, and process instances. That stickiness is
// the core correctness property of percentage rollouts: a user never
// flickers in and out of a rollout.
type PercentageEvaluator struct{}

// Eval maps the user ID onto a bucket in 1..100 and matches when the
// bucket falls at or below the configured percentage. percentage=0 admits
// nobody, percentage=100 admits everybody.
func (e *PercentageEvaluator) Eval(rule flag.TargetingRule, ectx flag.EvaluationContext) (bool, error) {
	if rule.Percentage < 0 || rule.Percentage > 100 {
		return false, fmt.Errorf("percentage out of range: %d", rule.Percentage)
	}

	// Without an identity there is no stable bucket; treat as a mismatch
	// rather than an error to avoid log spam on anonymous traffic.
	if ectx.UserID == "" {
		return false, nil
	}

	bucket := Bucket(ectx.UserID)
	return bucket <= rule.Percentage, nil
}

// Bucket returns the deterministic rollout bucket (1..100) for a user ID.
// Exported so operators can reproduce a user's bucket when debugging.
func Bucket(userID string) int {
	// Murmur3 with the zero seed is a pure function of the input string
	// and has excellent distribution for short keys.
	h := murmur3.Sum32([]byte(userID))
	return int(h%100) + 1
}
