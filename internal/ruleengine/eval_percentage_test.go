package ruleengine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veigo-labs/flagward/internal/flag"
)

func TestPercentageEvalBoundaries(t *testing.T) {
	t.Parallel()

	eval := &PercentageEvaluator{}

	tests := []struct {
		name       string
		percentage int
		userID     string
		want       bool
		wantErr    bool
	}{
		{name: "zero percent admits nobody", percentage: 0, userID: "user-42", want: false},
		{name: "hundred percent admits everybody", percentage: 100, userID: "user-42", want: true},
		{name: "empty user id never matches", percentage: 100, userID: "", want: false},
		{name: "negative percentage is an error", percentage: -1, userID: "user-42", wantErr: true},
		{name: "percentage above 100 is an error", percentage: 101, userID: "user-42", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := flag.TargetingRule{Type: flag.RuleTypePercentage, Percentage: tt.percentage}
			got, err := eval.Eval(rule, flag.EvaluationContext{UserID: tt.userID})

			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBucketIsDeterministic(t *testing.T) {
	t.Parallel()

	// The same user must land in the same bucket on every call; that is
	// what keeps a user from flickering in and out of a rollout.
	for i := 0; i < 50; i++ {
		userID := fmt.Sprintf("user-%d", i)
		first := Bucket(userID)
		for j := 0; j < 10; j++ {
			assert.Equal(t, first, Bucket(userID), "bucket changed for %s", userID)
		}
		assert.GreaterOrEqual(t, first, 1)
		assert.LessOrEqual(t, first, 100)
	}
}

func TestPercentageStickinessAcrossEvaluations(t *testing.T) {
	t.Parallel()

	eval := &PercentageEvaluator{}
	rule := flag.TargetingRule{Type: flag.RuleTypePercentage, Percentage: 50}
	ectx := flag.EvaluationContext{UserID: "sticky-user"}

	first, err := eval.Eval(rule, ectx)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		got, err := eval.Eval(rule, ectx)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestPercentageDistribution(t *testing.T) {
	t.Parallel()

	// Over a large population the admitted fraction should approximate the
	// configured percentage. Murmur3 distributes well, so a 3-point
	// tolerance on 10k users is generous.
	const population = 10_000

	for _, percentage := range []int{10, 25, 50, 75, 90} {
		percentage := percentage
		t.Run(fmt.Sprintf("%d_percent", percentage), func(t *testing.T) {
			t.Parallel()

			admitted := 0
			for i := 0; i < population; i++ {
				if Bucket(fmt.Sprintf("user-%d", i)) <= percentage {
					admitted++
				}
			}

			got := float64(admitted) / population * 100
			assert.InDelta(t, float64(percentage), got, 3.0)
		})
	}
}

func TestPercentageMonotonicRamp(t *testing.T) {
	t.Parallel()

	// Raising the percentage must only ever add users: anyone admitted at
	// 20% stays admitted at 40%.
	for i := 0; i < 1_000; i++ {
		userID := fmt.Sprintf("ramp-user-%d", i)
		bucket := Bucket(userID)
		if bucket <= 20 {
			assert.LessOrEqual(t, bucket, 40, "user admitted at 20%% dropped at 40%%")
		}
	}
}
