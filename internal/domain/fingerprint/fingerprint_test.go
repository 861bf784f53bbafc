package fingerprint

import (
	"testing"

	"github.com/brandcraft/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestCompute(t *testing.T) {
	base := &model.Task{
		CallerID:   "caller-a",
		Kind:       "social_post",
		BudgetTier: model.BudgetTierMedium,
		Priority:   model.PriorityNormal,
		Params: map[string]any{
			"platform":  "linkedin",
			"objective": "awareness",
			"keywords":  []any{"coffee", "roastery"},
			"tone":      "Friendly",
		},
	}

	t.Run("ignores caller, priority and flags", func(t *testing.T) {
		other := base.Clone()
		other.CallerID = "caller-b"
		other.Priority = model.PriorityLow
		other.Cacheable = boolPtr(false)
		other.Retryable = true

		a, err := Compute(base)
		require.NoError(t, err)
		b, err := Compute(other)
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("normalizes case, whitespace and keyword order", func(t *testing.T) {
		other := base.Clone()
		other.Kind = "  Social_Post "
		other.Params = map[string]any{
			"Platform":  "LinkedIn",
			"objective": "awareness ",
			"keywords":  []string{"Roastery", "coffee"},
			"tone":      "friendly",
		}

		a, _ := Compute(base)
		b, _ := Compute(other)
		assert.Equal(t, a, b)
	})

	t.Run("differs on parameters", func(t *testing.T) {
		other := base.Clone()
		other.Params = map[string]any{"platform": "instagram"}

		a, _ := Compute(base)
		b, _ := Compute(other)
		assert.NotEqual(t, a, b)
	})

	t.Run("differs on budget tier", func(t *testing.T) {
		other := base.Clone()
		other.BudgetTier = model.BudgetTierHigh

		a, _ := Compute(base)
		b, _ := Compute(other)
		assert.NotEqual(t, a, b)
	})

	t.Run("unset risk profile equals moderate", func(t *testing.T) {
		other := base.Clone()
		other.RiskProfile = model.RiskProfileModerate

		a, _ := Compute(base)
		b, _ := Compute(other)
		assert.Equal(t, a, b)
	})
}

func TestCompute_CollidingKeys(t *testing.T) {
	task := func() *model.Task {
		return &model.Task{
			Kind:       "tagline",
			BudgetTier: model.BudgetTierLow,
			Params:     map[string]any{"Tone": "playful", "tone": "formal", "brand": "Northwind"},
		}
	}
	want, err := Compute(task())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		got, err := Compute(task())
		require.NoError(t, err)
		require.Equal(t, want, got, "digest must not depend on map iteration order")
	}

	lower, err := Compute(&model.Task{
		Kind:       "tagline",
		BudgetTier: model.BudgetTierLow,
		Params:     map[string]any{"tone": "formal", "brand": "Northwind"},
	})
	require.NoError(t, err)
	assert.Equal(t, lower, want, "the lowercase key sorts last and wins")
}
