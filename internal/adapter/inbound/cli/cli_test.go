package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandcraft/server/internal/model"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const taglineTask = `
kind: tagline
budget_tier: medium
params:
  brand: Northwind
  keywords: [coffee, mornings]
`

func TestScore(t *testing.T) {
	const cliched = "Synergy is a game changer for teams who need to think outside the box every day."

	t.Run("reads stdin", func(t *testing.T) {
		out, err := execute(t, cliched, "score")
		require.NoError(t, err)

		var result model.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 70, result.Score)
		assert.False(t, result.Passed)
		assert.Len(t, result.Issues, 3)
	})

	t.Run("strict fails below threshold", func(t *testing.T) {
		_, err := execute(t, cliched, "score", "--strict")
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("policy file overrides penalties", func(t *testing.T) {
		policy := writeFile(t, "policy.yaml", "cliche_penalty: 1\n")
		text := writeFile(t, "copy.txt", cliched)

		out, err := execute(t, "", "score", text, "--policy", policy, "--strict")
		require.NoError(t, err)
		assert.Contains(t, out, `"score": 97`)
	})
}

func TestFingerprint(t *testing.T) {
	a := writeFile(t, "a.yaml", taglineTask)
	b := writeFile(t, "b.yaml", `
kind: "  Tagline "
budget_tier: medium
priority: low
params:
  keywords: [mornings, coffee]
  brand: northwind
`)
	c := writeFile(t, "c.yaml", strings.Replace(taglineTask, "medium", "high", 1))

	fpA, err := execute(t, "", "fingerprint", a)
	require.NoError(t, err)
	fpB, err := execute(t, "", "fingerprint", b)
	require.NoError(t, err)
	fpC, err := execute(t, "", "fingerprint", c)
	require.NoError(t, err)

	assert.Len(t, strings.TrimSpace(fpA), 64)
	assert.Equal(t, fpA, fpB)
	assert.NotEqual(t, fpA, fpC)
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected Quote
	}{
		{
			name: "direct generation",
			args: []string{"--tier", "medium", "--input-tokens", "1000000", "--output-tokens", "100000"},
			expected: Quote{
				Tier: model.BudgetTierMedium, Kind: model.CostKindDirect,
				PreflightCredits: 5, AmountUSD: 4.5, AmountCredits: 450,
			},
		},
		{
			name: "quality discount",
			args: []string{"--tier", "low", "--input-tokens", "1000000", "--score", "92"},
			expected: Quote{
				Tier: model.BudgetTierLow, Kind: model.CostKindDirect,
				PreflightCredits: 2, AmountUSD: 2.7, QualityDiscountApplied: true, AmountCredits: 270,
			},
		},
		{
			name: "cache hit",
			args: []string{"--tier", "high", "--cache-hit"},
			expected: Quote{
				Tier: model.BudgetTierHigh, Kind: model.CostKindCacheHit,
				PreflightCredits: 10, AmountUSD: 0.01, AmountCredits: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"price"}, tt.args...)...)
			require.NoError(t, err)

			var quote Quote
			require.NoError(t, json.Unmarshal([]byte(out), &quote))
			assert.Equal(t, tt.expected.Tier, quote.Tier)
			assert.Equal(t, tt.expected.Kind, quote.Kind)
			assert.Equal(t, tt.expected.PreflightCredits, quote.PreflightCredits)
			assert.InDelta(t, tt.expected.AmountUSD, quote.AmountUSD, 1e-9)
			assert.Equal(t, tt.expected.QualityDiscountApplied, quote.QualityDiscountApplied)
			assert.Equal(t, tt.expected.AmountCredits, quote.AmountCredits)
		})
	}

	t.Run("unknown tier", func(t *testing.T) {
		_, err := execute(t, "", "price", "--tier", "platinum")
		assert.Error(t, err)
	})
}

func TestDispatch(t *testing.T) {
	t.Run("second submission is served from cache", func(t *testing.T) {
		out, err := execute(t, taglineTask, "dispatch", "--provider", "echo", "--caller", "acme", "--credits", "50", "--repeat", "2")
		require.NoError(t, err)

		var report DispatchReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Results, 2)
		assert.Equal(t, model.CostKindDirect, report.Results[0].Path)
		assert.Equal(t, model.CostKindCacheHit, report.Results[1].Path)
		for _, r := range report.Results {
			assert.Equal(t, model.DispatchStatusDone, r.Status)
			assert.Equal(t, "acme", r.CallerID)
		}
		assert.Equal(t, int64(48), report.Balance)
	})

	t.Run("low priority tasks drain before exit", func(t *testing.T) {
		task := writeFile(t, "low.yaml", taglineTask+"priority: low\n")
		out, err := execute(t, "", "dispatch", task, "--provider", "echo", "--repeat", "2")
		require.NoError(t, err)

		var report DispatchReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Results, 2)
		for _, r := range report.Results {
			assert.Equal(t, model.DispatchStatusDone, r.Status)
			assert.Contains(t, r.Trace, model.StateSettling)
		}
	})

	t.Run("insufficient credits is reported as failed", func(t *testing.T) {
		out, err := execute(t, taglineTask, "dispatch", "--provider", "echo", "--credits", "0")
		require.NoError(t, err)

		var report DispatchReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Results, 1)
		assert.Equal(t, model.DispatchStatusFailed, report.Results[0].Status)
		assert.Equal(t, int64(0), report.Balance)
	})

	t.Run("invalid task", func(t *testing.T) {
		_, err := execute(t, "kind: tagline\nbudget_tier: platinum\n", "dispatch", "--provider", "echo")
		assert.Error(t, err)
	})
}
