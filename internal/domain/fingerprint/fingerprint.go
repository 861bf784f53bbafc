package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/brandcraft/server/internal/model"
)

// Compute returns the stable digest of the output-affecting fields of a task.
// Caller identity, priority, the cacheable and retryable flags and the timeout are excluded.
func Compute(task *model.Task) (string, error) {
	canonical := struct {
		Kind        string            `json:"kind"`
		BudgetTier  model.BudgetTier  `json:"budget_tier"`
		RiskProfile model.RiskProfile `json:"risk_profile"`
		Params      any               `json:"params"`
	}{
		Kind:        normalizeString(task.Kind),
		BudgetTier:  task.BudgetTier,
		RiskProfile: task.EffectiveRiskProfile(),
		Params:      normalize(task.Params),
	}

	// encoding/json sorts map keys, which makes the encoding canonical.
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint input: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// normalize lowercases and trims strings, lowercases map keys and sorts
// string lists so that keyword order does not change the digest.
// Keys that collide after lowercasing keep the value of the last key in byte order.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return normalizeString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			out[normalizeString(k)] = normalize(val[k])
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			out[normalizeString(k)] = normalizeString(val[k])
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = normalizeString(item)
		}
		sort.Strings(out)
		return out
	case []any:
		out := make([]any, len(val))
		allStrings := true
		for i, item := range val {
			out[i] = normalize(item)
			if _, ok := out[i].(string); !ok {
				allStrings = false
			}
		}
		if allStrings {
			sort.Slice(out, func(i, j int) bool {
				return out[i].(string) < out[j].(string)
			})
		}
		return out
	default:
		return val
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeString(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
