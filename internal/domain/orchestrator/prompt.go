package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brandcraft/server/internal/model"
)

// DefaultSystemPrompt is sent with every generation unless configured otherwise.
const DefaultSystemPrompt = "You write original, concise marketing copy. Return only the requested text."

// Temperature maps a risk profile to the sampling temperature.
func Temperature(profile model.RiskProfile) float64 {
	switch profile {
	case model.RiskProfileConservative:
		return 0.3
	case model.RiskProfileAggressive:
		return 0.9
	default:
		return 0.7
	}
}

// BuildPrompt renders a task as a plain-text instruction. Params are listed in key order
// so that equal tasks produce equal prompts.
func BuildPrompt(task *model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s.\n", strings.ReplaceAll(task.Kind, "_", " "))

	keys := make([]string, 0, len(task.Params))
	for k := range task.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, formatParam(task.Params[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatParam(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatParam(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		return fmt.Sprint(val)
	}
}
