// Package validator scores generated marketing text with a cheap, deterministic heuristic.
package validator

import (
	"fmt"
	"strings"

	"github.com/brandcraft/server/internal/model"
)

// IssueUnnaturalSentences is reported when the mean sentence length leaves the natural band.
const IssueUnnaturalSentences = "unnatural sentence length distribution"

// IssueScaffolding is reported when auto-generated scaffolding is detected.
const IssueScaffolding = "auto-generated scaffolding detected"

// Policy holds the validator's word lists and thresholds.
type Policy struct {
	GenericTerms       []string `mapstructure:"generic_terms" yaml:"generic_terms"`
	Cliches            []string `mapstructure:"cliches" yaml:"cliches"`
	ScaffoldingMarkers []string `mapstructure:"scaffolding_markers" yaml:"scaffolding_markers"`

	GenericPenalty     int `mapstructure:"generic_penalty" yaml:"generic_penalty"`
	ClichePenalty      int `mapstructure:"cliche_penalty" yaml:"cliche_penalty"`
	ScaffoldingPenalty int `mapstructure:"scaffolding_penalty" yaml:"scaffolding_penalty"`
	SentencePenalty    int `mapstructure:"sentence_penalty" yaml:"sentence_penalty"`

	MinSentenceChars int `mapstructure:"min_sentence_chars" yaml:"min_sentence_chars"`
	MinMeanSentence  int `mapstructure:"min_mean_sentence" yaml:"min_mean_sentence"`
	MaxMeanSentence  int `mapstructure:"max_mean_sentence" yaml:"max_mean_sentence"`
	PassThreshold    int `mapstructure:"pass_threshold" yaml:"pass_threshold"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	return &Policy{
		GenericTerms: []string{
			"lorem ipsum",
			"placeholder",
			"insert here",
			"your brand name",
			"[product]",
			"[company]",
			"click here",
			"tbd",
		},
		Cliches: []string{
			"game changer",
			"game-changer",
			"take it to the next level",
			"in today's fast-paced world",
			"think outside the box",
			"unlock your potential",
			"best-in-class",
			"synergy",
			"look no further",
			"revolutionize the way",
		},
		ScaffoldingMarkers: []string{
			"as an ai language model",
			"here is the generated",
			"here's a draft",
			"// this function",
			"# this function",
			"<!-- generated",
			"todo:",
		},
		GenericPenalty:     5,
		ClichePenalty:      10,
		ScaffoldingPenalty: 5,
		SentencePenalty:    5,
		MinSentenceChars:   10,
		MinMeanSentence:    20,
		MaxMeanSentence:    200,
		PassThreshold:      85,
	}
}

// Validator scores text against a policy. It is safe for concurrent use.
type Validator struct {
	policy   Policy
	generic  []string
	cliches  []string
	scaffold []string
}

// New creates a validator. A nil policy selects DefaultPolicy.
func New(policy *Policy) *Validator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Validator{
		policy:   *policy,
		generic:  lowerAll(policy.GenericTerms),
		cliches:  lowerAll(policy.Cliches),
		scaffold: lowerAll(policy.ScaffoldingMarkers),
	}
}

// Policy returns a copy of the active policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Score inspects text and returns its validation result. It is a pure function of text.
func (v *Validator) Score(text string) model.ValidationResult {
	lower := strings.ToLower(text)
	score := 100
	issues := make([]string, 0)

	for i, term := range v.generic {
		if term != "" && strings.Contains(lower, term) {
			score -= v.policy.GenericPenalty
			issues = append(issues, fmt.Sprintf("generic term: %q", v.policy.GenericTerms[i]))
		}
	}

	for i, phrase := range v.cliches {
		if phrase != "" && strings.Contains(lower, phrase) {
			score -= v.policy.ClichePenalty
			issues = append(issues, fmt.Sprintf("cliche: %q", v.policy.Cliches[i]))
		}
	}

	for _, marker := range v.scaffold {
		if marker != "" && strings.Contains(lower, marker) {
			score -= v.policy.ScaffoldingPenalty
			issues = append(issues, IssueScaffolding)
			break
		}
	}

	if mean, ok := v.meanSentenceLength(text); ok {
		if mean < float64(v.policy.MinMeanSentence) || mean > float64(v.policy.MaxMeanSentence) {
			score -= v.policy.SentencePenalty
			issues = append(issues, IssueUnnaturalSentences)
		}
	}

	score = clamp(score, 0, 100)

	return model.ValidationResult{
		Score:  score,
		Passed: score >= v.policy.PassThreshold,
		Issues: issues,
	}
}

// meanSentenceLength returns the mean character length of sentences longer than
// MinSentenceChars. ok is false when no sentence qualifies.
func (v *Validator) meanSentenceLength(text string) (float64, bool) {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	total, count := 0, 0
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		n := len([]rune(s))
		if n > v.policy.MinSentenceChars {
			total += n
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return float64(total) / float64(count), true
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
