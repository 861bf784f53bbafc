package validator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads a YAML policy file. Fields missing from the file keep their defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over DefaultPolicy.
func ParsePolicy(data []byte) (*Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if policy.MinMeanSentence > policy.MaxMeanSentence {
		return nil, fmt.Errorf("parse policy: min_mean_sentence %d exceeds max_mean_sentence %d",
			policy.MinMeanSentence, policy.MaxMeanSentence)
	}
	return policy, nil
}
