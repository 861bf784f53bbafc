package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brandcraft/server/internal/domain/validator"
)

// ErrValidationFailed is returned by score --strict when the text does not pass.
var ErrValidationFailed = errors.New("validation failed")

func newScoreCommand(opts *Options) *cobra.Command {
	var (
		policyPath string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "score [file|-]",
		Short: "Score copy against the content policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			text, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read text: %w", err)
			}

			v, err := buildValidator(opts, policyPath)
			if err != nil {
				return err
			}

			result := v.Score(strings.TrimSpace(string(text)))
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if strict && !result.Passed {
				return fmt.Errorf("%w: score %d", ErrValidationFailed, result.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "policy file overriding the configured one")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the text does not pass")
	return cmd
}

// buildValidator prefers an explicit policy file, then the configured one, then the built-in policy.
func buildValidator(opts *Options, policyPath string) (*validator.Validator, error) {
	if policyPath == "" && opts.ConfigPath != "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return nil, err
		}
		policyPath = cfg.Validator.PolicyFile
	}
	if policyPath == "" {
		return validator.New(nil), nil
	}
	policy, err := validator.LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}
	return validator.New(policy), nil
}
