// Package cli implements creativectl, the operator command line for scoring copy,
// inspecting fingerprints and prices, and running dispatches locally.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/shared/config"
)

// Options holds flags shared by every command.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "creativectl",
		Short:         "Operate the creative dispatch pipeline from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: search ./config.yaml, ./configs, /etc/creative)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log pipeline events to stderr")

	root.AddCommand(
		newScoreCommand(opts),
		newFingerprintCommand(),
		newPriceCommand(opts),
		newDispatchCommand(opts),
	)
	return root
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// readInput reads a file, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// loadTask parses a YAML task file.
func loadTask(cmd *cobra.Command, path string) (*model.Task, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	var task model.Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parse task: %w", err)
	}
	if task.Priority == "" {
		task.Priority = model.PriorityNormal
	}
	return &task, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
