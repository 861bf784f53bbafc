package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brandcraft/server/internal/domain/fingerprint"
)

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [task.yaml|-]",
		Short: "Print the cache fingerprint of a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			task, err := loadTask(cmd, path)
			if err != nil {
				return err
			}
			fp, err := fingerprint.Compute(task)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fp)
			return err
		},
	}
}
