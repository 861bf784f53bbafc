package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandcraft/server/internal/adapter/outbound/aiprovider"
	"github.com/brandcraft/server/internal/adapter/outbound/memory"
	"github.com/brandcraft/server/internal/domain/fingerprint"
	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/domain/orchestrator"
	"github.com/brandcraft/server/internal/infra/httpclient"
	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/shared/logger"
)

// DispatchReport is printed by the dispatch command.
type DispatchReport struct {
	Results []*model.DispatchResult `json:"results"`
	Balance int64                   `json:"balance"`
}

func newDispatchCommand(opts *Options) *cobra.Command {
	var (
		callerID string
		credits  int64
		repeat   int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "dispatch [task.yaml|-]",
		Short: "Run a task through the pipeline with in-memory stores",
		Long: "Runs a task through preflight, cache, generation, validation and settlement " +
			"against in-memory stores. Queued low priority tasks are flushed before exiting.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			task, err := loadTask(cmd, path)
			if err != nil {
				return err
			}
			task.CallerID = callerID

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Generation.Type = provider
			}

			log := zap.NewNop()
			if opts.Verbose {
				log = logger.New(&logger.Config{Level: "debug", Format: "text", Output: cmd.ErrOrStderr()})
			}
			defer func() { _ = log.Sync() }()

			gen, err := aiprovider.New(&cfg.Generation, httpclient.New(cfg.HTTPClient), log, nil)
			if err != nil {
				return err
			}
			balances := memory.NewBalanceStore(map[string]int64{callerID: credits})
			costLedger := ledger.NewLedger(balances, memory.NewSettlementGuard(0, nil), memory.NewAuditStore(), &cfg.Ledger, log)

			o := orchestrator.NewOrchestrator(
				gen,
				costLedger,
				fingerprint.NewCache(memory.NewFingerprintStore(), &cfg.Cache, log),
				nil,
				&cfg.Orchestrator,
				&cfg.Batch,
				log,
			)

			report, err := runDispatches(cmd.Context(), o, task, repeat)
			if err != nil {
				return err
			}
			if report.Balance, err = costLedger.Balance(cmd.Context(), callerID); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&callerID, "caller", "local", "caller id the task is billed to")
	cmd.Flags().Int64Var(&credits, "credits", 100, "starting balance of the caller")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "number of times to submit the task")
	cmd.Flags().StringVar(&provider, "provider", "", "generation provider overriding the configured one (echo, openai, anthropic)")
	return cmd
}

// runDispatches submits the task repeat times, then stops the orchestrator so queued
// items drain, and reports the final state of every dispatch. Failed dispatches are
// reported rather than aborting the run.
func runDispatches(ctx context.Context, o *orchestrator.Orchestrator, task *model.Task, repeat int) (*DispatchReport, error) {
	if repeat < 1 {
		repeat = 1
	}

	ids := make([]string, 0, repeat)
	report := &DispatchReport{}
	for i := 0; i < repeat; i++ {
		result, err := o.Dispatch(ctx, task)
		if result == nil {
			return nil, fmt.Errorf("dispatch %d: %w", i+1, err)
		}
		ids = append(ids, result.DispatchID)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	o.Stop(stopCtx)

	for _, id := range ids {
		result, err := o.Lookup(id)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}
