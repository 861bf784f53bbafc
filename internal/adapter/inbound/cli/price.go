package cli

import (
	"github.com/spf13/cobra"

	"github.com/brandcraft/server/internal/adapter/outbound/memory"
	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/model"
)

// Quote is the priced breakdown printed by the price command.
type Quote struct {
	Tier                   model.BudgetTier `json:"tier"`
	Kind                   model.CostKind   `json:"kind"`
	PreflightCredits       int64            `json:"preflight_credits"`
	AmountUSD              float64          `json:"amount_usd"`
	QualityDiscountApplied bool             `json:"quality_discount_applied"`
	AmountCredits          int64            `json:"amount_credits"`
}

func newPriceCommand(opts *Options) *cobra.Command {
	var (
		tier     string
		input    int
		output   int
		modelID  string
		score    int
		cacheHit bool
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Quote what a dispatch would be charged",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			l := ledger.NewLedger(memory.NewBalanceStore(nil), memory.NewSettlementGuard(0, nil), memory.NewAuditStore(), &cfg.Ledger, nil)

			quote, err := buildQuote(l, model.BudgetTier(tier), model.Usage{InputTokens: input, OutputTokens: output}, modelID, score, cacheHit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
	cmd.Flags().StringVar(&tier, "tier", string(model.BudgetTierMedium), "budget tier (low, medium, high)")
	cmd.Flags().IntVar(&input, "input-tokens", 0, "input tokens of the generation")
	cmd.Flags().IntVar(&output, "output-tokens", 0, "output tokens of the generation")
	cmd.Flags().StringVar(&modelID, "model", "", "model id for model-specific rates")
	cmd.Flags().IntVar(&score, "score", 0, "validation score of the result")
	cmd.Flags().BoolVar(&cacheHit, "cache-hit", false, "price a cache hit instead of a generation")
	return cmd
}

func buildQuote(l *ledger.Ledger, tier model.BudgetTier, usage model.Usage, modelID string, score int, cacheHit bool) (*Quote, error) {
	preflight, err := l.EstimateCredits(tier)
	if err != nil {
		return nil, err
	}

	q := &Quote{Tier: tier, Kind: model.CostKindDirect, PreflightCredits: preflight}
	if cacheHit {
		q.Kind = model.CostKindCacheHit
		if q.AmountUSD, err = l.PriceCacheHit(tier); err != nil {
			return nil, err
		}
	} else {
		q.AmountUSD = l.PriceDirect(usage, modelID)
	}
	q.AmountUSD, q.QualityDiscountApplied = l.ApplyQualityDiscount(q.AmountUSD, model.ValidationResult{Score: score})
	q.AmountCredits = l.ToCredits(q.AmountUSD)
	return q, nil
}
