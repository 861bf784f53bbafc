package ledger

import (
	"math"

	"github.com/brandcraft/server/internal/model"
)

// Rate is a per-million-token price pair in USD.
type Rate struct {
	InputPerMillionUSD  float64 `mapstructure:"input_per_million_usd" yaml:"input_per_million_usd"`
	OutputPerMillionUSD float64 `mapstructure:"output_per_million_usd" yaml:"output_per_million_usd"`
}

// Tier describes the ceiling and nominal price of a budget tier.
type Tier struct {
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	NominalCostUSD float64 `mapstructure:"nominal_cost_usd" yaml:"nominal_cost_usd"`
}

// Config holds pricing configuration.
type Config struct {
	DefaultRate             Rate                     `mapstructure:"default_rate"`
	ModelRates              map[string]Rate          `mapstructure:"model_rates"`
	CreditsPerUSD           float64                  `mapstructure:"credits_per_usd"`
	CacheHitFraction        float64                  `mapstructure:"cache_hit_fraction"`
	QualityDiscountRate     float64                  `mapstructure:"quality_discount_rate"`
	QualityDiscountMinScore int                      `mapstructure:"quality_discount_min_score"`
	Tiers                   map[model.BudgetTier]Tier `mapstructure:"tiers"`
}

// DefaultConfig returns the default pricing configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultRate: Rate{
			InputPerMillionUSD:  3.00,
			OutputPerMillionUSD: 15.00,
		},
		ModelRates:              map[string]Rate{},
		CreditsPerUSD:           100,
		CacheHitFraction:        0.10,
		QualityDiscountRate:     0.10,
		QualityDiscountMinScore: 90,
		Tiers:                   DefaultTiers(),
	}
}

// DefaultTiers returns the built-in tier table.
func DefaultTiers() map[model.BudgetTier]Tier {
	return map[model.BudgetTier]Tier{
		model.BudgetTierLow:    {MaxTokens: 800, NominalCostUSD: 0.02},
		model.BudgetTierMedium: {MaxTokens: 1600, NominalCostUSD: 0.05},
		model.BudgetTierHigh:   {MaxTokens: 3200, NominalCostUSD: 0.10},
	}
}

// Tier returns the configuration of a budget tier.
func (l *Ledger) Tier(tier model.BudgetTier) (Tier, error) {
	t, ok := l.config.Tiers[tier]
	if !ok {
		return Tier{}, ErrUnknownTier
	}
	return t, nil
}

// NominalCost returns the nominal USD cost of a tier.
func (l *Ledger) NominalCost(tier model.BudgetTier) (float64, error) {
	t, err := l.Tier(tier)
	if err != nil {
		return 0, err
	}
	return t.NominalCostUSD, nil
}

// EstimateCredits returns the credits a caller must hold to dispatch a task of the tier.
func (l *Ledger) EstimateCredits(tier model.BudgetTier) (int64, error) {
	nominal, err := l.NominalCost(tier)
	if err != nil {
		return 0, err
	}
	return l.ToCredits(nominal), nil
}

// PriceDirect prices a generation linearly from its token usage.
// A model-specific rate is used when configured.
func (l *Ledger) PriceDirect(usage model.Usage, modelID string) float64 {
	rate := l.config.DefaultRate
	if r, ok := l.config.ModelRates[modelID]; ok && modelID != "" {
		rate = r
	}
	input := float64(usage.InputTokens) * rate.InputPerMillionUSD / 1_000_000.0
	output := float64(usage.OutputTokens) * rate.OutputPerMillionUSD / 1_000_000.0
	return input + output
}

// PriceCacheHit returns the discounted price of serving a tier from cache.
func (l *Ledger) PriceCacheHit(tier model.BudgetTier) (float64, error) {
	nominal, err := l.NominalCost(tier)
	if err != nil {
		return 0, err
	}
	return nominal * l.config.CacheHitFraction, nil
}

// ApplyQualityDiscount reduces the amount when the validation score qualifies.
// The second return value reports whether the discount was applied.
func (l *Ledger) ApplyQualityDiscount(amountUSD float64, validation model.ValidationResult) (float64, bool) {
	if validation.Score < l.config.QualityDiscountMinScore {
		return amountUSD, false
	}
	return amountUSD * (1 - l.config.QualityDiscountRate), true
}

// ToCredits converts USD to credits, rounding up.
func (l *Ledger) ToCredits(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	// Ceil with a small epsilon to avoid floating point edge cases (e.g. 1.0000000002).
	return int64(math.Ceil(usd*l.config.CreditsPerUSD - 1e-9))
}
