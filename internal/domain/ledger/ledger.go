package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Ledger prices work, enforces prepaid credits and settles charges.
type Ledger struct {
	balances outbound.BalanceStorePort
	guard    outbound.SettlementGuardPort
	audit    outbound.AuditStorePort
	config   *Config
	now      func() time.Time
	logger   *zap.Logger
}

// SettleRequest describes one charge.
type SettleRequest struct {
	DispatchID             string
	CallerID               string
	TaskKind               string
	AmountUSD              float64
	Kind                   model.CostKind
	CachedDiscountApplied  bool
	QualityDiscountApplied bool
}

// NewLedger creates a new cost ledger.
func NewLedger(
	balances outbound.BalanceStorePort,
	guard outbound.SettlementGuardPort,
	audit outbound.AuditStorePort,
	config *Config,
	logger *zap.Logger,
) *Ledger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Tiers == nil {
		config.Tiers = DefaultTiers()
	}
	if config.CreditsPerUSD <= 0 {
		config.CreditsPerUSD = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		balances: balances,
		guard:    guard,
		audit:    audit,
		config:   config,
		now:      time.Now,
		logger:   logger.Named("ledger"),
	}
}

// Preflight fails fast when the caller cannot afford a task of the given tier.
// It must run before any generation cost is incurred.
func (l *Ledger) Preflight(ctx context.Context, callerID string, tier model.BudgetTier) error {
	required, err := l.EstimateCredits(tier)
	if err != nil {
		return err
	}

	balance, err := l.balances.Read(ctx, callerID)
	if err != nil {
		if errors.Is(err, outbound.ErrCallerNotFound) {
			return ErrInsufficientCredits
		}
		return fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	if balance < required {
		l.logger.Debug("preflight rejected",
			zap.String("caller_id", callerID),
			zap.String("tier", tier.String()),
			zap.Int64("balance", balance),
			zap.Int64("required", required))
		return ErrInsufficientCredits
	}
	return nil
}

// Balance returns the caller's current balance.
func (l *Ledger) Balance(ctx context.Context, callerID string) (int64, error) {
	return l.balances.Read(ctx, callerID)
}

// TopUp adds credits to a caller's balance.
func (l *Ledger) TopUp(ctx context.Context, callerID string, credits int64) (int64, error) {
	if credits <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := l.balances.Credit(ctx, callerID, credits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	l.logger.Info("credits added",
		zap.String("caller_id", callerID),
		zap.Int64("amount", credits),
		zap.Int64("balance", balance))
	return balance, nil
}

// Settle converts the amount to credits, debits the caller and appends an audit record.
// A dispatch is settled at most once; a repeated call returns ErrAlreadySettled without debiting.
func (l *Ledger) Settle(ctx context.Context, req *SettleRequest) (*model.CostRecord, error) {
	if req.AmountUSD < 0 {
		return nil, ErrInvalidAmount
	}

	claimed, err := l.guard.Claim(ctx, req.DispatchID)
	if err != nil {
		return nil, fmt.Errorf("%w: claim settlement: %v", ErrBalanceUnavailable, err)
	}
	if !claimed {
		return nil, ErrAlreadySettled
	}

	credits := l.ToCredits(req.AmountUSD)
	balance, err := l.balances.Debit(ctx, req.CallerID, credits)
	if err != nil {
		if relErr := l.guard.Release(ctx, req.DispatchID); relErr != nil {
			l.logger.Error("failed to release settlement claim",
				zap.String("dispatch_id", req.DispatchID),
				zap.Error(relErr))
		}
		if errors.Is(err, outbound.ErrInsufficientBalance) || errors.Is(err, outbound.ErrCallerNotFound) {
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	record := &model.CostRecord{
		DispatchID:             req.DispatchID,
		CallerID:               req.CallerID,
		TaskKind:               req.TaskKind,
		AmountUSD:              req.AmountUSD,
		AmountCredits:          credits,
		Kind:                   req.Kind,
		CachedDiscountApplied:  req.CachedDiscountApplied,
		QualityDiscountApplied: req.QualityDiscountApplied,
		BalanceAfter:           balance,
		CreatedAt:              l.now(),
	}

	if l.audit != nil {
		if err := l.audit.Append(ctx, record); err != nil {
			l.logger.Warn("failed to append cost record",
				zap.String("dispatch_id", req.DispatchID),
				zap.Error(err))
		}
	}

	l.logger.Debug("dispatch settled",
		zap.String("dispatch_id", req.DispatchID),
		zap.String("caller_id", req.CallerID),
		zap.String("kind", string(req.Kind)),
		zap.Float64("amount_usd", req.AmountUSD),
		zap.Int64("credits", credits),
		zap.Int64("balance", balance))

	return record, nil
}
