package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brandcraft/server/internal/adapter/outbound/memory"
	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type MockBalanceStore struct {
	mock.Mock
}

func (m *MockBalanceStore) Read(ctx context.Context, callerID string) (int64, error) {
	args := m.Called(ctx, callerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceStore) Debit(ctx context.Context, callerID string, credits int64) (int64, error) {
	args := m.Called(ctx, callerID, credits)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceStore) Credit(ctx context.Context, callerID string, credits int64) (int64, error) {
	args := m.Called(ctx, callerID, credits)
	return args.Get(0).(int64), args.Error(1)
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *model.CostRecord) error {
	return errors.New("audit store down")
}

func newMemoryLedger(seed map[string]int64) (*Ledger, *memory.BalanceStore, *memory.AuditStore) {
	balances := memory.NewBalanceStore(seed)
	audit := memory.NewAuditStore()
	return NewLedger(balances, memory.NewSettlementGuard(0, nil), audit, nil, zap.NewNop()), balances, audit
}

// --- Tests ---

func TestLedger_Preflight(t *testing.T) {
	ctx := context.Background()

	required, err := NewLedger(nil, nil, nil, nil, nil).EstimateCredits(model.BudgetTierHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(10), required)

	t.Run("fails below high tier estimate", func(t *testing.T) {
		l, _, _ := newMemoryLedger(map[string]int64{"c1": required - 1})
		assert.ErrorIs(t, l.Preflight(ctx, "c1", model.BudgetTierHigh), ErrInsufficientCredits)
	})

	t.Run("succeeds at exactly the estimate", func(t *testing.T) {
		l, _, _ := newMemoryLedger(map[string]int64{"c1": required})
		assert.NoError(t, l.Preflight(ctx, "c1", model.BudgetTierHigh))
	})

	t.Run("lower tier passes with the same balance", func(t *testing.T) {
		l, _, _ := newMemoryLedger(map[string]int64{"c1": required - 1})
		assert.NoError(t, l.Preflight(ctx, "c1", model.BudgetTierLow))
	})

	t.Run("unknown caller has no credits", func(t *testing.T) {
		l, _, _ := newMemoryLedger(nil)
		assert.ErrorIs(t, l.Preflight(ctx, "nobody", model.BudgetTierLow), ErrInsufficientCredits)
	})

	t.Run("unknown tier", func(t *testing.T) {
		l, _, _ := newMemoryLedger(map[string]int64{"c1": 100})
		assert.ErrorIs(t, l.Preflight(ctx, "c1", model.BudgetTier("premium")), ErrUnknownTier)
	})

	t.Run("store failure", func(t *testing.T) {
		balances := new(MockBalanceStore)
		balances.On("Read", mock.Anything, "c1").Return(int64(0), errors.New("connection refused"))

		l := NewLedger(balances, memory.NewSettlementGuard(0, nil), nil, nil, zap.NewNop())
		assert.ErrorIs(t, l.Preflight(ctx, "c1", model.BudgetTierLow), ErrBalanceUnavailable)
	})
}

func TestLedger_Pricing(t *testing.T) {
	l := NewLedger(nil, nil, nil, nil, zap.NewNop())

	t.Run("direct is linear in tokens", func(t *testing.T) {
		usage := model.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
		assert.InDelta(t, 18.0, l.PriceDirect(usage, ""), 1e-9)

		usage = model.Usage{InputTokens: 1000, OutputTokens: 500}
		assert.InDelta(t, 0.003+0.0075, l.PriceDirect(usage, ""), 1e-12)
	})

	t.Run("model override", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ModelRates["cheap"] = Rate{InputPerMillionUSD: 1, OutputPerMillionUSD: 2}
		l := NewLedger(nil, nil, nil, cfg, zap.NewNop())

		usage := model.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
		assert.InDelta(t, 3.0, l.PriceDirect(usage, "cheap"), 1e-9)
		assert.InDelta(t, 18.0, l.PriceDirect(usage, "other"), 1e-9)
	})

	t.Run("cache hit is ten percent of nominal", func(t *testing.T) {
		nominal, err := l.NominalCost(model.BudgetTierMedium)
		require.NoError(t, err)
		price, err := l.PriceCacheHit(model.BudgetTierMedium)
		require.NoError(t, err)
		assert.InDelta(t, 0.1*nominal, price, 1e-12)
	})

	t.Run("quality discount", func(t *testing.T) {
		amount, applied := l.ApplyQualityDiscount(1.0, model.ValidationResult{Score: 95})
		assert.True(t, applied)
		assert.InDelta(t, 0.9, amount, 1e-12)

		amount, applied = l.ApplyQualityDiscount(1.0, model.ValidationResult{Score: 90})
		assert.True(t, applied)
		assert.InDelta(t, 0.9, amount, 1e-12)

		amount, applied = l.ApplyQualityDiscount(1.0, model.ValidationResult{Score: 89})
		assert.False(t, applied)
		assert.InDelta(t, 1.0, amount, 1e-12)
	})

	t.Run("credits round up", func(t *testing.T) {
		assert.Equal(t, int64(0), l.ToCredits(0))
		assert.Equal(t, int64(1), l.ToCredits(0.00001))
		assert.Equal(t, int64(1), l.ToCredits(0.01))
		assert.Equal(t, int64(2), l.ToCredits(0.0101))
		assert.Equal(t, int64(100), l.ToCredits(1.0))
	})
}

func TestLedger_Settle(t *testing.T) {
	ctx := context.Background()

	t.Run("debits and records", func(t *testing.T) {
		l, balances, audit := newMemoryLedger(map[string]int64{"c1": 50})

		record, err := l.Settle(ctx, &SettleRequest{
			DispatchID: "d1",
			CallerID:   "c1",
			TaskKind:   "ad_copy",
			AmountUSD:  0.0345,
			Kind:       model.CostKindDirect,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), record.AmountCredits)
		assert.Equal(t, int64(46), record.BalanceAfter)
		assert.Equal(t, model.CostKindDirect, record.Kind)

		balance, _ := balances.Read(ctx, "c1")
		assert.Equal(t, int64(46), balance)
		require.Len(t, audit.Records(), 1)
		assert.Equal(t, "d1", audit.Records()[0].DispatchID)
	})

	t.Run("second settle for the same dispatch does not debit", func(t *testing.T) {
		l, balances, audit := newMemoryLedger(map[string]int64{"c1": 50})
		req := &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: 0.05, Kind: model.CostKindDirect}

		_, err := l.Settle(ctx, req)
		require.NoError(t, err)
		_, err = l.Settle(ctx, req)
		assert.ErrorIs(t, err, ErrAlreadySettled)

		balance, _ := balances.Read(ctx, "c1")
		assert.Equal(t, int64(45), balance)
		assert.Len(t, audit.Records(), 1)
	})

	t.Run("concurrent settles for the same dispatch debit once", func(t *testing.T) {
		l, balances, _ := newMemoryLedger(map[string]int64{"c1": 1000})
		req := &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: 0.10, Kind: model.CostKindDirect}

		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.Settle(ctx, req); err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		balance, _ := balances.Read(ctx, "c1")
		assert.Equal(t, int64(990), balance)
	})

	t.Run("insufficient balance releases the claim", func(t *testing.T) {
		l, balances, _ := newMemoryLedger(map[string]int64{"c1": 1})
		req := &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: 0.05, Kind: model.CostKindDirect}

		_, err := l.Settle(ctx, req)
		assert.ErrorIs(t, err, ErrInsufficientCredits)

		balance, _ := balances.Read(ctx, "c1")
		assert.Equal(t, int64(1), balance, "balance must never go negative")

		_, _ = balances.Credit(ctx, "c1", 10)
		_, err = l.Settle(ctx, req)
		assert.NoError(t, err, "a released claim can be settled again")
	})

	t.Run("store failure fails loudly", func(t *testing.T) {
		balances := new(MockBalanceStore)
		balances.On("Debit", mock.Anything, "c1", int64(5)).Return(int64(0), errors.New("timeout"))

		l := NewLedger(balances, memory.NewSettlementGuard(0, nil), nil, nil, zap.NewNop())
		_, err := l.Settle(ctx, &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: 0.05, Kind: model.CostKindDirect})
		assert.ErrorIs(t, err, ErrBalanceUnavailable)
		balances.AssertExpectations(t)
	})

	t.Run("audit failure is not fatal", func(t *testing.T) {
		balances := memory.NewBalanceStore(map[string]int64{"c1": 10})
		l := NewLedger(balances, memory.NewSettlementGuard(0, nil), failingAudit{}, nil, zap.NewNop())

		record, err := l.Settle(ctx, &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: 0.01, Kind: model.CostKindCacheHit, CachedDiscountApplied: true})
		require.NoError(t, err)
		assert.True(t, record.CachedDiscountApplied)
	})

	t.Run("negative amount", func(t *testing.T) {
		l, _, _ := newMemoryLedger(map[string]int64{"c1": 10})
		_, err := l.Settle(ctx, &SettleRequest{DispatchID: "d1", CallerID: "c1", AmountUSD: -1})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedger_TopUp(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newMemoryLedger(nil)

	balance, err := l.TopUp(ctx, "new-caller", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	_, err = l.TopUp(ctx, "new-caller", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	got, err := l.Balance(ctx, "new-caller")
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)
}

var _ outbound.BalanceStorePort = (*MockBalanceStore)(nil)
