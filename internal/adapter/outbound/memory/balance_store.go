package memory

import (
	"context"
	"sync"

	"github.com/brandcraft/server/internal/port/outbound"
)

// BalanceStore implements outbound.BalanceStorePort in memory.
// Debits are checked and applied under one lock, so the balance never goes negative.
type BalanceStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewBalanceStore creates a new in-memory balance store seeded with the given balances.
func NewBalanceStore(seed map[string]int64) *BalanceStore {
	balances := make(map[string]int64, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &BalanceStore{balances: balances}
}

func (s *BalanceStore) Read(_ context.Context, callerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[callerID]
	if !ok {
		return 0, outbound.ErrCallerNotFound
	}
	return balance, nil
}

func (s *BalanceStore) Debit(_ context.Context, callerID string, credits int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[callerID]
	if !ok {
		return 0, outbound.ErrCallerNotFound
	}
	if balance < credits {
		return balance, outbound.ErrInsufficientBalance
	}
	balance -= credits
	s.balances[callerID] = balance
	return balance, nil
}

func (s *BalanceStore) Credit(_ context.Context, callerID string, credits int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[callerID] += credits
	return s.balances[callerID], nil
}

// Compile-time check
var _ outbound.BalanceStorePort = (*BalanceStore)(nil)
