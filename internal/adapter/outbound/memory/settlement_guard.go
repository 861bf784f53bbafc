package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brandcraft/server/internal/port/outbound"
)

// DefaultSettlementRetention matches the Redis guard's default claim lifetime.
const DefaultSettlementRetention = 30 * 24 * time.Hour

// SettlementGuard records settled dispatch ids for the retention window.
// A claim older than the window no longer blocks a second settlement.
type SettlementGuard struct {
	mu        sync.Mutex
	claims    map[string]time.Time
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// NewSettlementGuard creates an in-memory settlement guard.
// A non-positive retention uses DefaultSettlementRetention; a nil clock uses time.Now.
func NewSettlementGuard(retention time.Duration, now func() time.Time) *SettlementGuard {
	if retention <= 0 {
		retention = DefaultSettlementRetention
	}
	if now == nil {
		now = time.Now
	}
	return &SettlementGuard{
		claims:    make(map[string]time.Time),
		retention: retention,
		lastPrune: now(),
		now:       now,
	}
}

func (g *SettlementGuard) Claim(_ context.Context, dispatchID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybePruneLocked(now)
	if at, ok := g.claims[dispatchID]; ok && now.Sub(at) < g.retention {
		return false, nil
	}
	g.claims[dispatchID] = now
	return true, nil
}

func (g *SettlementGuard) Release(_ context.Context, dispatchID string) error {
	g.mu.Lock()
	delete(g.claims, dispatchID)
	g.mu.Unlock()
	return nil
}

// Len returns the number of retained claims.
func (g *SettlementGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

// maybePruneLocked drops expired claims at most once per minute, or once per retention when shorter.
func (g *SettlementGuard) maybePruneLocked(now time.Time) {
	interval := min(g.retention, time.Minute)
	if now.Sub(g.lastPrune) < interval {
		return
	}
	g.lastPrune = now
	for id, at := range g.claims {
		if now.Sub(at) >= g.retention {
			delete(g.claims, id)
		}
	}
}

var _ outbound.SettlementGuardPort = (*SettlementGuard)(nil)
