package redis

import (
	"context"
	"time"

	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const settlementKeyPrefix = "creative:settled:"

// settlementGuard implements outbound.SettlementGuardPort with SETNX.
type settlementGuard struct {
	client    *redis.Client
	retention time.Duration
}

// NewSettlementGuard creates a new Redis-backed settlement guard.
// Claims are kept for retention; zero keeps them forever.
func NewSettlementGuard(client *redis.Client, retention time.Duration) outbound.SettlementGuardPort {
	return &settlementGuard{client: client, retention: retention}
}

func (g *settlementGuard) Claim(ctx context.Context, dispatchID string) (bool, error) {
	return g.client.SetNX(ctx, settlementKeyPrefix+dispatchID, time.Now().Unix(), g.retention).Result()
}

func (g *settlementGuard) Release(ctx context.Context, dispatchID string) error {
	return g.client.Del(ctx, settlementKeyPrefix+dispatchID).Err()
}

// Compile-time check
var _ outbound.SettlementGuardPort = (*settlementGuard)(nil)
