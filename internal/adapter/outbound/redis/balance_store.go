package redis

import (
	"context"
	"fmt"

	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const balanceKeyPrefix = "creative:balance:"

// debitScript subtracts ARGV[1] from KEYS[1] only if the balance covers it.
// Returns {status, balance}: 1 = debited, 0 = insufficient, -1 = unknown caller.
var debitScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
    return {-1, 0}
end
local balance = tonumber(raw)
local amount = tonumber(ARGV[1])
if balance < amount then
    return {0, balance}
end
local new_balance = redis.call('DECRBY', KEYS[1], amount)
return {1, new_balance}
`)

// BalanceStore implements outbound.BalanceStorePort with an atomic floor-debit script.
type BalanceStore struct {
	client *redis.Client
}

// NewBalanceStore creates a new Redis-backed balance store.
func NewBalanceStore(client *redis.Client) *BalanceStore {
	return &BalanceStore{client: client}
}

func (s *BalanceStore) key(callerID string) string {
	return balanceKeyPrefix + callerID
}

func (s *BalanceStore) Read(ctx context.Context, callerID string) (int64, error) {
	val, err := s.client.Get(ctx, s.key(callerID)).Int64()
	if err == redis.Nil {
		return 0, outbound.ErrCallerNotFound
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *BalanceStore) Debit(ctx context.Context, callerID string, credits int64) (int64, error) {
	res, err := debitScript.Run(ctx, s.client, []string{s.key(callerID)}, credits).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("run debit script: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected debit script result: %v", res)
	}

	switch res[0] {
	case 1:
		return res[1], nil
	case 0:
		return res[1], outbound.ErrInsufficientBalance
	default:
		return 0, outbound.ErrCallerNotFound
	}
}

func (s *BalanceStore) Credit(ctx context.Context, callerID string, credits int64) (int64, error) {
	return s.client.IncrBy(ctx, s.key(callerID), credits).Result()
}

// Compile-time check
var _ outbound.BalanceStorePort = (*BalanceStore)(nil)
