package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const (
	fingerprintKeyPrefix = "creative:fp:"
	fingerprintIndexKey  = "creative:fp:index"
)

// fingerprintStore implements outbound.FingerprintStorePort.
// Entries carry a native TTL; a sorted set indexes fingerprints by expiry for Len and Sweep.
type fingerprintStore struct {
	client *redis.Client
}

// NewFingerprintStore creates a new Redis-backed fingerprint store.
func NewFingerprintStore(client *redis.Client) outbound.FingerprintStorePort {
	return &fingerprintStore{client: client}
}

func (s *fingerprintStore) key(fingerprint string) string {
	return fingerprintKeyPrefix + fingerprint
}

func (s *fingerprintStore) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error) {
	val, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

func (s *fingerprintStore) Set(ctx context.Context, fingerprint string, entry *model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Keep the key a little past ExpiresAt so that lazy eviction on read still observes it.
	ttl := time.Until(entry.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(fingerprint), data, ttl)
	pipe.ZAdd(ctx, fingerprintIndexKey, redis.Z{
		Score:  float64(entry.ExpiresAt.Unix()),
		Member: fingerprint,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *fingerprintStore) Delete(ctx context.Context, fingerprint string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(fingerprint))
	pipe.ZRem(ctx, fingerprintIndexKey, fingerprint)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *fingerprintStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, fingerprintIndexKey).Result()
	return int(n), err
}

func (s *fingerprintStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	upper := fmt.Sprintf("(%d", now.Unix())
	expired, err := s.client.ZRangeByScore(ctx, fingerprintIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: upper,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	keys := make([]string, len(expired))
	members := make([]any, len(expired))
	for i, fp := range expired {
		keys[i] = s.key(fp)
		members[i] = fp
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, fingerprintIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// Compile-time check
var _ outbound.FingerprintStorePort = (*fingerprintStore)(nil)
