package fingerprint

import (
	"context"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"go.uber.org/zap"
)

// DefaultTTL is the fixed retention window of cache entries.
const DefaultTTL = 7 * 24 * time.Hour

// Config contains cache configuration.
type Config struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		TTL:        DefaultTTL,
		MaxEntries: 1000,
	}
}

// Cache maps fingerprints to previously produced results.
// Concurrent stores for the same fingerprint converge to the last write.
type Cache struct {
	store      outbound.FingerprintStorePort
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new fingerprint cache over the given store.
func NewCache(store outbound.FingerprintStorePort, config *Config, logger *zap.Logger, opts ...Option) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		store:      store,
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        time.Now,
		logger:     logger.Named("fingerprint-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the retention window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the live entry for the fingerprint, or nil on a miss.
// An expired entry is deleted as a side effect.
func (c *Cache) Lookup(ctx context.Context, fp string) (*model.CacheEntry, error) {
	entry, err := c.store.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if !entry.IsLive(c.now()) {
		if err := c.store.Delete(ctx, fp); err != nil {
			c.logger.Warn("failed to evict expired entry",
				zap.String("fingerprint", fp),
				zap.Error(err))
		}
		return nil, nil
	}

	return entry, nil
}

// Store creates or overwrites the entry for the fingerprint.
func (c *Cache) Store(ctx context.Context, fp string, result string, validation model.ValidationResult, usage model.Usage, modelID string) (*model.CacheEntry, error) {
	now := c.now()
	entry := &model.CacheEntry{
		Result:     result,
		Validation: validation,
		Usage:      usage,
		ModelID:    modelID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}

	if err := c.store.Set(ctx, fp, entry); err != nil {
		return nil, err
	}

	c.maybeSweep(ctx)
	return entry, nil
}

// Sweep removes all expired entries and returns the number removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	removed, err := c.store.Sweep(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.logger.Debug("swept expired entries", zap.Int("removed", removed))
	}
	return removed, nil
}

// maybeSweep runs a sweep once the store grows beyond the configured bound.
func (c *Cache) maybeSweep(ctx context.Context) {
	if c.maxEntries <= 0 {
		return
	}

	n, err := c.store.Len(ctx)
	if err != nil {
		c.logger.Warn("failed to read cache size", zap.Error(err))
		return
	}
	if n <= c.maxEntries {
		return
	}

	if _, err := c.Sweep(ctx); err != nil {
		c.logger.Warn("cache sweep failed", zap.Error(err))
	}
}
