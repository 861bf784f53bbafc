package aiprovider

import (
	"context"
	"errors"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32        `mapstructure:"failure_threshold"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold:    5,
		Timeout:             60 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// BreakerProvider guards a provider with a circuit breaker. While open, calls fail
// immediately with gobreaker.ErrOpenState.
type BreakerProvider struct {
	next    outbound.GenerationProviderPort
	breaker *gobreaker.CircuitBreaker[*model.Generation]
}

// NewBreakerProvider wraps next. onHealth, if set, is called with the provider name and
// whether the breaker is closed after every state change.
func NewBreakerProvider(name string, next outbound.GenerationProviderPort, config *BreakerConfig, logger *zap.Logger, onHealth func(provider string, healthy bool)) *BreakerProvider {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("provider-breaker")
	threshold := config.FailureThreshold

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxHalfOpenRequests,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the backend.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if onHealth != nil {
				onHealth(name, to == gobreaker.StateClosed)
			}
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*model.Generation](settings),
	}
}

// Generate forwards to the wrapped provider unless the breaker is open.
func (b *BreakerProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	return b.breaker.Execute(func() (*model.Generation, error) {
		return b.next.Generate(ctx, req)
	})
}

// State returns the current breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}

// Compile-time interface assertions
var _ outbound.GenerationProviderPort = (*BreakerProvider)(nil)
