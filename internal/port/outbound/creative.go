package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/brandcraft/server/internal/model"
)

var (
	// ErrInsufficientBalance is returned by a balance store when a debit would go below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCallerNotFound is returned when no balance exists for a caller.
	ErrCallerNotFound = errors.New("caller not found")
)

// GenerationProviderPort is the opaque text-completion backend.
type GenerationProviderPort interface {
	// Generate produces text for the request. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error)
}

// BalanceStorePort holds per-caller prepaid credits.
type BalanceStorePort interface {
	// Read returns the current balance in credits.
	Read(ctx context.Context, callerID string) (int64, error)

	// Debit atomically subtracts credits, never going below zero.
	// Returns ErrInsufficientBalance if the balance is lower than credits.
	Debit(ctx context.Context, callerID string, credits int64) (int64, error)

	// Credit adds credits (top-up) and returns the new balance.
	Credit(ctx context.Context, callerID string, credits int64) (int64, error)
}

// AuditStorePort persists cost records. Writes are best-effort from the caller's view.
type AuditStorePort interface {
	// Append stores a cost record.
	Append(ctx context.Context, record *model.CostRecord) error
}

// SettlementGuardPort tracks which dispatches have been settled.
type SettlementGuardPort interface {
	// Claim marks the dispatch as settling. Returns false if it was already claimed.
	Claim(ctx context.Context, dispatchID string) (bool, error)

	// Release removes a claim so that a failed settlement can be retried.
	Release(ctx context.Context, dispatchID string) error
}

// FingerprintStorePort is the backend of the fingerprint cache.
type FingerprintStorePort interface {
	// Get returns the stored entry, or nil when absent. Expiry is not checked here.
	Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error)

	// Set creates or overwrites the entry.
	Set(ctx context.Context, fingerprint string, entry *model.CacheEntry) error

	// Delete removes the entry.
	Delete(ctx context.Context, fingerprint string) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// Sweep removes every entry that expired before now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// RateLimiterPort counts requests per key over a sliding window.
type RateLimiterPort interface {
	// Allow records one request for key and reports whether it fits within limit per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining returns how many requests key may still make in the current window.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}
