package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brandcraft/server/internal/port/outbound"
)

// RateLimiter is an in-process sliding window limiter. Counts are per replica.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewRateLimiter creates a new in-memory rate limiter. A nil clock uses time.Now.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{hits: make(map[string][]time.Time), now: now}
}

// Allow records a request for key when it fits in the window.
func (l *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(key, now, window)
	if len(hits) >= limit {
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}

// Remaining returns the unused part of key's limit in the current window.
func (l *RateLimiter) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := limit - len(l.pruneLocked(key, l.now(), window))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *RateLimiter) pruneLocked(key string, now time.Time, window time.Duration) []time.Time {
	hits := l.hits[key]
	cutoff := now.Add(-window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = hits
	return hits
}

// Compile-time check
var _ outbound.RateLimiterPort = (*RateLimiter)(nil)
