package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
)

// fingerprintStore implements outbound.FingerprintStorePort with a process-local map.
type fingerprintStore struct {
	mu      sync.RWMutex
	entries map[string]*model.CacheEntry
}

// NewFingerprintStore creates a new in-memory fingerprint store.
func NewFingerprintStore() outbound.FingerprintStorePort {
	return &fingerprintStore{entries: make(map[string]*model.CacheEntry)}
}

func (s *fingerprintStore) Get(_ context.Context, fingerprint string) (*model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *fingerprintStore) Set(_ context.Context, fingerprint string, entry *model.CacheEntry) error {
	cp := *entry
	s.mu.Lock()
	s.entries[fingerprint] = &cp
	s.mu.Unlock()
	return nil
}

func (s *fingerprintStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.entries, fingerprint)
	s.mu.Unlock()
	return nil
}

func (s *fingerprintStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *fingerprintStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, entry := range s.entries {
		if !entry.IsLive(now) {
			delete(s.entries, fp)
			removed++
		}
	}
	return removed, nil
}

// Compile-time check
var _ outbound.FingerprintStorePort = (*fingerprintStore)(nil)
