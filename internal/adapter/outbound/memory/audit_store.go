package memory

import (
	"context"
	"sync"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
)

// AuditStore implements outbound.AuditStorePort by keeping records in memory.
type AuditStore struct {
	mu      sync.Mutex
	records []*model.CostRecord
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(_ context.Context, record *model.CostRecord) error {
	cp := *record
	s.mu.Lock()
	s.records = append(s.records, &cp)
	s.mu.Unlock()
	return nil
}

// Records returns a snapshot of the appended records.
func (s *AuditStore) Records() []*model.CostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.CostRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Compile-time check
var _ outbound.AuditStorePort = (*AuditStore)(nil)
