package postgres

import (
	"context"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"gorm.io/gorm"
)

// auditStoreAdapter implements outbound.AuditStorePort.
type auditStoreAdapter struct {
	db *gorm.DB
}

// NewAuditStoreAdapter creates a new cost record database adapter.
func NewAuditStoreAdapter(db *gorm.DB) outbound.AuditStorePort {
	return &auditStoreAdapter{db: db}
}

func (a *auditStoreAdapter) Append(ctx context.Context, record *model.CostRecord) error {
	return a.db.WithContext(ctx).Create(record).Error
}

// Compile-time check
var _ outbound.AuditStorePort = (*auditStoreAdapter)(nil)
