package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// balanceStoreAdapter implements outbound.BalanceStorePort on the caller_balances table.
type balanceStoreAdapter struct {
	db *gorm.DB
}

// NewBalanceStoreAdapter creates a new balance database adapter.
func NewBalanceStoreAdapter(db *gorm.DB) outbound.BalanceStorePort {
	return &balanceStoreAdapter{db: db}
}

func (a *balanceStoreAdapter) Read(ctx context.Context, callerID string) (int64, error) {
	var balance model.CallerBalance
	err := a.db.WithContext(ctx).First(&balance, "caller_id = ?", callerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, outbound.ErrCallerNotFound
		}
		return 0, err
	}
	return balance.Credits, nil
}

// Debit uses a conditional UPDATE so that concurrent debits cannot drive the balance below zero.
func (a *balanceStoreAdapter) Debit(ctx context.Context, callerID string, credits int64) (int64, error) {
	var balance model.CallerBalance
	result := a.db.WithContext(ctx).
		Model(&balance).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "credits"}}}).
		Where("caller_id = ? AND credits >= ?", callerID, credits).
		UpdateColumns(map[string]any{
			"credits":    gorm.Expr("credits - ?", credits),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 1 {
		return balance.Credits, nil
	}

	current, err := a.Read(ctx, callerID)
	if err != nil {
		return 0, err
	}
	return current, outbound.ErrInsufficientBalance
}

func (a *balanceStoreAdapter) Credit(ctx context.Context, callerID string, credits int64) (int64, error) {
	balance := model.CallerBalance{
		CallerID:  callerID,
		Credits:   credits,
		UpdatedAt: time.Now(),
	}
	err := a.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "caller_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"credits":    gorm.Expr("caller_balances.credits + ?", credits),
					"updated_at": balance.UpdatedAt,
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "credits"}}},
		).
		Create(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance.Credits, nil
}

// Compile-time check
var _ outbound.BalanceStorePort = (*balanceStoreAdapter)(nil)
