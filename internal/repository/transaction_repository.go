package repository

import (
	"context"
	"fmt"

	"github.com/taxlens/ledgersync-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// UpsertBatch persists a page of normalized transactions, keyed by
// (tenant_id, transaction_id). Without overwrite an existing row is left
// untouched; with overwrite the payload columns are replaced. Returns the
// number of rows actually written.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, txns []models.CachedTransaction, overwrite bool) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "transaction_id"}},
		DoNothing: true,
	}
	if overwrite {
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"financial_year", "total_amount", "transaction_date",
				"contact_name", "description", "raw_data", "updated_at",
			}),
		}
	}

	result := r.db.WithContext(ctx).Clauses(conflict).Create(&txns)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to upsert transactions: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// CountByFinancialYear returns how many rows the cache holds for a tenant/year
func (r *TransactionRepository) CountByFinancialYear(ctx context.Context, tenantID, financialYear string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.CachedTransaction{}).
		Where("tenant_id = ? AND financial_year = ?", tenantID, financialYear).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count cached transactions: %w", result.Error)
	}
	return count, nil
}
