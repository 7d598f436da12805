package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedTransaction is one ledger transaction cached from the accounting
// platform, keyed by (tenant_id, transaction_id). Typed columns hold what the
// source payload exposed in typed form; raw_data always keeps the full payload
// so missing values can be re-derived later.
type CachedTransaction struct {
	TenantID        string           `gorm:"column:tenant_id;primaryKey"`
	TransactionID   string           `gorm:"column:transaction_id;primaryKey"`
	FinancialYear   string           `gorm:"column:financial_year;index"`
	TotalAmount     *decimal.Decimal `gorm:"column:total_amount;type:numeric(18,2)"`
	TransactionDate *time.Time       `gorm:"column:transaction_date;index"`
	ContactName     *string          `gorm:"column:contact_name"`
	Description     *string          `gorm:"column:description"`
	RawData         JSONB            `gorm:"column:raw_data;type:jsonb"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (CachedTransaction) TableName() string {
	return "cached_transactions"
}
