package models

import "time"

// Connection represents a tenant's link to the external accounting platform,
// including the OAuth token pair for that connection
type Connection struct {
	TenantID         string     `gorm:"column:tenant_id;primaryKey"`
	ProviderTenantID string     `gorm:"column:provider_tenant_id"`
	AccessToken      *string    `gorm:"column:access_token"`
	RefreshToken     *string    `gorm:"column:refresh_token"`
	ExpiresAt        *time.Time `gorm:"column:expires_at"`
	Scope            *string    `gorm:"column:scope"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Connection) TableName() string {
	return "connections"
}
