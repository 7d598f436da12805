package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxlens/ledgersync-worker/internal/models"
	"gorm.io/gorm"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrTokenConflict means the stored refresh token no longer matches the one
	// this refresh was performed with: another refresh won the race and the
	// token we exchanged is already burned.
	ErrTokenConflict = errors.New("refresh token changed concurrently")
)

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByTenantID retrieves the accounting connection for a tenant
func (r *ConnectionRepository) GetByTenantID(ctx context.Context, tenantID string) (*models.Connection, error) {
	var conn models.Connection
	result := r.db.WithContext(ctx).First(&conn, "tenant_id = ?", tenantID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", result.Error)
	}
	return &conn, nil
}

// UpdateTokensCAS replaces the token set, guarded by the refresh token the
// exchange was performed with. The external API invalidates a refresh token on
// use, so if the stored value moved underneath us the replacement must fail
// rather than overwrite the winner's tokens.
func (r *ConnectionRepository) UpdateTokensCAS(ctx context.Context, tenantID, previousRefreshToken, accessToken, refreshToken string, expiresAt time.Time, scope string) error {
	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("tenant_id = ? AND refresh_token = ?", tenantID, previousRefreshToken).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"scope":         scope,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenConflict
	}
	return nil
}
