package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxlens/ledgersync-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// GetByTenantID retrieves the sync job snapshot for a tenant.
// Returns (nil, nil) when no job has ever run for the tenant.
func (r *SyncJobRepository) GetByTenantID(ctx context.Context, tenantID string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).First(&job, "tenant_id = ?", tenantID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync job: %w", result.Error)
	}
	return &job, nil
}

// Save upserts the full snapshot in place. There is one row per tenant; no
// history is retained.
func (r *SyncJobRepository) Save(ctx context.Context, job *models.SyncJob) error {
	job.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}).Create(job)
	if result.Error != nil {
		return fmt.Errorf("failed to save sync job: %w", result.Error)
	}
	return nil
}

// GetClaimable retrieves syncing jobs that no worker currently owns: either
// never claimed (heartbeat NULL) or abandoned (heartbeat older than staleAfter)
func (r *SyncJobRepository) GetClaimable(ctx context.Context, staleAfter time.Duration, limit int) ([]models.SyncJob, error) {
	cutoff := time.Now().Add(-staleAfter)

	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", models.StatusSyncing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query claimable jobs: %w", result.Error)
	}
	return jobs, nil
}

// Claim stamps a claimable job's heartbeat so only one worker runs it.
// Returns false if another worker claimed it first.
func (r *SyncJobRepository) Claim(ctx context.Context, tenantID string, staleAfter time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-staleAfter)

	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("tenant_id = ? AND status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)",
			tenantID, models.StatusSyncing, cutoff).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim sync job: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
