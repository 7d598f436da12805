package models

import "time"

type SyncStatus string

const (
	// StatusIdle is synthetic: no row has ever been written for the tenant
	StatusIdle     SyncStatus = "idle"
	StatusSyncing  SyncStatus = "syncing"
	StatusComplete SyncStatus = "complete"
	StatusError    SyncStatus = "error"
)

// SyncJob is the per-tenant sync snapshot. There is at most one row per
// tenant; every new sync request overwrites it in place.
type SyncJob struct {
	TenantID           string     `gorm:"column:tenant_id;primaryKey"`
	Status             SyncStatus `gorm:"column:status;index"`
	Progress           int        `gorm:"column:progress"`
	TransactionsSynced int        `gorm:"column:transactions_synced"`
	TotalEstimated     int        `gorm:"column:total_estimated"`
	CurrentYear        string     `gorm:"column:current_year"`
	YearsSynced        StringList `gorm:"column:years_synced;type:jsonb"`
	RequestedYears     int        `gorm:"column:requested_years"`
	ForceResync        bool       `gorm:"column:force_resync"`
	RunID              string     `gorm:"column:run_id"`
	ErrorMessage       *string    `gorm:"column:error_message"`
	HeartbeatAt        *time.Time `gorm:"column:heartbeat_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// HeartbeatStale reports whether the job's last heartbeat is older than the
// given threshold. A syncing job with a stale (or never-set but old) heartbeat
// is considered abandoned and may be claimed or replaced.
func (j *SyncJob) HeartbeatStale(now time.Time, after time.Duration) bool {
	if j.HeartbeatAt == nil {
		return now.Sub(j.UpdatedAt) > after
	}
	return now.Sub(*j.HeartbeatAt) > after
}
