package models

import (
	"testing"
	"time"
)

func TestSyncStatus_Constants(t *testing.T) {
	tests := []struct {
		name     string
		status   SyncStatus
		expected string
	}{
		{"idle", StatusIdle, "idle"},
		{"syncing", StatusSyncing, "syncing"},
		{"complete", StatusComplete, "complete"},
		{"error", StatusError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.status) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.status)
			}
		})
	}
}

func TestSyncJob_HeartbeatStale(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	tests := []struct {
		name     string
		job      SyncJob
		expected bool
	}{
		{
			name:     "fresh heartbeat",
			job:      SyncJob{HeartbeatAt: &fresh, UpdatedAt: old},
			expected: false,
		},
		{
			name:     "stale heartbeat",
			job:      SyncJob{HeartbeatAt: &old, UpdatedAt: now},
			expected: true,
		},
		{
			name:     "never claimed, recently written",
			job:      SyncJob{HeartbeatAt: nil, UpdatedAt: fresh},
			expected: false,
		},
		{
			name:     "never claimed, written long ago",
			job:      SyncJob{HeartbeatAt: nil, UpdatedAt: old},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.job.HeartbeatStale(now, 5*time.Minute)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestStringList_Contains(t *testing.T) {
	years := StringList{"FY2023-24", "FY2022-23"}

	if !years.Contains("FY2023-24") {
		t.Error("expected FY2023-24 to be present")
	}
	if years.Contains("FY2021-22") {
		t.Error("did not expect FY2021-22 to be present")
	}
	if (StringList)(nil).Contains("FY2023-24") {
		t.Error("nil list must not contain anything")
	}
}
