package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taxlens/ledgersync-worker/internal/config"
	"github.com/taxlens/ledgersync-worker/internal/models"
)

const claimBatchSize = 10

// JobStore is the claim surface over the sync job table
type JobStore interface {
	GetClaimable(ctx context.Context, staleAfter time.Duration, limit int) ([]models.SyncJob, error)
	Claim(ctx context.Context, tenantID string, staleAfter time.Duration) (bool, error)
}

// SyncRunner executes a claimed job to a terminal state
type SyncRunner interface {
	Run(ctx context.Context, job *models.SyncJob) error
}

// Watcher is the detached execution context for sync runs. It polls for
// syncing jobs nobody owns — freshly requested ones and ones abandoned by a
// dead worker — claims them and runs each to completion. Because runs resume
// from the persisted snapshot, a multi-year sync safely spans worker restarts.
type Watcher struct {
	cfg    *config.Config
	jobs   JobStore
	runner SyncRunner
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg *config.Config, jobs JobStore, runner SyncRunner, logger *slog.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		jobs:   jobs,
		runner: runner,
		logger: logger,
	}
}

// Start begins watching for claimable sync jobs until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Starting sync job watcher", "poll_interval", w.cfg.PollInterval)

	// Pick up jobs left over from previous runs
	w.processClaimable(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher shutting down, waiting for in-flight syncs")
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			w.processClaimable(ctx)
		}
	}
}

func (w *Watcher) processClaimable(ctx context.Context) {
	jobs, err := w.jobs.GetClaimable(ctx, w.cfg.StaleJobAfter, claimBatchSize)
	if err != nil {
		w.logger.Error("Failed to query claimable jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	w.logger.Info("Found claimable sync jobs", "count", len(jobs))

	for i := range jobs {
		job := jobs[i]

		claimed, err := w.jobs.Claim(ctx, job.TenantID, w.cfg.StaleJobAfter)
		if err != nil {
			w.logger.Error("Failed to claim sync job", "tenant_id", job.TenantID, "error", err)
			continue
		}
		if !claimed {
			// Another worker got there first
			continue
		}

		if job.HeartbeatAt != nil {
			w.logger.Warn("Resuming abandoned sync job",
				"tenant_id", job.TenantID, "run_id", job.RunID,
				"years_synced", len(job.YearsSynced))
		}

		w.wg.Add(1)
		go func(job models.SyncJob) {
			defer w.wg.Done()
			if err := w.runner.Run(ctx, &job); err != nil {
				w.logger.Error("Sync run ended with error", "tenant_id", job.TenantID, "error", err)
			}
		}(job)
	}
}
