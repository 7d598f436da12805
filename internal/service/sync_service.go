package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taxlens/ledgersync-worker/internal/metrics"
	"github.com/taxlens/ledgersync-worker/internal/models"
)

const (
	MinYearsBack = 1
	MaxYearsBack = 10
)

var ErrInvalidYears = errors.New("requested years out of range")

// SyncOptions are the caller-facing knobs for a sync request
type SyncOptions struct {
	Years       int
	ForceResync bool
}

// TransactionPage is one page of raw transaction records from the accounting
// API, plus the pagination block the API reports alongside it
type TransactionPage struct {
	Records   []map[string]interface{}
	Page      int
	PageCount int
	ItemCount int
}

// AccountingClient is the fetcher contract against the external API
type AccountingClient interface {
	FetchTransactionsPage(ctx context.Context, token *TokenSet, fromDate, toDate time.Time, page int) (*TransactionPage, error)
}

// TokenProvider yields usable credentials for a tenant
type TokenProvider interface {
	GetValidTokenSet(ctx context.Context, tenantID string) (*TokenSet, error)
}

// SyncJobStore is the persistence contract for the per-tenant job snapshot
type SyncJobStore interface {
	GetByTenantID(ctx context.Context, tenantID string) (*models.SyncJob, error)
	Save(ctx context.Context, job *models.SyncJob) error
}

// TransactionStore is the cache upsert layer
type TransactionStore interface {
	UpsertBatch(ctx context.Context, txns []models.CachedTransaction, overwrite bool) (int, error)
	CountByFinancialYear(ctx context.Context, tenantID, financialYear string) (int64, error)
}

// SyncService orchestrates historical ledger synchronization per tenant:
// token precondition, per-year paging, normalization, idempotent caching and
// the persisted progress snapshot that pollers read.
type SyncService struct {
	jobs       SyncJobStore
	txns       TransactionStore
	tokens     TokenProvider
	client     AccountingClient
	logger     *slog.Logger
	staleAfter time.Duration
}

func NewSyncService(
	jobs SyncJobStore,
	txns TransactionStore,
	tokens TokenProvider,
	client AccountingClient,
	logger *slog.Logger,
	staleAfter time.Duration,
) *SyncService {
	return &SyncService{
		jobs:       jobs,
		txns:       txns,
		tokens:     tokens,
		client:     client,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// StartSync validates the request, enforces at-most-one-live-sync per tenant
// and persists a fresh syncing snapshot for a worker to claim. A call while a
// live run exists returns that run's snapshot unchanged. The token
// precondition is checked before any snapshot is written: if no valid token
// can be obtained, no job is created.
func (s *SyncService) StartSync(ctx context.Context, tenantID string, opts SyncOptions) (*models.SyncJob, error) {
	if opts.Years < MinYearsBack || opts.Years > MaxYearsBack {
		return nil, fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidYears, opts.Years, MinYearsBack, MaxYearsBack)
	}

	existing, err := s.jobs.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Status == models.StatusSyncing &&
		!existing.HeartbeatStale(time.Now(), s.staleAfter) {
		s.logger.Info("Sync already in progress, returning current snapshot",
			"tenant_id", tenantID, "progress", existing.Progress)
		return existing, nil
	}

	if _, err := s.tokens.GetValidTokenSet(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("sync precondition failed: %w", err)
	}

	job := &models.SyncJob{
		TenantID:       tenantID,
		Status:         models.StatusSyncing,
		Progress:       0,
		RequestedYears: opts.Years,
		ForceResync:    opts.ForceResync,
		RunID:          uuid.New().String(),
		YearsSynced:    models.StringList{},
		CreatedAt:      time.Now(),
	}

	// Years cached by earlier runs stay skipped unless the caller forces a
	// resync; the cache is incremental across runs.
	if existing != nil && !opts.ForceResync {
		job.YearsSynced = existing.YearsSynced
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Sync started", "tenant_id", tenantID, "run_id", job.RunID,
		"years", opts.Years, "force_resync", opts.ForceResync)

	return job, nil
}

// GetStatus is a pure read of the persisted snapshot. A tenant that has never
// synced reads as an idle job.
func (s *SyncService) GetStatus(ctx context.Context, tenantID string) (*models.SyncJob, error) {
	job, err := s.jobs.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &models.SyncJob{
			TenantID:    tenantID,
			Status:      models.StatusIdle,
			YearsSynced: models.StringList{},
		}, nil
	}
	return job, nil
}

// Run executes a claimed sync job to a terminal state. It resumes from the
// persisted snapshot: years already in YearsSynced are not re-fetched. All
// fetch and refresh errors terminate the run into the error status; nothing
// propagates to the caller that triggered the sync.
func (s *SyncService) Run(ctx context.Context, job *models.SyncJob) error {
	start := time.Now()
	metrics.SyncsActive.Inc()
	defer metrics.SyncsActive.Dec()

	logger := s.logger.With("tenant_id", job.TenantID, "run_id", job.RunID)

	token, err := s.tokens.GetValidTokenSet(ctx, job.TenantID)
	if err != nil {
		return s.fail(ctx, job, start, logger, fmt.Errorf("token unavailable: %w", err))
	}

	years := FinancialYearsBack(time.Now(), job.RequestedYears)
	for _, fy := range years {
		if job.YearsSynced.Contains(fy.Label) {
			cached, err := s.txns.CountByFinancialYear(ctx, job.TenantID, fy.Label)
			if err != nil {
				cached = -1
			}
			logger.Info("Year already cached, skipping", "year", fy.Label, "cached_rows", cached)
			continue
		}

		if err := s.syncYear(ctx, job, token, fy, logger); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Interrupted, not failed: leave the job syncing so the next
				// claim resumes it once the heartbeat goes stale
				logger.Warn("Sync interrupted, job left resumable", "year", fy.Label)
				s.persistOnShutdown(job, logger)
				return err
			}
			return s.fail(ctx, job, start, logger, fmt.Errorf("year %s: %w", fy.Label, err))
		}

		job.YearsSynced = append(job.YearsSynced, fy.Label)
		job.CurrentYear = ""
		s.stampHeartbeat(job)
		if err := s.jobs.Save(ctx, job); err != nil {
			return err
		}
	}

	job.Status = models.StatusComplete
	job.Progress = 100
	job.ErrorMessage = nil
	if err := s.jobs.Save(ctx, job); err != nil {
		return err
	}

	metrics.SyncDuration.WithLabelValues(string(models.StatusComplete)).Observe(time.Since(start).Seconds())
	logger.Info("Sync complete",
		"transactions_synced", job.TransactionsSynced,
		"years_synced", len(job.YearsSynced),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// syncYear pages through one financial year, normalizing and caching each
// page and persisting progress so concurrent pollers observe it monotonically
func (s *SyncService) syncYear(ctx context.Context, job *models.SyncJob, token *TokenSet, fy FinancialYear, logger *slog.Logger) error {
	job.CurrentYear = fy.Label
	s.stampHeartbeat(job)
	if err := s.jobs.Save(ctx, job); err != nil {
		return err
	}

	logger.Info("Fetching year", "year", fy.Label, "from", fy.Start.Format("2006-01-02"), "to", fy.End.Format("2006-01-02"))

	for page := 1; ; page++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := s.client.FetchTransactionsPage(ctx, token, fy.Start, fy.End, page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		metrics.PagesFetched.WithLabelValues(fy.Label).Inc()

		if page == 1 {
			job.TotalEstimated += result.ItemCount
		}

		txns := make([]models.CachedTransaction, 0, len(result.Records))
		for _, record := range result.Records {
			txn, err := Normalize(job.TenantID, fy, record)
			if err != nil {
				logger.Warn("Skipping malformed transaction record", "year", fy.Label, "error", err)
				continue
			}
			txns = append(txns, txn)
		}

		written, err := s.txns.UpsertBatch(ctx, txns, job.ForceResync)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		outcome := "inserted"
		if job.ForceResync {
			outcome = "overwritten"
		}
		metrics.TransactionsUpserted.WithLabelValues(outcome).Add(float64(written))
		metrics.TransactionsUpserted.WithLabelValues("skipped").Add(float64(len(txns) - written))

		job.TransactionsSynced += len(txns)
		s.updateProgress(job)
		s.stampHeartbeat(job)
		if err := s.jobs.Save(ctx, job); err != nil {
			return err
		}

		if len(result.Records) == 0 || result.PageCount == 0 || page >= result.PageCount {
			break
		}
	}

	return nil
}

// updateProgress recomputes the clamped percentage; it never moves backwards
// within a run even when estimates shift
func (s *SyncService) updateProgress(job *models.SyncJob) {
	if job.TotalEstimated <= 0 {
		return
	}
	pct := job.TransactionsSynced * 100 / job.TotalEstimated
	if pct > 100 {
		pct = 100
	}
	if pct > job.Progress {
		job.Progress = pct
	}
}

func (s *SyncService) stampHeartbeat(job *models.SyncJob) {
	now := time.Now()
	job.HeartbeatAt = &now
}

func (s *SyncService) fail(ctx context.Context, job *models.SyncJob, start time.Time, logger *slog.Logger, cause error) error {
	msg := cause.Error()
	job.Status = models.StatusError
	job.ErrorMessage = &msg

	if err := s.jobs.Save(ctx, job); err != nil {
		logger.Error("Failed to persist error status", "error", err, "cause", cause)
	}

	metrics.SyncDuration.WithLabelValues(string(models.StatusError)).Observe(time.Since(start).Seconds())
	logger.Error("Sync failed", "error", cause,
		"years_synced", len(job.YearsSynced),
		"transactions_synced", job.TransactionsSynced,
	)
	return cause
}

// persistOnShutdown writes the snapshot on a fresh context since the run's
// own context is already cancelled
func (s *SyncService) persistOnShutdown(job *models.SyncJob, logger *slog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.Save(cleanupCtx, job); err != nil {
		logger.Error("Failed to persist snapshot during shutdown", "error", err)
	}
}
