package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/taxlens/ledgersync-worker/internal/config"
	"github.com/taxlens/ledgersync-worker/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockJobStore struct {
	mu          sync.Mutex
	claimable   []models.SyncJob
	claimResult map[string]bool
	claimCalls  []string
}

func (m *mockJobStore) GetClaimable(ctx context.Context, staleAfter time.Duration, limit int) ([]models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.claimable
	m.claimable = nil // hand out each batch once
	return jobs, nil
}

func (m *mockJobStore) Claim(ctx context.Context, tenantID string, staleAfter time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls = append(m.claimCalls, tenantID)
	if m.claimResult == nil {
		return true, nil
	}
	return m.claimResult[tenantID], nil
}

type mockRunner struct {
	mu   sync.Mutex
	ran  []string
	err  error
	done chan struct{}
}

func (m *mockRunner) Run(ctx context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	m.ran = append(m.ran, job.TenantID)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

func (m *mockRunner) ranTenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ran...)
}

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:  50 * time.Millisecond,
		StaleJobAfter: 5 * time.Minute,
	}
}

func TestWatcher_ClaimsAndRunsJobsOnStartup(t *testing.T) {
	hb := time.Now().Add(-time.Hour)
	store := &mockJobStore{
		claimable: []models.SyncJob{
			{TenantID: "t1", Status: models.StatusSyncing, HeartbeatAt: &hb},
			{TenantID: "t2", Status: models.StatusSyncing},
		},
	}
	runner := &mockRunner{done: make(chan struct{}, 2)}

	w := New(testConfig(), store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs to run")
		}
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	ran := runner.ranTenants()
	if len(ran) != 2 {
		t.Fatalf("expected 2 runs, got %v", ran)
	}
}

func TestWatcher_SkipsJobsClaimedElsewhere(t *testing.T) {
	store := &mockJobStore{
		claimable: []models.SyncJob{
			{TenantID: "t1", Status: models.StatusSyncing},
			{TenantID: "t2", Status: models.StatusSyncing},
		},
		claimResult: map[string]bool{"t1": false, "t2": true},
	}
	runner := &mockRunner{done: make(chan struct{}, 2)}

	w := New(testConfig(), store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for claimed job to run")
	}

	cancel()
	<-errCh

	ran := runner.ranTenants()
	if len(ran) != 1 || ran[0] != "t2" {
		t.Errorf("expected only t2 to run, got %v", ran)
	}

	store.mu.Lock()
	claims := len(store.claimCalls)
	store.mu.Unlock()
	if claims != 2 {
		t.Errorf("expected both jobs attempted, got %d claim calls", claims)
	}
}

func TestWatcher_WaitsForInFlightRunsOnShutdown(t *testing.T) {
	store := &mockJobStore{
		claimable: []models.SyncJob{{TenantID: "t1", Status: models.StatusSyncing}},
	}

	started := make(chan struct{})
	finished := make(chan struct{})
	runner := &slowRunner{started: started, finished: finished}

	w := New(testConfig(), store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run to start")
	}

	cancel()
	close(finished)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down after in-flight run finished")
	}
}

type slowRunner struct {
	started  chan struct{}
	finished chan struct{}
}

func (r *slowRunner) Run(ctx context.Context, job *models.SyncJob) error {
	close(r.started)
	<-r.finished
	return nil
}
