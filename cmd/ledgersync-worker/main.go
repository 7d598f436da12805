package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taxlens/ledgersync-worker/internal/config"
	"github.com/taxlens/ledgersync-worker/internal/database"
	"github.com/taxlens/ledgersync-worker/internal/logging"
	"github.com/taxlens/ledgersync-worker/internal/repository"
	"github.com/taxlens/ledgersync-worker/internal/service"
	"github.com/taxlens/ledgersync-worker/internal/watcher"
	"github.com/taxlens/ledgersync-worker/internal/xero"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	logger.Info("Database connected successfully")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	logger.Info("Migrations completed successfully")

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(db)
	jobRepo := repository.NewSyncJobRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// Initialize accounting API client and services
	xeroClient := xero.NewClient(cfg.XeroClientID, cfg.XeroClientSecret,
		cfg.XeroAPIBaseURL, cfg.XeroTokenURL, cfg.MaxPageRetries, logger)
	tokenManager := service.NewTokenManager(connectionRepo, xeroClient, logger)
	syncService := service.NewSyncService(jobRepo, transactionRepo, tokenManager,
		xeroClient, logger, cfg.StaleJobAfter)

	// Initialize watcher
	w := watcher.New(cfg, jobRepo, syncService, logger)

	// Metrics endpoint
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", "error", err)
		}
	}()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		_ = metricsServer.Shutdown(shutdownCtx)

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				logger.Error("Watcher error", "error", err)
			}
		}

		logger.Info("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
