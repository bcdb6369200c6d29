package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	platformadapter "github.com/ericfisherdev/lifesync/internal/adapter/driven/platform"
	sqliteadapter "github.com/ericfisherdev/lifesync/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/lifesync/internal/adapter/driving/http"
	"github.com/ericfisherdev/lifesync/internal/application"
	"github.com/ericfisherdev/lifesync/internal/config"
	"github.com/ericfisherdev/lifesync/internal/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"scheduler_interval", cfg.SchedulerInterval,
		"sync_workers", cfg.SyncWorkers,
		"encryption", cfg.HasSecretKey(),
	)
	if !cfg.HasSecretKey() {
		slog.Warn("LIFESYNC_SECRET_KEY not set, credential values will be stored unencrypted")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	jobLogStore := sqliteadapter.NewJobLogRepo(db)
	legacyJobStore := sqliteadapter.NewLegacySyncJobRepo(db)
	recordStore := sqliteadapter.NewRecordRepo(db)
	lockStore := sqliteadapter.NewLockRepo(db)

	clients := platformadapter.NewClients(platformadapter.DefaultLimiters())
	slog.Info("platform adapters registered", "count", len(clients))

	// 6. Create vault for credential encryption at rest.
	v, err := vault.New(cfg.SecretKey)
	if err != nil {
		return err
	}

	// 7. Create application services.
	orchestrator := application.NewSyncOrchestrator(
		credentialStore,
		jobLogStore,
		recordStore,
		lockStore,
		clients,
		v,
		cfg.LockMaxAge,
		cfg.FailureThreshold,
	)
	validator := application.NewValidator(credentialStore, clients, v)
	statusAggregator := application.NewStatusAggregator(jobLogStore, legacyJobStore)

	// 7b. Start the auto-sync scheduler.
	scheduler := application.NewScheduler(credentialStore, orchestrator, cfg.SchedulerInterval, cfg.SyncWorkers)
	go scheduler.Start(ctx)

	// 8. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(
		credentialStore,
		jobLogStore,
		orchestrator,
		validator,
		statusAggregator,
		v,
		db.Reader,
		slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 9. Log startup complete.
	slog.Info("lifesync started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for HTTP server drain. A sync
	// still running loses its in-process goroutine; its lock goes stale and a
	// later trigger reclaims it.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 12. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
