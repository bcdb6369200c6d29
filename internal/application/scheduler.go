package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Scheduler wakes periodically, finds auto-sync credentials whose frequency
// interval has elapsed, and runs them through the orchestrator with a
// bounded worker pool.
type Scheduler struct {
	creds    driven.CredentialStore
	orch     *SyncOrchestrator
	interval time.Duration
	workers  int
}

// NewScheduler creates a Scheduler. workers bounds how many platform syncs
// run concurrently in one sweep.
func NewScheduler(creds driven.CredentialStore, orch *SyncOrchestrator, interval time.Duration, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		creds:    creds,
		orch:     orch,
		interval: interval,
		workers:  workers,
	}
}

// Start begins the scheduling loop. It runs an immediate sweep, then sweeps
// on the configured interval. Start blocks until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one due-credential pass. Lock contention inside the
// orchestrator makes overlapping sweeps harmless.
func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.creds.ListAutoSyncDue(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("auto-sync due query failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	slog.Info("auto-sync sweep", "due", len(due))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for _, cred := range due {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(c model.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.orch.SyncNow(ctx, c.ID, model.TriggerAuto)
			if err != nil {
				slog.Error("auto-sync failed to start", "credential", c.ID, "platform", c.Platform, "error", err)
				return
			}
			slog.Info("auto-sync job done", "credential", c.ID, "platform", c.Platform,
				"job", res.JobID, "status", string(res.Status))
		}(cred)
	}

	wg.Wait()
}
