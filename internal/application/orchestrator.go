// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
	"github.com/ericfisherdev/lifesync/internal/vault"
)

// counterFlushEvery controls how often streaming item counters are written
// onto the running job-log row, so progress is visible mid-job.
const counterFlushEvery = 25

// defaultWindows bound the first sync (and any sync after a long gap) per
// platform. High-churn platforms get short windows, slow-moving ones longer.
var defaultWindows = map[model.Platform]time.Duration{
	model.PlatformSteam:     14 * 24 * time.Hour,
	model.PlatformJellyfin:  14 * 24 * time.Hour,
	model.PlatformGitHub:    30 * 24 * time.Hour,
	model.PlatformHoYoverse: 30 * 24 * time.Hour,
	model.PlatformBilibili:  90 * 24 * time.Hour,
	model.PlatformDouban:    90 * 24 * time.Hour,
}

// TriggerResult reports what a sync trigger did: the job now covering the
// credential (newly started or already running) and its status. Existing is
// set when lock contention routed the caller to a job it did not start.
type TriggerResult struct {
	JobID    string
	Status   model.JobStatus
	Existing bool
}

// SyncOrchestrator runs the per-credential sync state machine: lock
// acquisition, job-log lifecycle, cursor computation, streaming upsert,
// and terminal-status finalization.
type SyncOrchestrator struct {
	creds   driven.CredentialStore
	jobs    driven.JobLogStore
	records driven.RecordStore
	locks   driven.LockStore
	clients map[model.Platform]driven.PlatformClient
	vault   *vault.Vault

	lockMaxAge       time.Duration
	failureThreshold int
}

// NewSyncOrchestrator creates a SyncOrchestrator with all required
// dependencies.
func NewSyncOrchestrator(
	creds driven.CredentialStore,
	jobs driven.JobLogStore,
	records driven.RecordStore,
	locks driven.LockStore,
	clients map[model.Platform]driven.PlatformClient,
	v *vault.Vault,
	lockMaxAge time.Duration,
	failureThreshold int,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		creds:            creds,
		jobs:             jobs,
		records:          records,
		locks:            locks,
		clients:          clients,
		vault:            v,
		lockMaxAge:       lockMaxAge,
		failureThreshold: failureThreshold,
	}
}

// Trigger starts a sync for the credential and returns immediately; the
// fetch runs in the background. If another live job already holds the
// credential's lock, Trigger reports that job instead of starting a new one.
func (s *SyncOrchestrator) Trigger(ctx context.Context, credentialID string, by model.TriggeredBy) (*TriggerResult, error) {
	cred, jobID, err := s.begin(ctx, credentialID, by)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		// Lock contention: jobID is the existing holder.
		return &TriggerResult{JobID: jobID, Status: model.JobStatusRunning, Existing: true}, nil
	}

	// The job must outlive the HTTP request that triggered it.
	go s.runJob(context.WithoutCancel(ctx), *cred, jobID)

	return &TriggerResult{JobID: jobID, Status: model.JobStatusRunning}, nil
}

// SyncNow runs a sync for the credential to completion. The scheduler uses
// this path so its worker pool bounds actual concurrent fetches.
func (s *SyncOrchestrator) SyncNow(ctx context.Context, credentialID string, by model.TriggeredBy) (*TriggerResult, error) {
	cred, jobID, err := s.begin(ctx, credentialID, by)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &TriggerResult{JobID: jobID, Status: model.JobStatusRunning, Existing: true}, nil
	}

	s.runJob(ctx, *cred, jobID)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return &TriggerResult{JobID: jobID, Status: model.JobStatusRunning}, nil
	}
	return &TriggerResult{JobID: jobID, Status: job.Status}, nil
}

// begin loads the credential, takes its lock, and creates the running
// job-log row. On lock contention it returns (nil, holderJobID, nil).
func (s *SyncOrchestrator) begin(ctx context.Context, credentialID string, by model.TriggeredBy) (*model.Credential, string, error) {
	cred, err := s.creds.GetByID(ctx, credentialID)
	if err != nil {
		return nil, "", fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, "", &model.CredentialError{CredentialID: credentialID, Reason: "not found"}
	}
	if _, ok := s.clients[cred.Platform]; !ok {
		return nil, "", fmt.Errorf("no adapter registered for platform %s", cred.Platform)
	}

	jobID := uuid.NewString()
	staleBefore := time.Now().UTC().Add(-s.lockMaxAge)

	if err := s.locks.Acquire(ctx, credentialID, jobID, staleBefore); err != nil {
		if !errors.Is(err, driven.ErrLockHeld) {
			return nil, "", fmt.Errorf("acquire sync lock: %w", err)
		}
		holder, herr := s.locks.Holder(ctx, credentialID)
		if herr != nil {
			return nil, "", fmt.Errorf("inspect sync lock: %w", herr)
		}
		slog.Info("sync already running", "credential", credentialID, "job", holder)
		return nil, holder, nil
	}

	job := model.SyncJobLog{
		ID:           jobID,
		Platform:     cred.Platform,
		CredentialID: cred.ID,
		TriggeredBy:  by,
		JobType:      "incremental",
		Status:       model.JobStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// Without a job-log row the lock has no audit trail; give it back.
		if rerr := s.locks.Release(ctx, credentialID, jobID); rerr != nil {
			slog.Error("lock release after job create failure", "credential", credentialID, "error", rerr)
		}
		return nil, "", fmt.Errorf("create job log: %w", err)
	}

	return cred, jobID, nil
}

// jobCounters accumulates streaming upsert results for one job.
type jobCounters struct {
	total, success, failed, newItems, existing int
}

// runJob executes the sync body for an already-locked, already-logged job.
// Every exit path releases the lock and finalizes the job-log row; a panic
// inside the body is recovered and recorded as a failure with its stack.
func (s *SyncOrchestrator) runJob(ctx context.Context, cred model.Credential, jobID string) {
	started := time.Now().UTC()

	defer func() {
		if err := s.locks.Release(ctx, cred.ID, jobID); err != nil {
			slog.Error("sync lock release failed", "credential", cred.ID, "job", jobID, "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			slog.Error("sync job panicked", "job", jobID, "platform", cred.Platform, "panic", r)
			s.finalize(ctx, jobID, started, model.JobStatusFailed, jobCounters{},
				fmt.Sprintf("panic: %v", r), stack, nil)
		}
	}()

	secret, err := s.vault.Decrypt(cred.Value)
	if err != nil {
		msg := fmt.Sprintf("credential unusable: %v", err)
		s.finalize(ctx, jobID, started, model.JobStatusFailed, jobCounters{}, msg, "", nil)
		s.recordFailure(ctx, cred.ID, msg)
		return
	}
	plain := cred
	plain.Value = secret

	since, err := s.cursor(ctx, cred.Platform)
	if err != nil {
		s.finalize(ctx, jobID, started, model.JobStatusFailed, jobCounters{},
			fmt.Sprintf("compute cursor: %v", err), "", nil)
		return
	}

	slog.Info("sync started", "job", jobID, "platform", cred.Platform, "since", since)

	client := s.clients[cred.Platform]
	res, err := client.FetchIncremental(ctx, plain, since)
	if err != nil {
		msg := err.Error()
		s.finalize(ctx, jobID, started, model.JobStatusFailed, jobCounters{}, msg, "",
			errorDetails(err))
		s.recordFailure(ctx, cred.ID, msg)
		return
	}

	var c jobCounters
	c.total = len(res.Records)
	for i, rec := range res.Records {
		outcome, uerr := s.records.UpsertCanonical(ctx, rec)
		if uerr != nil {
			slog.Error("upsert failed", "job", jobID, "platform", cred.Platform,
				"external_id", rec.ExternalID, "error", uerr)
			c.failed++
		} else {
			c.success++
			switch outcome {
			case model.OutcomeNew:
				c.newItems++
			case model.OutcomeExisting:
				c.existing++
			}
		}

		if (i+1)%counterFlushEvery == 0 {
			s.flushCounters(ctx, jobID, c)
		}
	}

	status := model.JobStatusSuccess
	var msg string
	switch {
	case res.Partial:
		status = model.JobStatusPartial
		msg = "fetch stopped early"
		if res.Err != nil {
			msg = res.Err.Error()
		}
	case c.failed > 0:
		status = model.JobStatusPartial
		msg = fmt.Sprintf("%d of %d items failed to persist", c.failed, c.total)
	}

	s.finalize(ctx, jobID, started, status, c, msg, "", errorDetails(res.Err))

	if err := s.creds.MarkUsed(ctx, cred.ID, time.Now().UTC()); err != nil {
		slog.Error("mark credential used failed", "credential", cred.ID, "error", err)
	}

	slog.Info("sync finished", "job", jobID, "platform", cred.Platform,
		"status", string(status), "total", c.total, "new", c.newItems,
		"existing", c.existing, "failed", c.failed,
		"duration", time.Since(started).Round(time.Millisecond))
}

// cursor computes the incremental fetch watermark: the newest persisted
// record, floored by the platform's default window so a first sync never
// crawls the full account history.
func (s *SyncOrchestrator) cursor(ctx context.Context, platform model.Platform) (time.Time, error) {
	latest, err := s.records.LatestOccurredAt(ctx, platform)
	if err != nil {
		return time.Time{}, err
	}

	window, ok := defaultWindows[platform]
	if !ok {
		window = 30 * 24 * time.Hour
	}
	floor := time.Now().UTC().Add(-window)

	if latest.After(floor) {
		return latest, nil
	}
	return floor, nil
}

// flushCounters patches the in-flight counters onto the job-log row.
// Failures are logged only; losing a mid-job flush costs nothing.
func (s *SyncOrchestrator) flushCounters(ctx context.Context, jobID string, c jobCounters) {
	patch := model.JobPatch{
		ItemsTotal:    &c.total,
		ItemsSuccess:  &c.success,
		ItemsFailed:   &c.failed,
		ItemsNew:      &c.newItems,
		ItemsExisting: &c.existing,
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, patch); err != nil {
		slog.Error("counter flush failed", "job", jobID, "error", err)
	}
}

// finalize writes the terminal patch: status, counters, completion fields,
// and any error context.
func (s *SyncOrchestrator) finalize(
	ctx context.Context,
	jobID string,
	started time.Time,
	status model.JobStatus,
	c jobCounters,
	message, stack string,
	details map[string]string,
) {
	completed := time.Now().UTC()
	duration := completed.Sub(started).Milliseconds()

	patch := model.JobPatch{
		Status:        &status,
		ItemsTotal:    &c.total,
		ItemsSuccess:  &c.success,
		ItemsFailed:   &c.failed,
		ItemsNew:      &c.newItems,
		ItemsExisting: &c.existing,
		CompletedAt:   &completed,
		DurationMS:    &duration,
	}
	if message != "" {
		patch.Message = &message
	}
	if stack != "" {
		patch.ErrorStack = &stack
	}
	if details != nil {
		patch.ErrorDetails = details
	}

	if err := s.jobs.UpdateStatus(ctx, jobID, patch); err != nil {
		slog.Error("job finalize failed", "job", jobID, "status", string(status), "error", err)
	}
}

// recordFailure bumps the credential's failure count, auto-invalidating it
// once the threshold is reached.
func (s *SyncOrchestrator) recordFailure(ctx context.Context, credentialID, lastError string) {
	if err := s.creds.MarkFailure(ctx, credentialID, lastError, s.failureThreshold); err != nil {
		slog.Error("mark credential failure failed", "credential", credentialID, "error", err)
	}
}

// errorDetails extracts structured context from classified adapter errors.
func errorDetails(err error) map[string]string {
	if err == nil {
		return nil
	}
	var aerr *model.AdapterError
	if errors.As(err, &aerr) {
		return map[string]string{
			"platform": string(aerr.Platform),
			"kind":     string(aerr.Kind),
		}
	}
	return nil
}
