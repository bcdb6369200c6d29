package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.JobLogStore        = (*JobLogRepo)(nil)
	_ driven.LegacySyncJobStore = (*LegacySyncJobRepo)(nil)
)

// JobLogRepo is the SQLite implementation of the JobLogStore port. The table
// is append-only: Create is the only INSERT, UpdateStatus the only UPDATE,
// and no DELETE exists anywhere in this package.
type JobLogRepo struct {
	db *DB
}

// NewJobLogRepo creates a new JobLogRepo backed by the given DB.
func NewJobLogRepo(db *DB) *JobLogRepo {
	return &JobLogRepo{db: db}
}

const jobLogColumns = `id, platform, credential_id, triggered_by, job_type, status,
	started_at, completed_at, duration_ms, items_total, items_success, items_failed,
	items_new, items_existing, message, error_stack, error_details, metrics`

// Create inserts a new job log row.
func (r *JobLogRepo) Create(ctx context.Context, job model.SyncJobLog) error {
	errorDetails, err := marshalMap(job.ErrorDetails)
	if err != nil {
		return err
	}
	metrics, err := marshalMap(job.Metrics)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO sync_job_logs (
			id, platform, credential_id, triggered_by, job_type, status,
			started_at, completed_at, duration_ms, items_total, items_success,
			items_failed, items_new, items_existing, message, error_stack,
			error_details, metrics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var credentialID any
	if job.CredentialID != "" {
		credentialID = job.CredentialID
	}

	jobType := job.JobType
	if jobType == "" {
		jobType = "incremental"
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		job.ID, string(job.Platform), credentialID, string(job.TriggeredBy),
		jobType, string(job.Status), formatTime(job.StartedAt), nullableTime(job.CompletedAt),
		job.DurationMS, job.ItemsTotal, job.ItemsSuccess, job.ItemsFailed,
		job.ItemsNew, job.ItemsExisting, job.Message, job.ErrorStack,
		errorDetails, metrics,
	)
	if err != nil {
		return fmt.Errorf("create job log %s: %w", job.ID, err)
	}
	return nil
}

// UpdateStatus applies a lifecycle patch. The SET clause is built only from
// non-nil patch fields, so the closed patchable field set is enforced by
// construction: nothing else can be named here.
func (r *JobLogRepo) UpdateStatus(ctx context.Context, jobID string, patch model.JobPatch) error {
	var (
		sets []string
		args []any
	)

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.ItemsTotal != nil {
		add("items_total", *patch.ItemsTotal)
	}
	if patch.ItemsSuccess != nil {
		add("items_success", *patch.ItemsSuccess)
	}
	if patch.ItemsFailed != nil {
		add("items_failed", *patch.ItemsFailed)
	}
	if patch.ItemsNew != nil {
		add("items_new", *patch.ItemsNew)
	}
	if patch.ItemsExisting != nil {
		add("items_existing", *patch.ItemsExisting)
	}
	if patch.Message != nil {
		add("message", *patch.Message)
	}
	if patch.ErrorStack != nil {
		add("error_stack", *patch.ErrorStack)
	}
	if patch.ErrorDetails != nil {
		details, err := marshalMap(patch.ErrorDetails)
		if err != nil {
			return err
		}
		add("error_details", details)
	}
	if patch.CompletedAt != nil {
		add("completed_at", formatTime(*patch.CompletedAt))
	}
	if patch.DurationMS != nil {
		add("duration_ms", *patch.DurationMS)
	}
	if patch.Metrics != nil {
		metrics, err := marshalMap(patch.Metrics)
		if err != nil {
			return err
		}
		add("metrics", metrics)
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE sync_job_logs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, jobID)

	res, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job log %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job log %s: no such job", jobID)
	}
	return nil
}

// GetByID retrieves a job log. Returns nil, nil when absent.
func (r *JobLogRepo) GetByID(ctx context.Context, jobID string) (*model.SyncJobLog, error) {
	query := `SELECT ` + jobLogColumns + ` FROM sync_job_logs WHERE id = ?`

	job, err := scanJobLog(r.db.Reader.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job log %s: %w", jobID, err)
	}
	return job, nil
}

// LatestByPlatform returns the most recently started job for the platform,
// or nil, nil when none exists.
func (r *JobLogRepo) LatestByPlatform(ctx context.Context, platform model.Platform) (*model.SyncJobLog, error) {
	query := `SELECT ` + jobLogColumns + ` FROM sync_job_logs
		WHERE platform = ? ORDER BY started_at DESC LIMIT 1`

	job, err := scanJobLog(r.db.Reader.QueryRowContext(ctx, query, string(platform)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job log for %s: %w", platform, err)
	}
	return job, nil
}

// ListRecent returns up to limit jobs ordered by started_at descending,
// optionally filtered by platform.
func (r *JobLogRepo) ListRecent(ctx context.Context, platform string, limit int) ([]model.SyncJobLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobLogColumns + ` FROM sync_job_logs`
	var args []any
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var jobs []model.SyncJobLog
	for rows.Next() {
		job, err := scanJobLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job logs: %w", err)
	}
	return jobs, nil
}

func scanJobLog(row rowScanner) (*model.SyncJobLog, error) {
	var (
		job                   model.SyncJobLog
		platform, triggeredBy string
		status                string
		credentialID          sql.NullString
		startedAt             string
		completedAt           sql.NullString
		errorDetails, metrics string
	)

	err := row.Scan(
		&job.ID, &platform, &credentialID, &triggeredBy, &job.JobType, &status,
		&startedAt, &completedAt, &job.DurationMS, &job.ItemsTotal,
		&job.ItemsSuccess, &job.ItemsFailed, &job.ItemsNew, &job.ItemsExisting,
		&job.Message, &job.ErrorStack, &errorDetails, &metrics,
	)
	if err != nil {
		return nil, err
	}

	job.Platform = model.Platform(platform)
	job.TriggeredBy = model.TriggeredBy(triggeredBy)
	job.Status = model.JobStatus(status)
	job.CredentialID = credentialID.String

	if job.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if job.ErrorDetails, err = unmarshalMap(errorDetails); err != nil {
		return nil, err
	}
	if job.Metrics, err = unmarshalMap(metrics); err != nil {
		return nil, err
	}

	return &job, nil
}

// LegacySyncJobRepo reads the legacy sync_jobs table. This engine never
// writes it.
type LegacySyncJobRepo struct {
	db *DB
}

// NewLegacySyncJobRepo creates a new LegacySyncJobRepo backed by the given DB.
func NewLegacySyncJobRepo(db *DB) *LegacySyncJobRepo {
	return &LegacySyncJobRepo{db: db}
}

// LatestByPlatform returns the newest legacy row for the platform, or
// nil, nil when none exists.
func (r *LegacySyncJobRepo) LatestByPlatform(ctx context.Context, platform model.Platform) (*model.LegacySyncJob, error) {
	const query = `
		SELECT id, platform, status, last_sync_at FROM sync_jobs
		WHERE platform = ? ORDER BY last_sync_at DESC LIMIT 1
	`

	var (
		job        model.LegacySyncJob
		plat       string
		lastSyncAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, string(platform)).
		Scan(&job.ID, &plat, &job.Status, &lastSyncAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest legacy job for %s: %w", platform, err)
	}

	job.Platform = model.Platform(plat)
	if job.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
		return nil, fmt.Errorf("parse last_sync_at: %w", err)
	}
	return &job, nil
}
