package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LockStore = (*LockRepo)(nil)

// LockRepo is the SQLite implementation of the per-credential advisory lock.
// Acquisition is a single upsert statement on the writer connection; with
// the writer capped at one connection, two concurrent acquires for the same
// credential cannot interleave.
type LockRepo struct {
	db *DB
}

// NewLockRepo creates a new LockRepo backed by the given DB.
func NewLockRepo(db *DB) *LockRepo {
	return &LockRepo{db: db}
}

// Acquire takes the credential's lock for jobID. A live holder (acquired
// after staleBefore) wins and the call returns ErrLockHeld; a stale holder
// is presumed crashed and its lock is reclaimed in the same statement.
func (r *LockRepo) Acquire(ctx context.Context, credentialID, jobID string, staleBefore time.Time) error {
	const query = `
		INSERT INTO sync_locks (credential_id, job_id, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT (credential_id) DO UPDATE SET
			job_id = excluded.job_id,
			acquired_at = excluded.acquired_at
		WHERE sync_locks.acquired_at <= ?
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		credentialID, jobID, formatTime(time.Now()), formatTime(staleBefore),
	)
	if err != nil {
		return fmt.Errorf("acquire lock for credential %s: %w", credentialID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire lock for credential %s: rows affected: %w", credentialID, err)
	}
	if n == 0 {
		return driven.ErrLockHeld
	}
	return nil
}

// Holder returns the job id currently holding the credential's lock, or ""
// when the lock is free.
func (r *LockRepo) Holder(ctx context.Context, credentialID string) (string, error) {
	const query = `SELECT job_id FROM sync_locks WHERE credential_id = ?`

	var jobID string
	err := r.db.Reader.QueryRowContext(ctx, query, credentialID).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock holder for credential %s: %w", credentialID, err)
	}
	return jobID, nil
}

// Release frees the lock only if jobID still holds it, so a job whose lock
// was reclaimed after the max age cannot free its successor's lock.
func (r *LockRepo) Release(ctx context.Context, credentialID, jobID string) error {
	const query = `DELETE FROM sync_locks WHERE credential_id = ? AND job_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialID, jobID); err != nil {
		return fmt.Errorf("release lock for credential %s: %w", credentialID, err)
	}
	return nil
}
