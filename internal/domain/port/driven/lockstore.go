package driven

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by LockStore.Acquire when another live job holds
// the credential's advisory lock. It is a no-op signal, not a failure: the
// holding job is authoritative.
var ErrLockHeld = errors.New("sync lock held by a running job")

// LockStore defines the driven port for per-credential advisory locks.
// Locks carry a max age: a holder older than the staleBefore cutoff is
// presumed crashed and its lock is reclaimable. The stale job's log row is
// left as running in the audit trail, never rewritten.
type LockStore interface {
	// Acquire takes the credential's lock for jobID, reclaiming any holder
	// acquired before staleBefore. Returns ErrLockHeld on contention.
	Acquire(ctx context.Context, credentialID, jobID string, staleBefore time.Time) error

	// Holder returns the job id currently holding the credential's lock,
	// or "" when the lock is free.
	Holder(ctx context.Context, credentialID string) (string, error)

	// Release frees the lock if jobID still holds it. Releasing a lock that
	// was reclaimed by a newer job is a no-op.
	Release(ctx context.Context, credentialID, jobID string) error
}
