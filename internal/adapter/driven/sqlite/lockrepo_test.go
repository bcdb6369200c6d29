package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

func TestLockRepo_AcquireAndRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()
	stale := time.Now().Add(-30 * time.Minute)

	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-1", stale))

	holder, err := repo.Holder(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", holder)

	require.NoError(t, repo.Release(ctx, "cred-1", "job-1"))

	holder, err = repo.Holder(ctx, "cred-1")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestLockRepo_ContentionReturnsErrLockHeld(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()
	stale := time.Now().Add(-30 * time.Minute)

	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-1", stale))

	err := repo.Acquire(ctx, "cred-1", "job-2", stale)
	assert.True(t, errors.Is(err, driven.ErrLockHeld))

	// The original holder is untouched.
	holder, err := repo.Holder(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", holder)
}

func TestLockRepo_IndependentCredentials(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()
	stale := time.Now().Add(-30 * time.Minute)

	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-1", stale))
	require.NoError(t, repo.Acquire(ctx, "cred-2", "job-2", stale))
}

func TestLockRepo_StaleLockReclaimed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-old", time.Now().Add(-time.Hour)))

	// A cutoff in the future makes the existing holder stale.
	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-new", time.Now().Add(time.Minute)))

	holder, err := repo.Holder(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "job-new", holder)
}

func TestLockRepo_ReleaseByReclaimedHolderIsNoop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-old", time.Now().Add(-time.Hour)))
	require.NoError(t, repo.Acquire(ctx, "cred-1", "job-new", time.Now().Add(time.Minute)))

	// The orphaned job's deferred release must not free the new holder's lock.
	require.NoError(t, repo.Release(ctx, "cred-1", "job-old"))

	holder, err := repo.Holder(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "job-new", holder)
}

func TestLockRepo_NearSimultaneousAcquires(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepo(db)
	ctx := context.Background()
	stale := time.Now().Add(-30 * time.Minute)

	const attempts = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := repo.Acquire(ctx, "cred-1", "job", stale)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, driven.ErrLockHeld) {
				t.Errorf("unexpected acquire error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one contender may win the lock")
}
