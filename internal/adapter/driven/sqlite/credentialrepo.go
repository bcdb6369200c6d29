package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Values arrive already vault-tagged; the repo never encrypts or decrypts.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, platform, type, value, metadata, is_valid, last_used_at,
	usage_count, failure_count, last_error, auto_sync, sync_frequency, created_at, updated_at`

// Create inserts a new credential. The unique platform index enforces one
// credential per integration.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	metadata, err := marshalMap(cred.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO credentials (
			id, platform, type, value, metadata, is_valid, last_used_at,
			usage_count, failure_count, last_error, auto_sync, sync_frequency,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := formatTime(time.Now())
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.ID, string(cred.Platform), string(cred.Type), cred.Value, metadata,
		boolToInt(cred.IsValid), nullableTime(cred.LastUsedAt),
		cred.UsageCount, cred.FailureCount, cred.LastError,
		boolToInt(cred.AutoSync), string(cred.SyncFreq), now, now,
	)
	if err != nil {
		return fmt.Errorf("create credential for %s: %w", cred.Platform, err)
	}
	return nil
}

// Update replaces the mutable configuration of an existing credential.
// Bookkeeping counters are owned by MarkUsed/MarkFailure and left alone.
func (r *CredentialRepo) Update(ctx context.Context, cred model.Credential) error {
	metadata, err := marshalMap(cred.Metadata)
	if err != nil {
		return err
	}

	const query = `
		UPDATE credentials
		SET type = ?, value = ?, metadata = ?, auto_sync = ?, sync_frequency = ?,
		    updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(cred.Type), cred.Value, metadata,
		boolToInt(cred.AutoSync), string(cred.SyncFreq), formatTime(time.Now()), cred.ID,
	)
	if err != nil {
		return fmt.Errorf("update credential %s: %w", cred.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update credential %s: no such credential", cred.ID)
	}
	return nil
}

// GetByID retrieves a credential. Returns nil, nil when absent.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", id, err)
	}
	return cred, nil
}

// List returns all credentials ordered by platform.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY platform`
	return r.queryCredentials(ctx, query)
}

// Delete removes a credential.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM credentials WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}

// ListAutoSyncDue returns valid auto-sync credentials whose next tick is due.
// The frequency comparison happens in Go because interval arithmetic on the
// enum would otherwise be duplicated in SQL.
func (r *CredentialRepo) ListAutoSyncDue(ctx context.Context, now time.Time) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE auto_sync = 1 AND is_valid = 1 ORDER BY platform`

	creds, err := r.queryCredentials(ctx, query)
	if err != nil {
		return nil, err
	}

	due := make([]model.Credential, 0, len(creds))
	for _, cred := range creds {
		if cred.LastUsedAt == nil || now.Sub(*cred.LastUsedAt) >= cred.SyncFreq.Interval() {
			due = append(due, cred)
		}
	}
	return due, nil
}

// MarkUsed records a successful consumption and resets the failure streak.
func (r *CredentialRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE credentials
		SET last_used_at = ?, usage_count = usage_count + 1, failure_count = 0,
		    last_error = '', updated_at = ?
		WHERE id = ?
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("mark credential %s used: %w", id, err)
	}
	return nil
}

// MarkValid sets the validation verdict and last_error.
func (r *CredentialRepo) MarkValid(ctx context.Context, id string, valid bool, lastError string) error {
	const query = `
		UPDATE credentials
		SET is_valid = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, boolToInt(valid), lastError, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("mark credential %s valid=%v: %w", id, valid, err)
	}
	return nil
}

// MarkFailure increments failure_count; reaching invalidAfter consecutive
// failures auto-flags the credential invalid so auto-sync skips it until a
// human revalidates.
func (r *CredentialRepo) MarkFailure(ctx context.Context, id string, lastError string, invalidAfter int) error {
	const query = `
		UPDATE credentials
		SET failure_count = failure_count + 1,
		    last_error = ?,
		    is_valid = CASE WHEN failure_count + 1 >= ? THEN 0 ELSE is_valid END,
		    updated_at = ?
		WHERE id = ?
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, lastError, invalidAfter, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("mark credential %s failure: %w", id, err)
	}
	return nil
}

func (r *CredentialRepo) queryCredentials(ctx context.Context, query string, args ...any) ([]model.Credential, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	var (
		cred                 model.Credential
		platform, credType   string
		metadata, syncFreq   string
		isValid, autoSync    int
		lastUsedAt           sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&cred.ID, &platform, &credType, &cred.Value, &metadata, &isValid,
		&lastUsedAt, &cred.UsageCount, &cred.FailureCount, &cred.LastError,
		&autoSync, &syncFreq, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.Platform = model.Platform(platform)
	cred.Type = model.CredentialType(credType)
	cred.SyncFreq = model.SyncFrequency(syncFreq)
	cred.IsValid = isValid != 0
	cred.AutoSync = autoSync != 0

	if cred.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	if cred.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
