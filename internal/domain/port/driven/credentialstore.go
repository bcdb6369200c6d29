package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// CredentialStore defines the driven port for credential persistence.
// Stored values are vault-tagged ciphertext (or untouched legacy plaintext);
// this interface never sees decrypted secrets.
type CredentialStore interface {
	// Create inserts a new credential. One credential per platform is
	// enforced by the store; a second insert for the same platform fails.
	Create(ctx context.Context, cred model.Credential) error

	// Update replaces the mutable configuration of an existing credential
	// (value, metadata, type, auto-sync settings).
	Update(ctx context.Context, cred model.Credential) error

	// GetByID retrieves a credential. Returns nil, nil when absent.
	GetByID(ctx context.Context, id string) (*model.Credential, error)

	// List returns all credentials ordered by platform.
	List(ctx context.Context) ([]model.Credential, error)

	// Delete removes a credential.
	Delete(ctx context.Context, id string) error

	// ListAutoSyncDue returns valid auto-sync credentials whose frequency
	// interval has elapsed since last_used_at as of now.
	ListAutoSyncDue(ctx context.Context, now time.Time) ([]model.Credential, error)

	// MarkUsed records a successful consumption: last_used_at, usage_count,
	// and resets failure_count.
	MarkUsed(ctx context.Context, id string, at time.Time) error

	// MarkValid sets the validation verdict and last_error.
	MarkValid(ctx context.Context, id string, valid bool, lastError string) error

	// MarkFailure increments failure_count and stores lastError. Once the
	// count reaches invalidAfter the credential is flagged invalid and drops
	// out of auto-sync until revalidated.
	MarkFailure(ctx context.Context, id string, lastError string, invalidAfter int) error
}
