package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ProbeStatus is the outcome of a lightweight credential probe.
type ProbeStatus string

const (
	ProbeOk           ProbeStatus = "ok"
	ProbeAuthRejected ProbeStatus = "auth_rejected"
	ProbeRateLimited  ProbeStatus = "rate_limited"
	ProbeUnreachable  ProbeStatus = "unreachable"
)

// ProbeResult carries the probe verdict plus a human-readable detail
// (e.g. distinguishing a private Steam profile from a bad key).
type ProbeResult struct {
	Status ProbeStatus
	Detail string
}

// FetchResult is one incremental fetch's output. When a page fails after
// capped retries mid-stream, adapters return the records collected so far
// with Partial=true and the page error in Err instead of discarding
// progress; only a first-page auth/unreachable failure surfaces as a bare
// error from FetchIncremental.
type FetchResult struct {
	Records    []model.CanonicalRecord
	NextCursor time.Time
	Partial    bool
	Err        error
}

// PlatformClient is the capability set every platform adapter implements.
// Each implementation is a flat value holding only its own config and HTTP
// client; adding a platform never touches existing ones. The plaintext
// secret arrives in cred.Value, already decrypted by the caller.
type PlatformClient interface {
	Platform() model.Platform

	// Probe issues one cheap "who am I" style call. It never fetches data.
	Probe(ctx context.Context, cred model.Credential) ProbeResult

	// FetchIncremental retrieves activity since the cursor, normalized to
	// canonical records.
	FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*FetchResult, error)
}
