package model

import "fmt"

// AdapterErrorKind classifies how a platform call failed.
type AdapterErrorKind string

const (
	ErrKindAuthRejected AdapterErrorKind = "auth_rejected"
	ErrKindRateLimited  AdapterErrorKind = "rate_limited"
	ErrKindUnreachable  AdapterErrorKind = "unreachable"
)

// AdapterError is a classified failure from a platform adapter. Auth and
// unreachable errors on the first page finalize a job as failed; rate limits
// and mid-stream page failures finalize as partial.
type AdapterError struct {
	Platform Platform
	Kind     AdapterErrorKind
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s adapter %s: %v", e.Platform, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s adapter %s", e.Platform, e.Kind)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// CredentialError reports a missing, corrupted, or rejected secret. It always
// finalizes the owning job as failed and bumps the credential's failure count.
type CredentialError struct {
	CredentialID string
	Reason       string
	Err          error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential %s: %s: %v", e.CredentialID, e.Reason, e.Err)
	}
	return fmt.Sprintf("credential %s: %s", e.CredentialID, e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Err }
