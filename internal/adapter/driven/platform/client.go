// Package platform implements the PlatformClient port for the six external
// integrations. Each adapter is a flat value holding only its own config,
// HTTP client, and a shared per-platform rate limiter; nothing here is
// global, so tests can inject controllable buckets and base URLs.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Retry bounds for page fetches. The upstream behavior specifies no ceiling,
// so these are fixed conservatively: at most 5 attempts under a 30 second
// elapsed-time cap, exponential intervals with 50% jitter.
const (
	maxRetryAttempts = 5
	maxRetryElapsed  = 30 * time.Second
	requestTimeout   = 15 * time.Second
)

// newHTTPClient returns the default client adapters use when none is injected.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// withRetry runs op under the package retry policy. Wrap errors that must
// not be retried (auth rejections, malformed responses) in
// backoff.Permanent.
func withRetry(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxRetryElapsed
	b.RandomizationFactor = 0.5

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetryAttempts-1), ctx))
}

// getJSON performs one rate-limited GET and decodes the JSON body into v.
// Non-2xx statuses are returned as *httpStatusError so callers can classify
// them per platform.
func getJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, req *http.Request, v any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{Status: resp.StatusCode, URL: req.URL.Path}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// httpStatusError carries a non-2xx response status for classification.
type httpStatusError struct {
	Status int
	URL    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

// statusOf extracts the HTTP status from err, or 0 for transport failures.
func statusOf(err error) int {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// adapterErr builds a classified AdapterError for the platform.
func adapterErr(platform model.Platform, kind model.AdapterErrorKind, err error) *model.AdapterError {
	return &model.AdapterError{Platform: platform, Kind: kind, Err: err}
}

// partialResult packages mid-stream failure output: everything collected so
// far plus the page error, never discarding committed progress.
func partialResult(records []model.CanonicalRecord, cursor time.Time, err error) *driven.FetchResult {
	return &driven.FetchResult{Records: records, NextCursor: cursor, Partial: true, Err: err}
}
