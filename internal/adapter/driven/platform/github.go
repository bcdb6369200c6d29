package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*GitHubClient)(nil)

// GitHubClient pulls coding activity through the go-github library with the
// transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//
// The credential value is a personal access token; metadata may carry
// githubUsername to skip the identity lookup.
type GitHubClient struct {
	baseURL *url.URL // nil in production; set by tests
	http    *http.Client
	limiter *rate.Limiter
}

// NewGitHubClient creates a GitHubClient against api.github.com.
func NewGitHubClient(limiter *rate.Limiter) *GitHubClient {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return &GitHubClient{
		http:    github_ratelimit.NewClient(cacheTransport),
		limiter: limiter,
	}
}

// NewGitHubClientWithBaseURL creates a GitHubClient against an arbitrary
// base URL, for httptest servers.
func NewGitHubClientWithBaseURL(httpClient *http.Client, baseURL string, limiter *rate.Limiter) (*GitHubClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &GitHubClient{baseURL: u, http: httpClient, limiter: limiter}, nil
}

// Platform implements driven.PlatformClient.
func (c *GitHubClient) Platform() model.Platform { return model.PlatformGitHub }

// api builds a token-authenticated go-github client over the shared
// transport stack. Construction is cheap; the cache lives in the transport.
func (c *GitHubClient) api(token string) *gh.Client {
	client := gh.NewClient(c.http).WithAuthToken(token)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

// Probe issues one authenticated "who am I" call.
func (c *GitHubClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
		}
	}

	user, _, err := c.api(cred.Value).Users.Get(ctx, "")
	if err != nil {
		switch classifyGitHubErr(err) {
		case model.ErrKindAuthRejected:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "github token rejected"}
		case model.ErrKindRateLimited:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "github rate limited"}
		default:
			return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
		}
	}
	return driven.ProbeResult{Status: driven.ProbeOk, Detail: user.GetLogin()}
}

// FetchIncremental lists events performed by the user since the cursor and
// normalizes them to contribution records. Pagination stops on GitHub's
// secondary rate-limit signal, not merely on the absence of a next page:
// an abuse/rate error mid-stream yields a partial result with everything
// collected before it.
func (c *GitHubClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	client := c.api(cred.Value)

	username := cred.Meta("githubUsername")
	if username == "" {
		user, _, err := client.Users.Get(ctx, "")
		if err != nil {
			return nil, c.wrapFirstPageErr(err)
		}
		username = user.GetLogin()
	}

	var (
		records []model.CanonicalRecord
		cursor  = since
		opts    = &gh.ListOptions{PerPage: 100}
	)

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return partialResult(records, cursor, err), nil
			}
		}

		events, resp, err := client.Activity.ListEventsPerformedByUser(ctx, username, false, opts)
		if err != nil {
			kind := classifyGitHubErr(err)
			if len(records) == 0 && kind != model.ErrKindRateLimited {
				return nil, adapterErr(model.PlatformGitHub, kind, err)
			}
			// Secondary rate limit or a failed later page: finalize partial.
			return partialResult(records, cursor, adapterErr(model.PlatformGitHub, kind, err)), nil
		}

		reachedCursor := false
		for _, ev := range events {
			occurred := ev.GetCreatedAt().Time.UTC()
			if !occurred.After(since) {
				reachedCursor = true
				break
			}
			if occurred.After(cursor) {
				cursor = occurred
			}
			if rec, ok := normalizeGitHubEvent(ev); ok {
				records = append(records, rec)
			}
		}

		if reachedCursor || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return &driven.FetchResult{Records: records, NextCursor: cursor}, nil
}

func (c *GitHubClient) wrapFirstPageErr(err error) error {
	return adapterErr(model.PlatformGitHub, classifyGitHubErr(err), err)
}

// classifyGitHubErr maps go-github error types onto the adapter taxonomy.
func classifyGitHubErr(err error) model.AdapterErrorKind {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return model.ErrKindRateLimited
	case errors.As(err, &respErr):
		if respErr.Response == nil {
			return model.ErrKindUnreachable
		}
		// A secondary rate limit also arrives as a plain 403 ErrorResponse
		// when go-github does not recognize the abuse shape.
		if isSecondaryRateLimit(respErr) {
			return model.ErrKindRateLimited
		}
		if respErr.Response.StatusCode == http.StatusUnauthorized ||
			respErr.Response.StatusCode == http.StatusForbidden {
			return model.ErrKindAuthRejected
		}
		return model.ErrKindUnreachable
	default:
		return model.ErrKindUnreachable
	}
}

// isSecondaryRateLimit detects GitHub's secondary rate limit in a 403
// ErrorResponse: the message names it, or a Retry-After header is present.
func isSecondaryRateLimit(respErr *gh.ErrorResponse) bool {
	if respErr.Response.StatusCode != http.StatusForbidden {
		return false
	}
	if strings.Contains(strings.ToLower(respErr.Message), "secondary rate limit") {
		return true
	}
	return respErr.Response.Header.Get("Retry-After") != ""
}

// normalizeGitHubEvent converts one event into a contribution record.
// Events that carry no coding activity (watches, forks of others, etc.)
// are dropped.
func normalizeGitHubEvent(ev *gh.Event) (model.CanonicalRecord, bool) {
	count := 1
	var kind string

	switch ev.GetType() {
	case "PushEvent":
		kind = "push"
		if payload, err := ev.ParsePayload(); err == nil {
			if push, ok := payload.(*gh.PushEvent); ok && len(push.Commits) > 0 {
				count = len(push.Commits)
			}
		}
	case "PullRequestEvent":
		kind = "pull_request"
	case "IssuesEvent":
		kind = "issue"
	case "PullRequestReviewEvent":
		kind = "review"
	case "CreateEvent":
		kind = "create"
	default:
		return model.CanonicalRecord{}, false
	}

	repo := ev.GetRepo().GetName()
	return model.CanonicalRecord{
		ExternalID:  ev.GetID(),
		Platform:    model.PlatformGitHub,
		Kind:        model.KindContribution,
		Title:       kind,
		OccurredAt:  ev.GetCreatedAt().Time.UTC(),
		DurationMin: int64(count), // numeric slot carries the event count
		Metadata: map[string]string{
			model.MetaRepo: repo,
			"count":        strconv.Itoa(count),
		},
	}, true
}
