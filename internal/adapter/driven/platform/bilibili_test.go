package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

func biliCred() model.Credential {
	return model.Credential{
		Platform: model.PlatformBilibili,
		Type:     model.CredentialTypeCookie,
		Value:    "SESSDATA=abc123",
	}
}

func TestBilibiliClient_ProbeExpiredCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-101,"message":"account not logged in","data":null}`)
	}))
	defer srv.Close()

	c := NewBilibiliClientWithBaseURL(srv.Client(), srv.URL, nil)
	res := c.Probe(context.Background(), biliCred())
	assert.Equal(t, driven.ProbeAuthRejected, res.Status)
}

func TestBilibiliClient_FetchStopsAtCursor(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := since.Add(6 * time.Hour).Unix()
	older := since.Add(-6 * time.Hour).Unix()

	var pages atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		assert.Equal(t, "SESSDATA=abc123", r.Header.Get("Cookie"))
		fmt.Fprintf(w, `{"code":0,"data":{"cursor":{"max":100,"view_at":%d},"list":[
			{"title":"EP1","view_at":%d,"progress":-1,"duration":1500,"history":{"oid":1,"bvid":"BV1aa"}},
			{"title":"EP0","view_at":%d,"progress":300,"duration":1500,"history":{"oid":2,"bvid":"BV1bb"}}
		]}}`, older, newer, older)
	}))
	defer srv.Close()

	c := NewBilibiliClientWithBaseURL(srv.Client(), srv.URL, nil)
	res, err := c.FetchIncremental(context.Background(), biliCred(), since)
	require.NoError(t, err)
	assert.False(t, res.Partial)

	// EP0 predates the cursor, so pagination stops after one page.
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(1), pages.Load())

	rec := res.Records[0]
	assert.Equal(t, "BV1aa", rec.ExternalID)
	assert.Equal(t, model.KindMediaWatch, rec.Kind)
	assert.Equal(t, float64(100), rec.Progress, "progress -1 means finished")
	assert.Equal(t, int64(25), rec.DurationMin)
}

func TestBilibiliClient_RateLimitMidStreamYieldsPartial(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := since.Add(6 * time.Hour).Unix()

	var pages atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pages.Add(1) == 1 {
			fmt.Fprintf(w, `{"code":0,"data":{"cursor":{"max":100,"view_at":%d},"list":[
				{"title":"EP2","view_at":%d,"progress":-1,"duration":600,"history":{"oid":1,"bvid":"BV1aa"}}
			]}}`, newer, newer)
			return
		}
		fmt.Fprint(w, `{"code":-412,"message":"request was banned","data":null}`)
	}))
	defer srv.Close()

	c := NewBilibiliClientWithBaseURL(srv.Client(), srv.URL, nil)
	res, err := c.FetchIncremental(context.Background(), biliCred(), since)
	require.NoError(t, err, "mid-stream rate limit must not discard collected records")

	assert.True(t, res.Partial)
	require.Error(t, res.Err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "BV1aa", res.Records[0].ExternalID)
}

func TestBilibiliClient_AuthRejectedFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-101,"message":"account not logged in","data":null}`)
	}))
	defer srv.Close()

	c := NewBilibiliClientWithBaseURL(srv.Client(), srv.URL, nil)
	_, err := c.FetchIncremental(context.Background(), biliCred(), time.Now().Add(-time.Hour))

	var ae *model.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, model.ErrKindAuthRejected, ae.Kind)
}
