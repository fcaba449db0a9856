package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// newTestClient points a Client at an httptest server with pacing disabled.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(server.URL, "", 5*time.Second,
		WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func eventJSON(id string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": "WatchEvent",
		"actor": map[string]any{
			"login": "octocat",
		},
		"repo": map[string]any{
			"name": "golang/go",
		},
		"payload":    map[string]any{"action": "started"},
		"created_at": "2025-01-01T00:00:00Z",
	}
}

func TestFetchGlobalDecodesEventsAndHeaders(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("ETag", `W/"abc"`)
		w.Header().Set("X-Poll-Interval", "60")
		w.Header().Set("X-RateLimit-Remaining", "59")
		w.Header().Set("X-RateLimit-Reset", "1735689600")
		_ = json.NewEncoder(w).Encode([]any{eventJSON("100"), eventJSON("101")})
	}))

	result, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.NoError(t, err)

	assert.True(t, result.Modified)
	assert.Len(t, result.Events, 2)
	assert.Equal(t, "100", result.Events[0].ID)
	assert.Equal(t, "WatchEvent", result.Events[0].Type)
	assert.Equal(t, "golang/go", result.Events[0].Repo.Name)
	assert.Equal(t, "octocat", result.Events[0].Actor.Login)
	assert.Equal(t, `W/"abc"`, result.ETag)
	assert.Equal(t, 60*time.Second, result.PollInterval)
	assert.Equal(t, 59, result.RateLimit.Remaining)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), result.RateLimit.Reset)
}

func TestFetchGlobalNotModifiedPreservesETag(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `W/"abc"`, r.Header.Get("If-None-Match"))
		w.Header().Set("X-Poll-Interval", "120")
		w.WriteHeader(http.StatusNotModified)
	}))

	result, err := client.FetchGlobal(context.Background(), FetchOptions{ETag: `W/"abc"`})
	require.NoError(t, err)

	assert.False(t, result.Modified)
	assert.Empty(t, result.Events)
	assert.Equal(t, `W/"abc"`, result.ETag)
	assert.Equal(t, 120*time.Second, result.PollInterval)
}

func TestFetchGlobalThrottledRetryAfter(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.ErrorIs(t, err, ErrThrottled)

	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, 10*time.Second, throttled.RetryAfter)
}

func TestFetchGlobalForbiddenWithDrainedBudgetIsThrottled(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(30*time.Second).Unix()))
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.ErrorIs(t, err, ErrThrottled)

	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Greater(t, throttled.RetryAfter, time.Duration(0))
}

func TestFetchGlobalServerErrorIsTransient(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.ErrorIs(t, err, ErrTransient)
}

func TestFetchGlobalNotFoundIsPermanent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.ErrorIs(t, err, ErrPermanent)

	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, http.StatusNotFound, permanent.StatusCode)
}

func TestFetchGlobalUnauthorized(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.ErrorIs(t, err, ErrAuth)
}

func TestFetchRepoRejectsMalformedName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.FetchRepo(context.Background(), "nodash", FetchOptions{})
	require.ErrorIs(t, err, ErrInvalidRepoName)
}

func TestFetchRepoPath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/golang/go/events", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]any{eventJSON("200")})
	}))

	result, err := client.FetchRepo(context.Background(), "golang/go", FetchOptions{})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "200", result.Events[0].ID)
}

func TestFetchGlobalPaginatesUpToLimit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Two full pages of 100, caller wants 150.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		events := make([]any, 0, maxPerPage)
		for i := range maxPerPage {
			events = append(events, eventJSON(fmt.Sprintf("p%s-%d", page, i)))
		}

		_ = json.NewEncoder(w).Encode(events)
	}))

	result, err := client.FetchGlobal(context.Background(), FetchOptions{Limit: 150})
	require.NoError(t, err)
	assert.Len(t, result.Events, 150)
}

func TestFetchGlobalSinglePageWithoutLimit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var calls int

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		events := make([]any, 0, maxPerPage)
		for i := range maxPerPage {
			events = append(events, eventJSON(fmt.Sprintf("e%d", i)))
		}

		_ = json.NewEncoder(w).Encode(events)
	}))

	result, err := client.FetchGlobal(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Events, maxPerPage)
	assert.Equal(t, 1, calls)
}
