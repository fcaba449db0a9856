package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	userAgent = "ghpulse-collector"

	// maxPerPage is the upstream page-size ceiling.
	maxPerPage = 100
	// maxPages is the upstream events-feed depth ceiling.
	maxPages = 10

	// outboundRPS floors the client's own request pacing so bursty callers
	// (manual collects) cannot drain the quota between polls.
	outboundRPS   = 2
	outboundBurst = 5
)

// ErrInvalidRepoName is returned when a per-repo fetch is given a name
// without an owner/name separator.
var ErrInvalidRepoName = errors.New("repository name must be in owner/name form")

// Client fetches paginated event feeds from the upstream API. It is safe for
// concurrent use; pacing across callers is enforced by an internal token
// bucket on top of whatever cadence the engine applies.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests to point
// the client at an httptest server transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiter replaces the outbound pacing limiter.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates an upstream events client. An empty token means anonymous
// access (lower quota ceiling); timeout is the hard per-request deadline.
func NewClient(baseURL, token string, timeout time.Duration, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(outboundRPS), outboundBurst),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// FetchGlobal fetches the global events feed.
func (c *Client) FetchGlobal(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	return c.fetch(ctx, "/events", opts)
}

// FetchRepo fetches the events feed of a single repository. ownerName must be
// in owner/name form.
func (c *Client) FetchRepo(ctx context.Context, ownerName string, opts FetchOptions) (*FetchResult, error) {
	if !strings.Contains(ownerName, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepoName, ownerName)
	}

	return c.fetch(ctx, "/repos/"+ownerName+"/events", opts)
}

// fetch walks the paginated feed at path, sending If-None-Match on the first
// page only. Accumulates events until opts.Limit, a short page, or the
// upstream depth ceiling.
func (c *Client) fetch(ctx context.Context, path string, opts FetchOptions) (*FetchResult, error) {
	perPage := opts.Limit
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	result := &FetchResult{ETag: opts.ETag, Modified: true}

	for page := 1; page <= maxPages; page++ {
		etag := ""
		if page == 1 {
			etag = opts.ETag
		}

		events, headers, status, err := c.fetchPage(ctx, path, etag, perPage, page)
		if err != nil {
			return nil, err
		}

		c.applyHeaders(result, headers, page)

		if page == 1 {
			c.logger.Debug("Fetched events page",
				slog.String("path", path),
				slog.Int("events", len(events)),
				slog.Bool("not_modified", status == http.StatusNotModified),
				slog.Int("rate_remaining", result.RateLimit.Remaining),
			)
		}

		if status == http.StatusNotModified {
			result.Modified = false
			result.ETag = opts.ETag

			return result, nil
		}

		result.Events = append(result.Events, events...)

		if opts.Limit > 0 && len(result.Events) >= opts.Limit {
			result.Events = result.Events[:opts.Limit]

			return result, nil
		}

		// A short page means the feed is exhausted.
		if len(events) < perPage {
			return result, nil
		}

		// Without an explicit cap a single page is enough per poll; the next
		// tick picks up from the fresh ETag.
		if opts.Limit == 0 {
			return result, nil
		}
	}

	return result, nil
}

// fetchPage performs one paced, conditional GET and classifies the response
// per the client error taxonomy.
func (c *Client) fetchPage(
	ctx context.Context,
	path, etag string,
	perPage, page int,
) ([]Event, http.Header, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, 0, &TransientError{Err: err}
	}

	url := fmt.Sprintf("%s%s?per_page=%d&page=%d", c.baseURL, path, perPage, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, 0, &TransientError{Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, 0, &TransientError{Err: err}
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var events []Event
		if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
			return nil, nil, 0, &TransientError{Err: fmt.Errorf("failed to decode events: %w", err)}
		}

		return events, resp.Header, resp.StatusCode, nil

	case resp.StatusCode == http.StatusNotModified:
		return nil, resp.Header, resp.StatusCode, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil, 0, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)

	case isThrottled(resp):
		return nil, nil, 0, &ThrottledError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, nil, 0, &TransientError{Err: fmt.Errorf("upstream status %d", resp.StatusCode)}

	default:
		return nil, nil, 0, &PermanentError{StatusCode: resp.StatusCode}
	}
}

// applyHeaders extracts the entity tag, poll-interval hint, and rate-limit
// budget. Only the first page's ETag identifies the window.
func (c *Client) applyHeaders(result *FetchResult, headers http.Header, page int) {
	if headers == nil {
		return
	}

	if page == 1 {
		if etag := headers.Get("ETag"); etag != "" {
			result.ETag = etag
		}
	}

	if v := headers.Get("X-Poll-Interval"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			result.PollInterval = time.Duration(secs) * time.Second
		}
	}

	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			result.RateLimit.Remaining = remaining
		}
	}

	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			result.RateLimit.Reset = time.Unix(unix, 0).UTC()
		}
	}
}

// isThrottled reports whether the response signals quota exhaustion: an
// explicit 429, or the upstream convention of 403 with a drained budget.
func isThrottled(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// retryAfter derives the minimum back-off from Retry-After, falling back to
// the time until the rate-limit window resets.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(unix, 0)); until > 0 {
				return until
			}
		}
	}

	return time.Minute
}
