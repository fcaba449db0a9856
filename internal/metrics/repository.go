package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ghpulse/ghpulse/internal/storage"
)

const (
	pullRequestEventType = "PullRequestEvent"

	minutesPerHour = 60
	dayLayout      = "2006-01-02"
)

// ErrQueryFailed is returned when an analytic query cannot be executed.
var ErrQueryFailed = errors.New("metrics query failed")

// Repository is the read-only query surface over the event store. All
// methods are side-effect-free; repeated calls against an unchanging store
// yield identical results. All windows are half-open [now − Δ, now) and all
// emitted timestamps are UTC.
type Repository struct {
	read storage.ReadHandle
	now  func() time.Time
}

// RepositoryOption configures optional Repository behavior.
type RepositoryOption func(*Repository)

// WithClock replaces the wall clock. Used by tests to pin "now".
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates the query layer over a read handle.
func NewRepository(read storage.ReadHandle, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		read: read,
		now:  func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

// EventCounts returns per-type event counts for events created in the last
// offsetMinutes. A zero offset yields an empty (not nil) map.
func (r *Repository) EventCounts(ctx context.Context, offsetMinutes int) (map[string]int, error) {
	now := r.now().UTC()
	since := now.Add(-time.Duration(offsetMinutes) * time.Minute)

	rows, err := r.read.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY event_type
	`, since, now)
	if err != nil {
		return nil, fmt.Errorf("%w: event counts: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			eventType string
			count     int
		)

		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("%w: event counts scan: %w", ErrQueryFailed, err)
		}

		counts[eventType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: event counts rows: %w", ErrQueryFailed, err)
	}

	return counts, nil
}

// PRInterval computes inter-arrival statistics over the sorted pull-request
// event timestamps of one repository. Fewer than two events is a valid
// outcome with null stats, not an error.
func (r *Repository) PRInterval(ctx context.Context, repoName string) (*PRIntervalResult, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT created_at
		FROM events
		WHERE repo_name = ? AND event_type = ?
		ORDER BY created_at ASC
	`, repoName, pullRequestEventType)
	if err != nil {
		return nil, fmt.Errorf("%w: pr interval: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var timestamps []time.Time

	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("%w: pr interval scan: %w", ErrQueryFailed, err)
		}

		timestamps = append(timestamps, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pr interval rows: %w", ErrQueryFailed, err)
	}

	result := &PRIntervalResult{
		Repo:   repoName,
		Count:  len(timestamps),
		Status: StatusInsufficientData,
	}

	if len(timestamps) < 2 {
		return result, nil
	}

	intervals := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, timestamps[i].Sub(timestamps[i-1]).Seconds())
	}

	result.Status = StatusOK
	result.Stats = intervalStats(intervals)

	return result, nil
}

// intervalStats computes mean/median/min/max over a non-empty interval list.
func intervalStats(intervals []float64) *IntervalStats {
	sorted := make([]float64, len(intervals))
	copy(sorted, intervals)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	var median float64

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return &IntervalStats{
		MeanSeconds:   sum / float64(len(sorted)),
		MedianSeconds: median,
		MinSeconds:    sorted[0],
		MaxSeconds:    sorted[len(sorted)-1],
	}
}

// RepositoryActivity returns per-type counts, the unique actor count, and the
// first/last event instants for one repository over the window.
func (r *Repository) RepositoryActivity(
	ctx context.Context,
	repoName string,
	hours int,
) (*RepositoryActivity, error) {
	now := r.now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	activity := &RepositoryActivity{
		Repo:        repoName,
		Hours:       hours,
		EventCounts: make(map[string]int),
	}

	rows, err := r.read.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM events
		WHERE repo_name = ? AND created_at >= ? AND created_at < ?
		GROUP BY event_type
	`, repoName, since, now)
	if err != nil {
		return nil, fmt.Errorf("%w: repository activity: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			eventType string
			count     int
		)

		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("%w: repository activity scan: %w", ErrQueryFailed, err)
		}

		activity.EventCounts[eventType] = count
		activity.TotalEvents += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: repository activity rows: %w", ErrQueryFailed, err)
	}

	if activity.TotalEvents == 0 {
		return activity, nil
	}

	err = r.read.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT actor_login)
		FROM events
		WHERE repo_name = ? AND created_at >= ? AND created_at < ?
	`, repoName, since, now).Scan(&activity.UniqueActors)
	if err != nil {
		return nil, fmt.Errorf("%w: unique actors: %w", ErrQueryFailed, err)
	}

	first, err := r.boundaryEvent(ctx, repoName, since, now, "ASC")
	if err != nil {
		return nil, err
	}

	last, err := r.boundaryEvent(ctx, repoName, since, now, "DESC")
	if err != nil {
		return nil, err
	}

	activity.FirstEventAt = first
	activity.LastEventAt = last

	return activity, nil
}

// boundaryEvent returns the earliest or latest event instant in the window.
func (r *Repository) boundaryEvent(
	ctx context.Context,
	repoName string,
	since, until time.Time,
	direction string,
) (*time.Time, error) {
	query := `
		SELECT created_at
		FROM events
		WHERE repo_name = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT 1
	`
	if direction == "DESC" {
		query = `
			SELECT created_at
			FROM events
			WHERE repo_name = ? AND created_at >= ? AND created_at < ?
			ORDER BY created_at DESC
			LIMIT 1
		`
	}

	var ts time.Time

	err := r.read.QueryRowContext(ctx, query, repoName, since, until).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: boundary event: %w", ErrQueryFailed, err)
	}

	ts = ts.UTC()

	return &ts, nil
}

// Trending returns repositories ranked by event count within the window,
// descending, ties broken by alphabetical repo name, truncated to limit.
func (r *Repository) Trending(ctx context.Context, hours, limit int) ([]TrendingEntry, error) {
	entries := []TrendingEntry{}

	if limit <= 0 {
		return entries, nil
	}

	now := r.now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	rows, err := r.read.QueryContext(ctx, `
		SELECT repo_name, COUNT(*) AS event_count
		FROM events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY repo_name
		ORDER BY event_count DESC, repo_name ASC
		LIMIT ?
	`, since, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: trending: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var entry TrendingEntry
		if err := rows.Scan(&entry.RepoName, &entry.Count); err != nil {
			return nil, fmt.Errorf("%w: trending scan: %w", ErrQueryFailed, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: trending rows: %w", ErrQueryFailed, err)
	}

	return entries, nil
}

// Timeseries returns ⌈hours·60/bucketMinutes⌉ buckets anchored at now going
// backward, ascending by bucket start, with empty buckets zero-filled.
// repoName narrows the series to one repository when non-empty.
func (r *Repository) Timeseries(
	ctx context.Context,
	hours, bucketMinutes int,
	repoName string,
) ([]TimeseriesBucket, error) {
	now := r.now().UTC()
	bucket := time.Duration(bucketMinutes) * time.Minute
	bucketCount := int(math.Ceil(float64(hours*minutesPerHour) / float64(bucketMinutes)))
	start := now.Add(-time.Duration(bucketCount) * bucket)

	buckets := make([]TimeseriesBucket, bucketCount)
	for i := range buckets {
		buckets[i] = TimeseriesBucket{
			BucketStart: start.Add(time.Duration(i) * bucket),
			Counts:      make(map[string]int),
		}
	}

	query := `
		SELECT created_at, event_type
		FROM events
		WHERE created_at >= ? AND created_at < ?
	`
	args := []any{start, now}

	if repoName != "" {
		query += ` AND repo_name = ?`

		args = append(args, repoName)
	}

	rows, err := r.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: timeseries: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			createdAt time.Time
			eventType string
		)

		if err := rows.Scan(&createdAt, &eventType); err != nil {
			return nil, fmt.Errorf("%w: timeseries scan: %w", ErrQueryFailed, err)
		}

		index := int(createdAt.Sub(start) / bucket)
		if index < 0 || index >= bucketCount {
			continue
		}

		buckets[index].Counts[eventType]++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: timeseries rows: %w", ErrQueryFailed, err)
	}

	return buckets, nil
}

// prPayload is the slice of a PullRequestEvent payload the timeline needs.
type prPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		MergedAt *time.Time `json:"merged_at"` //nolint: tagliatelle
	} `json:"pull_request"` //nolint: tagliatelle
}

// PRTimeline returns per-day opened/closed/merged pull-request counts for one
// repository over the last days UTC calendar days ending today, ascending by
// date with empty days included. The window starts at midnight UTC of the
// oldest listed day. A merged pull request counts as merged, not closed.
func (r *Repository) PRTimeline(ctx context.Context, repoName string, days int) ([]PRTimelineDay, error) {
	now := r.now().UTC()
	since := now.Truncate(24 * time.Hour).Add(-time.Duration(days-1) * 24 * time.Hour)

	byDate := make(map[string]*PRTimelineDay, days)
	timeline := make([]PRTimelineDay, 0, days)

	rows, err := r.read.QueryContext(ctx, `
		SELECT created_at, payload
		FROM events
		WHERE repo_name = ? AND event_type = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`, repoName, pullRequestEventType, since, now)
	if err != nil {
		return nil, fmt.Errorf("%w: pr timeline: %w", ErrQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	type prEvent struct {
		createdAt time.Time
		payload   []byte
	}

	var events []prEvent

	for rows.Next() {
		var ev prEvent
		if err := rows.Scan(&ev.createdAt, &ev.payload); err != nil {
			return nil, fmt.Errorf("%w: pr timeline scan: %w", ErrQueryFailed, err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pr timeline rows: %w", ErrQueryFailed, err)
	}

	// Zero-fill every day in the window, oldest first.
	for i := range days {
		date := since.Add(time.Duration(i) * 24 * time.Hour).Format(dayLayout)
		timeline = append(timeline, PRTimelineDay{Date: date})
		byDate[date] = &timeline[len(timeline)-1]
	}

	for _, ev := range events {
		day, ok := byDate[ev.createdAt.UTC().Format(dayLayout)]
		if !ok {
			continue
		}

		var payload prPayload
		if err := json.Unmarshal(ev.payload, &payload); err != nil {
			continue
		}

		switch payload.Action {
		case "opened":
			day.Opened++
		case "closed":
			if payload.PullRequest.MergedAt != nil {
				day.Merged++
			} else {
				day.Closed++
			}
		}
	}

	return timeline, nil
}
