// Package metrics provides the read-only analytic query layer over the event
// store: windowed counts, inter-arrival statistics, trend rankings, and
// timeseries aggregation.
package metrics

import (
	"time"
)

// Status flags for the PR interval response.
const (
	// StatusOK marks a fully computed statistics result.
	StatusOK = "ok"
	// StatusInsufficientData marks a result with fewer than two pull-request
	// events; stats are null, not an error.
	StatusInsufficientData = "insufficient_data"
)

type (
	// IntervalStats describes the inter-arrival gaps between consecutive
	// pull-request events, in seconds.
	IntervalStats struct {
		MeanSeconds   float64 `json:"mean_seconds"`
		MedianSeconds float64 `json:"median_seconds"`
		MinSeconds    float64 `json:"min_seconds"`
		MaxSeconds    float64 `json:"max_seconds"`
	}

	// PRIntervalResult is the outcome of the pull-request interval query.
	PRIntervalResult struct {
		Repo   string         `json:"repo"`
		Count  int            `json:"count"`
		Stats  *IntervalStats `json:"stats"`
		Status string         `json:"status"`
	}

	// RepositoryActivity summarizes one repository over a window.
	RepositoryActivity struct {
		Repo         string         `json:"repo"`
		Hours        int            `json:"hours"`
		EventCounts  map[string]int `json:"event_counts"`  //nolint: tagliatelle
		TotalEvents  int            `json:"total_events"`  //nolint: tagliatelle
		UniqueActors int            `json:"unique_actors"` //nolint: tagliatelle
		FirstEventAt *time.Time     `json:"first_event_at"` //nolint: tagliatelle
		LastEventAt  *time.Time     `json:"last_event_at"`  //nolint: tagliatelle
	}

	// TrendingEntry is one ranked repository with its event count.
	TrendingEntry struct {
		RepoName string `json:"repo_name"` //nolint: tagliatelle
		Count    int    `json:"count"`
	}

	// TimeseriesBucket is one fixed-width sub-window with per-type counts.
	// Empty buckets carry a zero-valued map, never nil.
	TimeseriesBucket struct {
		BucketStart time.Time      `json:"bucket_start"` //nolint: tagliatelle
		Counts      map[string]int `json:"counts"`
	}

	// PRTimelineDay is one day of pull-request lifecycle counts.
	PRTimelineDay struct {
		Date   string `json:"date"`
		Opened int    `json:"opened"`
		Closed int    `json:"closed"`
		Merged int    `json:"merged"`
	}
)
