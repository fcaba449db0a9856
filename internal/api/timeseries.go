package api

import (
	"net/http"
	"strings"
)

const (
	defaultTimeseriesHours   = 6
	defaultTimeseriesBucket  = 5
	maxTimeseriesBucketWidth = 24 * 60
)

// handleTimeseries returns bucketed per-type counts, optionally narrowed to
// one repository.
func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", defaultTimeseriesHours, 1, maxWindowHours)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "hours")

		return
	}

	bucketMinutes, err := intParam(r, "bucket_minutes", defaultTimeseriesBucket, 1, maxTimeseriesBucketWidth)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "bucket_minutes")

		return
	}

	// repo is optional here but must be well-formed when present.
	repo := r.URL.Query().Get("repo")
	if repo != "" && !strings.Contains(repo, "/") {
		writeValidationError(w, r, s.logger, "repo must be in owner/name form", "repo")

		return
	}

	buckets, err := s.repo.Timeseries(r.Context(), hours, bucketMinutes, repo)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, buckets)
}
