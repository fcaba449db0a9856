package api

import (
	"net/http"
)

const (
	defaultTrendingHours = 24
	defaultTrendingLimit = 10
	maxTrendingLimit     = 100
)

// handleTrending returns repositories ranked by event count over the window.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", defaultTrendingHours, 1, maxWindowHours)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "hours")

		return
	}

	limit, err := intParam(r, "limit", defaultTrendingLimit, 0, maxTrendingLimit)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "limit")

		return
	}

	entries, err := s.repo.Trending(r.Context(), hours, limit)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, entries)
}
