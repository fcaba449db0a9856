package api

import (
	"net/http"
)

const (
	defaultTimelineDays = 30
	maxTimelineDays     = 365
)

// handlePRTimeline returns per-day pull-request lifecycle counts for one
// repository.
func (s *Server) handlePRTimeline(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "repo")

		return
	}

	days, err := intParam(r, "days", defaultTimelineDays, 1, maxTimelineDays)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "days")

		return
	}

	timeline, err := s.repo.PRTimeline(r.Context(), repo, days)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, timeline)
}
