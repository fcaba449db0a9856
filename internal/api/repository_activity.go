package api

import (
	"net/http"
)

const (
	defaultActivityHours = 24
	maxWindowHours       = 24 * 365
)

// handleRepositoryActivity returns per-type counts, the unique actor count,
// and the first/last event instants for one repository.
func (s *Server) handleRepositoryActivity(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "repo")

		return
	}

	hours, err := intParam(r, "hours", defaultActivityHours, 1, maxWindowHours)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "hours")

		return
	}

	activity, err := s.repo.RepositoryActivity(r.Context(), repo, hours)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, activity)
}
