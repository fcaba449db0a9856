package api

import (
	"net/http"
)

// handlePRInterval returns pull-request inter-arrival statistics for one
// repository. A repo with fewer than two events is a valid result with null
// stats, not an error.
func (s *Server) handlePRInterval(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "repo")

		return
	}

	result, err := s.repo.PRInterval(r.Context(), repo)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, result)
}
