package api

import (
	"math"
	"net/http"
)

const defaultEventCountsOffset = 60

// handleEventCounts returns per-type counts over the trailing window.
func (s *Server) handleEventCounts(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset_minutes", defaultEventCountsOffset, 0, math.MaxInt32)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "offset_minutes")

		return
	}

	counts, err := s.repo.EventCounts(r.Context(), offset)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, counts)
}
