package api

import (
	"net/http"
)

const (
	defaultCollectLimit = 100
	maxCollectLimit     = 1000
)

// collectResponse reports how many new rows a manual ingest produced. Zero is
// success, not failure.
type collectResponse struct {
	Inserted int `json:"inserted"`
}

// handleCollect triggers an immediate ingest with an explicit page-size cap.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultCollectLimit, 1, maxCollectLimit)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "limit")

		return
	}

	inserted, err := s.collector.Collect(r.Context(), limit)
	if err != nil {
		writeServerError(w, r, s.logger, "collect failed", err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, collectResponse{Inserted: inserted})
}
