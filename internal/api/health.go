package api

import (
	"net/http"
	"time"
)

// healthResponse is the /health body. Store stats ride along when the store
// answers.
type healthResponse struct {
	Status       string `json:"status"`
	EventsStored *int64 `json:"events_stored,omitempty"` //nolint: tagliatelle
	LastPollAt   string `json:"last_poll_at,omitempty"`  //nolint: tagliatelle
	Uptime       string `json:"uptime,omitempty"`
}

// handleHealth answers 200 while the store is live and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.store.HealthCheck(ctx); err != nil {
		writeJSON(w, r, s.logger, http.StatusServiceUnavailable, healthResponse{
			Status: "unavailable",
		})

		return
	}

	response := healthResponse{Status: "ok"}

	if !s.startTime.IsZero() {
		response.Uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	// Stats are best-effort decoration; a failure does not flip health.
	if stats, err := s.store.Stats(ctx); err == nil {
		response.EventsStored = &stats.EventCount

		if !stats.LastPollAt.IsZero() {
			response.LastPollAt = stats.LastPollAt.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, r, s.logger, http.StatusOK, response)
}
