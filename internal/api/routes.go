package api

import (
	"net/http"
)

// setupRoutes registers the canonical endpoint set.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /collect", s.handleCollect)

	mux.HandleFunc("GET /metrics/event-counts", s.handleEventCounts)
	mux.HandleFunc("GET /metrics/pr-interval", s.handlePRInterval)
	mux.HandleFunc("GET /metrics/repository-activity", s.handleRepositoryActivity)
	mux.HandleFunc("GET /metrics/trending", s.handleTrending)
	mux.HandleFunc("GET /metrics/event-counts-timeseries", s.handleTimeseries)
	mux.HandleFunc("GET /metrics/pr-timeline", s.handlePRTimeline)

	mux.HandleFunc("GET /visualization/trending-chart", s.handleTrendingChart)
	mux.HandleFunc("GET /visualization/pr-timeline-chart", s.handlePRTimelineChart)
}
