package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ghpulse/ghpulse/internal/api/middleware"
	"github.com/ghpulse/ghpulse/internal/chart"
)

const defaultChartLimit = 5

// handleTrendingChart renders the trending ranking as an image.
func (s *Server) handleTrendingChart(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", defaultTrendingHours, 1, maxWindowHours)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "hours")

		return
	}

	limit, err := intParam(r, "limit", defaultChartLimit, 1, maxTrendingLimit)
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "limit")

		return
	}

	format, err := chart.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "format")

		return
	}

	if s.renderer == nil {
		writeServerError(w, r, s.logger, "renderer unavailable", errors.New("no renderer configured"))

		return
	}

	entries, err := s.repo.Trending(r.Context(), hours, limit)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	image, err := s.renderer.TrendingChart(entries, hours, format)
	if err != nil {
		writeServerError(w, r, s.logger, "render failed", err)

		return
	}

	s.writeImage(w, r, format, image)
}

// handlePRTimelineChart renders the per-day pull-request series as an image.
func (s *Server) handlePRTimelineChart(w http.ResponseWriter, r *http.Request) {
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

	format, err := chart.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidationError(w, r, s.logger, err.Error(), "format")

		return
	}

	if s.renderer == nil {
		writeServerError(w, r, s.logger, "renderer unavailable", errors.New("no renderer configured"))

		return
	}

	timeline, err := s.repo.PRTimeline(r.Context(), repo, days)
	if err != nil {
		writeServerError(w, r, s.logger, "query failed", err)

		return
	}

	image, err := s.renderer.PRTimelineChart(timeline, repo, format)
	if err != nil {
		writeServerError(w, r, s.logger, "render failed", err)

		return
	}

	s.writeImage(w, r, format, image)
}

// writeImage serializes rendered image bytes with the matching content type.
func (s *Server) writeImage(w http.ResponseWriter, r *http.Request, format chart.Format, image []byte) {
	w.Header().Set("Content-Type", format.MIME())
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(image); err != nil {
		s.logger.Error("Failed to write image response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.Any("error", err),
		)
	}
}
