// Package api provides the HTTP query surface: thin validated adapters from
// query parameters to the repository, the ingestion trigger, and the chart
// renderer.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ghpulse/ghpulse/internal/api/middleware"
)

type (
	// ValidationError is the 400 envelope. Field names the offending query
	// parameter when one can be singled out.
	ValidationError struct {
		Error string `json:"error"`
		Field string `json:"field,omitempty"`
	}

	// ServerError is the 500 envelope: the failure class only, never internal
	// detail.
	ServerError struct {
		Error string `json:"error"`
	}
)

// writeJSON serializes body with the given status. Encoding failures are
// logged; headers are already sent at that point.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
}

// writeValidationError answers 400 with the {error, field} envelope.
// Caller-induced, so logged at debug only.
func writeValidationError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message, field string) {
	logger.Debug("Request validation failed",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("field", field),
		slog.String("reason", message),
	)

	writeJSON(w, r, logger, http.StatusBadRequest, ValidationError{Error: message, Field: field})
}

// writeServerError answers 500 with the generic {error} envelope and logs the
// underlying cause at error level.
func writeServerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, class string, err error) {
	logger.Error("Request failed",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("class", class),
		slog.Any("error", err),
	)

	writeJSON(w, r, logger, http.StatusInternalServerError, ServerError{Error: class})
}
