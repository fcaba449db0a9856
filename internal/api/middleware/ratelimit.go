package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const burstMultiplier = 2

// RateLimiter decides whether a request should be admitted.
type RateLimiter interface {
	// Allow reports whether one more request fits the budget.
	Allow() bool
}

// TokenBucketLimiter implements RateLimiter with a single token bucket
// shared by all callers. Suitable for single-node deployments; the interface
// leaves room for a distributed limiter.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter creates a limiter admitting rps requests per second
// with a burst of twice that. A non-positive rps returns nil, which disables
// the middleware entirely.
func NewTokenBucketLimiter(rps int) *TokenBucketLimiter {
	if rps <= 0 {
		return nil
	}

	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps*burstMultiplier),
	}
}

// Allow implements RateLimiter.
func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

// RateLimit creates a middleware that rejects requests over budget with 429.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("Request rate limited",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
