package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ghpulse/ghpulse/internal/api/middleware"
	"github.com/ghpulse/ghpulse/internal/chart"
	"github.com/ghpulse/ghpulse/internal/metrics"
	"github.com/ghpulse/ghpulse/internal/storage"
)

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("server dependency missing")

type (
	// Repository is the read-only query surface the handlers dispatch to.
	// Satisfied by metrics.Repository.
	Repository interface {
		EventCounts(ctx context.Context, offsetMinutes int) (map[string]int, error)
		PRInterval(ctx context.Context, repo string) (*metrics.PRIntervalResult, error)
		RepositoryActivity(ctx context.Context, repo string, hours int) (*metrics.RepositoryActivity, error)
		Trending(ctx context.Context, hours, limit int) ([]metrics.TrendingEntry, error)
		Timeseries(ctx context.Context, hours, bucketMinutes int, repo string) ([]metrics.TimeseriesBucket, error)
		PRTimeline(ctx context.Context, repo string, days int) ([]metrics.PRTimelineDay, error)
	}

	// Collector triggers an immediate ingest. Satisfied by ingest.Engine.
	Collector interface {
		Collect(ctx context.Context, limit int) (int, error)
	}

	// HealthStore is the store liveness surface the health endpoint uses.
	HealthStore interface {
		HealthCheck(ctx context.Context) error
		Stats(ctx context.Context) (storage.StoreStats, error)
	}

	// Server is the HTTP API server. Handlers are thin adapters: validate,
	// dispatch, serialize; no route computes results of its own.
	Server struct {
		httpServer *http.Server
		logger     *slog.Logger
		config     *ServerConfig
		repo       Repository
		collector  Collector
		store      HealthStore
		renderer   chart.Renderer
		startTime  time.Time
	}
)

// NewServer assembles the HTTP server over its injected dependencies.
// repo, collector, and store are required; renderer may be nil, in which case
// the visualization endpoints answer 500.
func NewServer(
	cfg *ServerConfig,
	repo Repository,
	collector Collector,
	store HealthStore,
	renderer chart.Renderer,
) (*Server, error) {
	if repo == nil || collector == nil || store == nil {
		return nil, fmt.Errorf("%w: repository, collector, and store are required", ErrMissingDependency)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	server := &Server{
		logger:    logger,
		config:    cfg,
		repo:      repo,
		collector: collector,
		store:     store,
		renderer:  renderer,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(limiterFromConfig(cfg), logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.CORSOrigins),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// limiterFromConfig builds the API rate limiter; zero budget disables it.
func limiterFromConfig(cfg *ServerConfig) middleware.RateLimiter {
	limiter := middleware.NewTokenBucketLimiter(cfg.RateLimit)
	if limiter == nil {
		// A typed nil inside the interface would bypass the middleware's
		// nil check.
		return nil
	}

	return limiter
}

// Handler exposes the middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds and serves. Blocks until Shutdown is called or the listener
// fails; a clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	s.logger.Info("Starting API server",
		slog.String("address", s.config.Address()),
		slog.Duration("read_timeout", s.config.ReadTimeout),
		slog.Duration("write_timeout", s.config.WriteTimeout),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown stops accepting new requests and drains in-flight ones within the
// configured deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down API server",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
