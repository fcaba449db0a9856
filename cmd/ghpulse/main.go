// Package main provides the ghpulse service: a polling collector for the
// public GitHub events feed with a local store and an HTTP metrics API.
//
// Startup is linear: load configuration, initialize the store, start the
// ingestion engine, then bind and serve HTTP. The HTTP surface does not
// accept requests before the store initialize step completes.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghpulse/ghpulse/internal/api"
	"github.com/ghpulse/ghpulse/internal/chart"
	"github.com/ghpulse/ghpulse/internal/config"
	"github.com/ghpulse/ghpulse/internal/fanout"
	"github.com/ghpulse/ghpulse/internal/github"
	"github.com/ghpulse/ghpulse/internal/ingest"
	"github.com/ghpulse/ghpulse/internal/metrics"
	"github.com/ghpulse/ghpulse/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ghpulse"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	os.Exit(run())
}

// run assembles the dependency graph and supervises it until a termination
// signal arrives. Returns the process exit code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("configuration error: %v", err)

		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("Starting service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("database_path", cfg.DatabasePath),
		slog.Bool("targeted", cfg.Targeted()),
		slog.Int("targets", len(cfg.TargetRepositories)),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.String("address", cfg.APIAddress()),
	)

	// Store first: nothing serves until the schema is in place.
	conn, err := storage.NewConnection(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))

		return 1
	}

	store, err := storage.NewEventStore(conn)
	if err != nil {
		logger.Error("Failed to create store", slog.String("error", err.Error()))

		return 1
	}

	defer func() {
		_ = store.Close()
	}()

	if err := store.Initialize(context.Background()); err != nil {
		logger.Error("Failed to initialize store", slog.String("error", err.Error()))

		return 1
	}

	repo := metrics.NewRepository(store.OpenRead())

	client := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken, cfg.HTTPTimeout)

	if cfg.GitHubToken == "" {
		logger.Warn("No GITHUB_TOKEN configured; polling anonymously with the lower quota ceiling")
	}

	filter := ingest.NewFilter(cfg.EventTypes, cfg.TargetRepositories)

	engineOpts := []ingest.EngineOption{ingest.WithLogger(logger)}

	var publisher *fanout.Publisher

	if cfg.FanoutEnabled() {
		publisher, err = fanout.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error("Failed to create fanout publisher", slog.String("error", err.Error()))

			return 1
		}

		defer func() {
			_ = publisher.Close()
		}()

		engineOpts = append(engineOpts, ingest.WithPublisher(publisher))

		logger.Info("Event fanout enabled",
			slog.Int("brokers", len(cfg.KafkaBrokers)),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	engine, err := ingest.NewEngine(client, store, filter, ingest.Options{
		PollInterval:   cfg.PollInterval,
		Targets:        cfg.TargetRepositories,
		Workers:        cfg.IngestWorkers,
		CommitIndexing: cfg.CommitIndexing,
	}, engineOpts...)
	if err != nil {
		logger.Error("Failed to create ingestion engine", slog.String("error", err.Error()))

		return 1
	}

	server, err := api.NewServer(
		api.ServerConfigFromConfig(cfg),
		repo,
		engine,
		store,
		chart.NewRenderer(),
	)
	if err != nil {
		logger.Error("Failed to create API server", slog.String("error", err.Error()))

		return 1
	}

	// Engine workers run until the shutdown signal cancels their context.
	engineCtx, stopEngine := context.WithCancel(context.Background())

	engineDone := make(chan struct{})

	go func() {
		defer close(engineDone)
		engine.Run(engineCtx)
	}()

	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	exitCode := 0

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("Server failed", slog.String("error", err.Error()))

			exitCode = 1
		}
	case sig := <-stop:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("Server shutdown failed", slog.String("error", err.Error()))

			exitCode = 1
		}
	}

	// Drain the ingestion workers; a poll mid-write completes its write.
	stopEngine()
	<-engineDone

	logger.Info("Service stopped")

	return exitCode
}
