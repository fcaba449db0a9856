package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ghpulse/ghpulse/internal/config"
	"github.com/ghpulse/ghpulse/internal/github"
	"github.com/ghpulse/ghpulse/internal/storage"
)

const (
	// GlobalKey is the endpoint key for the global events feed. Targeted
	// endpoints use the repository name itself as the key.
	GlobalKey = "global"

	// DefaultCollectLimit caps a manual collect when the caller passes none.
	DefaultCollectLimit = 100

	backoffBase = 2 * time.Second
	backoffCap  = 120 * time.Second
)

// ErrNoClient is returned when an engine is constructed without a client.
var ErrNoClient = errors.New("ingestion engine requires an upstream client")

type (
	// Client is the upstream fetch capability the engine depends on.
	Client interface {
		FetchGlobal(ctx context.Context, opts github.FetchOptions) (*github.FetchResult, error)
		FetchRepo(ctx context.Context, ownerName string, opts github.FetchOptions) (*github.FetchResult, error)
	}

	// Store is the write capability the engine depends on.
	Store interface {
		InsertEvents(ctx context.Context, events []storage.Event) (int, error)
		InsertCommits(ctx context.Context, commits []storage.Commit) (int, error)
		GetETag(ctx context.Context, key string) (storage.ETagEntry, bool, error)
		PutETag(ctx context.Context, key, etag string, at time.Time) error
	}

	// Publisher receives, for downstream fanout, the filtered batch of each
	// poll that inserted at least one new row; events of that batch that were
	// already stored are included. Delivery is best-effort; failures never
	// fail a poll.
	Publisher interface {
		Publish(ctx context.Context, events []storage.Event) error
	}

	// Options bundles engine configuration taken from the service config.
	Options struct {
		PollInterval   time.Duration
		Targets        []string
		Workers        int
		CommitIndexing bool
	}

	// Engine orchestrates fetch → filter → write per endpoint key. One key
	// (the global feed) in global mode, one per target repository otherwise.
	// Polls are serial within a key and bounded across keys by the worker
	// count.
	Engine struct {
		client    Client
		store     Store
		publisher Publisher
		filter    *Filter
		logger    *slog.Logger

		pollInterval   time.Duration
		targets        []string
		commitIndexing bool

		sem      chan struct{}
		keyLocks map[string]*sync.Mutex
	}

	// EngineOption configures optional engine behavior.
	EngineOption func(*Engine)
)

// WithPublisher attaches a fanout publisher.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithLogger replaces the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates the ingestion engine. In targeted mode (opts.Targets
// non-empty) each target repository gets its own endpoint key; otherwise the
// single global key is polled.
func NewEngine(client Client, store Store, filter *Filter, opts Options, extra ...EngineOption) (*Engine, error) {
	if client == nil {
		return nil, ErrNoClient
	}

	if store == nil {
		return nil, storage.ErrNoConnection
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	engine := &Engine{
		client:         client,
		store:          store,
		filter:         filter,
		pollInterval:   opts.PollInterval,
		targets:        opts.Targets,
		commitIndexing: opts.CommitIndexing,
		sem:            make(chan struct{}, workers),
		keyLocks:       make(map[string]*sync.Mutex),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, key := range engine.keys() {
		engine.keyLocks[key] = &sync.Mutex{}
	}

	for _, opt := range extra {
		opt(engine)
	}

	return engine, nil
}

// keys returns the endpoint keys this engine polls.
func (e *Engine) keys() []string {
	if len(e.targets) == 0 {
		return []string{GlobalKey}
	}

	return e.targets
}

// Run starts one polling loop per endpoint key and blocks until ctx is
// cancelled and every loop has drained. A poll that is mid-write when the
// context is cancelled completes its write before exiting.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, key := range e.keys() {
		wg.Add(1)

		go func(key string) {
			defer wg.Done()
			e.runKey(ctx, key)
		}(key)
	}

	wg.Wait()
	e.logger.Info("Ingestion engine stopped")
}

// runKey is the per-key loop: poll, then sleep for the pacing decision the
// poll produced. The first poll fires immediately.
func (e *Engine) runKey(ctx context.Context, key string) {
	attempts := 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := e.pollOnce(ctx, key, &attempts)
		if ctx.Err() != nil {
			return
		}

		timer.Reset(delay)
	}
}

// pollOnce executes one poll for key and returns the delay until the next
// tick per the pacing rules: max(configured, server hint) on success,
// Retry-After on throttle, capped exponential backoff on transient failure.
func (e *Engine) pollOnce(ctx context.Context, key string, attempts *int) time.Duration {
	lock := e.keyLocks[key]
	lock.Lock()
	defer lock.Unlock()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return e.pollInterval
	}

	inserted, result, err := e.poll(ctx, key, 0)

	switch {
	case err == nil:
		*attempts = 0

		next := e.pollInterval
		if result.PollInterval > next {
			next = result.PollInterval
		}

		e.logger.Debug("Poll completed",
			slog.String("key", key),
			slog.Int("inserted", inserted),
			slog.Bool("modified", result.Modified),
			slog.Int("rate_remaining", result.RateLimit.Remaining),
			slog.Duration("next_poll_in", next),
		)

		return next

	case errors.Is(err, github.ErrThrottled):
		var throttled *github.ThrottledError

		retryAfter := e.pollInterval
		if errors.As(err, &throttled) {
			retryAfter = throttled.RetryAfter
		}

		e.logger.Info("Upstream throttled",
			slog.String("key", key),
			slog.Duration("retry_after", retryAfter),
		)

		return retryAfter

	case errors.Is(err, github.ErrTransient):
		*attempts++

		delay := backoffBase << (*attempts - 1)
		if delay > backoffCap || delay <= 0 {
			delay = backoffCap
		}

		e.logger.Warn("Transient upstream failure",
			slog.String("key", key),
			slog.Int("attempt", *attempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		return delay

	case errors.Is(err, github.ErrAuth):
		e.logger.Warn("Upstream rejected authorization; continuing per configured cadence",
			slog.String("key", key),
		)

		return e.pollInterval

	case errors.Is(err, github.ErrPermanent):
		e.logger.Warn("Permanent upstream failure; will retry next tick",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return e.pollInterval

	default:
		// Storage failure: fatal to this poll, not to the process. The
		// entity tag was not advanced so the next poll re-reads the window.
		e.logger.Error("Poll failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return e.pollInterval
	}
}

// poll performs one fetch → filter → write pass for key. The entity tag is
// advanced only after a successful commit; on 304 only last_poll_at moves.
// limit caps fetched events for manual collects (0 = default page).
func (e *Engine) poll(ctx context.Context, key string, limit int) (int, *github.FetchResult, error) {
	entry, _, err := e.store.GetETag(ctx, key)
	if err != nil {
		// A lost tag only costs one unconditional fetch.
		e.logger.Warn("Failed to read cached entity tag",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	opts := github.FetchOptions{ETag: entry.ETag, Limit: limit}

	var result *github.FetchResult

	if key == GlobalKey {
		result, err = e.client.FetchGlobal(ctx, opts)
	} else {
		result, err = e.client.FetchRepo(ctx, key, opts)
	}

	if err != nil {
		return 0, nil, err
	}

	now := time.Now().UTC()

	// Once a write has started it is allowed to complete through shutdown.
	writeCtx := context.WithoutCancel(ctx)

	if !result.Modified {
		if err := e.store.PutETag(writeCtx, key, entry.ETag, now); err != nil {
			return 0, nil, err
		}

		return 0, result, nil
	}

	kept := e.filter.Apply(result.Events)
	events := toStorageEvents(kept, now)

	inserted, err := e.store.InsertEvents(writeCtx, events)
	if err != nil {
		return 0, nil, err
	}

	if e.commitIndexing {
		if commits := extractCommits(kept); len(commits) > 0 {
			if _, err := e.store.InsertCommits(writeCtx, commits); err != nil {
				e.logger.Warn("Commit indexing failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := e.store.PutETag(writeCtx, key, result.ETag, now); err != nil {
		return inserted, nil, err
	}

	if e.publisher != nil && inserted > 0 {
		if err := e.publisher.Publish(writeCtx, events); err != nil {
			e.logger.Warn("Event fanout failed",
				slog.String("key", key),
				slog.Int("events", len(events)),
				slog.String("error", err.Error()),
			)
		}
	}

	return inserted, result, nil
}

// Collect runs an immediate poll of every endpoint key with an explicit
// page-size cap and returns the number of newly inserted rows. Serialized
// against the periodic loops per key.
func (e *Engine) Collect(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultCollectLimit
	}

	total := 0

	for _, key := range e.keys() {
		lock := e.keyLocks[key]
		lock.Lock()

		inserted, _, err := e.poll(ctx, key, limit)

		lock.Unlock()

		if err != nil {
			return total, fmt.Errorf("collect %s: %w", key, err)
		}

		total += inserted
	}

	return total, nil
}

// toStorageEvents converts filtered upstream events to store rows. The
// collection instant is clamped so created_at never exceeds collected_at.
func toStorageEvents(events []github.Event, collectedAt time.Time) []storage.Event {
	rows := make([]storage.Event, 0, len(events))

	for _, event := range events {
		createdAt := event.CreatedAt.UTC()

		rowCollectedAt := collectedAt
		if createdAt.After(rowCollectedAt) {
			rowCollectedAt = createdAt
		}

		rows = append(rows, storage.Event{
			ID:          event.ID,
			EventType:   event.Type,
			RepoName:    event.Repo.Name,
			ActorLogin:  event.Actor.Login,
			CreatedAt:   createdAt,
			Payload:     event.Payload,
			CollectedAt: rowCollectedAt,
		})
	}

	return rows
}
