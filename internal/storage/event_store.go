package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ghpulse/ghpulse/internal/config"
	"github.com/ghpulse/ghpulse/migrations"
)

// Compile-time assertion that EventStore provides the full capability set.
var _ Store = (*EventStore)(nil)

// EventStore implements Store on the local SQLite file.
//
// Rows are written only by the ingestion engine and never mutated; duplicate
// ids are skipped inside the batch transaction so re-polling an overlapping
// window is a no-op. The tag cache shares the same handle and transaction
// semantics.
type EventStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEventStore creates the SQLite-backed event store over an open connection.
func NewEventStore(conn *Connection) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}

	return &EventStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Initialize applies all pending schema migrations. Idempotent.
func (s *EventStore) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	if err := migrations.Up(s.conn.DB); err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}

	s.logger.Info("Store schema initialized",
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// InsertEvents writes a batch in one transaction. Duplicates on id are
// silently skipped; the returned count covers only new rows. On commit
// failure the whole batch is discarded.
func (s *EventStore) InsertEvents(ctx context.Context, events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, event_type, repo_name, actor_login, created_at, payload, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prepare insert: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	inserted := 0

	for i := range events {
		event := &events[i]

		collectedAt := event.CollectedAt
		if collectedAt.IsZero() {
			collectedAt = time.Now().UTC()
		}

		result, err := stmt.ExecContext(
			ctx,
			event.ID,
			event.EventType,
			event.RepoName,
			event.ActorLogin,
			event.CreatedAt.UTC(),
			event.Payload,
			collectedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to insert event %s: %w", ErrInsertFailed, event.ID, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: failed to read rows affected: %w", ErrInsertFailed, err)
		}

		inserted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit failed: %w", ErrInsertFailed, err)
	}

	s.logger.Debug("Event batch committed",
		slog.Int("batch_size", len(events)),
		slog.Int("inserted", inserted),
		slog.Int("duplicates", len(events)-inserted),
	)

	return inserted, nil
}

// InsertCommits writes extracted commits in one transaction, skipping
// duplicate SHAs. Returns the number of new rows.
func (s *EventStore) InsertCommits(ctx context.Context, commits []Commit) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO commits (sha, event_id, repo_name, author_name, message, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sha) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prepare commit insert: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	inserted := 0

	for i := range commits {
		commit := &commits[i]

		var committedAt any
		if !commit.CommittedAt.IsZero() {
			committedAt = commit.CommittedAt.UTC()
		}

		result, err := stmt.ExecContext(
			ctx,
			commit.SHA,
			commit.EventID,
			commit.RepoName,
			commit.AuthorName,
			commit.Message,
			committedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to insert commit %s: %w", ErrInsertFailed, commit.SHA, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: failed to read rows affected: %w", ErrInsertFailed, err)
		}

		inserted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit failed: %w", ErrInsertFailed, err)
	}

	return inserted, nil
}

// GetETag returns the cached entity tag entry for an endpoint key. The second
// return value is false when the key has never been polled.
func (s *EventStore) GetETag(ctx context.Context, key string) (ETagEntry, bool, error) {
	var (
		entry ETagEntry
		etag  sql.NullString
	)

	entry.Key = key

	err := s.conn.QueryRowContext(ctx, `
		SELECT etag, last_poll_at FROM etag_cache WHERE key = ?
	`, key).Scan(&etag, &entry.LastPollAt)

	if errors.Is(err, sql.ErrNoRows) {
		return entry, false, nil
	}

	if err != nil {
		return entry, false, fmt.Errorf("%w: get %s: %w", ErrETagFailed, key, err)
	}

	entry.ETag = etag.String
	entry.LastPollAt = entry.LastPollAt.UTC()

	return entry, true, nil
}

// PutETag upserts the cached entity tag for an endpoint key. An empty etag is
// stored as NULL so a later conditional request is skipped rather than sent
// with a bogus tag.
func (s *EventStore) PutETag(ctx context.Context, key, etag string, at time.Time) error {
	var tag any
	if etag != "" {
		tag = etag
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO etag_cache (key, etag, last_poll_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			etag = excluded.etag,
			last_poll_at = excluded.last_poll_at
	`, key, tag, at.UTC())
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrETagFailed, key, err)
	}

	return nil
}

// OpenRead returns the read-only handle for the query layer.
func (s *EventStore) OpenRead() ReadHandle {
	return s.conn.DB
}

// HealthCheck verifies the store is reachable.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoConnection
	}

	return s.conn.HealthCheck(ctx)
}

// Stats reports the stored event count and the most recent poll instant.
func (s *EventStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats

	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&stats.EventCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count events: %w", err)
	}

	var lastPoll time.Time

	err = s.conn.QueryRowContext(ctx, `
		SELECT last_poll_at FROM etag_cache ORDER BY last_poll_at DESC LIMIT 1
	`).Scan(&lastPoll)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No polls yet.
	case err != nil:
		return stats, fmt.Errorf("failed to read last poll: %w", err)
	default:
		stats.LastPollAt = lastPoll.UTC()
	}

	return stats, nil
}

// Close closes the underlying connection.
func (s *EventStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}
