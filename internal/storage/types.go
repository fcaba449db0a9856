// Package storage provides the local event store: schema initialization,
// deduplicated batch insert, and the conditional-request tag cache.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	sqliteDriver = "sqlite3"
	ctxTimeout   = 5 * time.Second
)

// Sentinel errors for store operations.
var (
	// ErrNoConnection is returned when a store is constructed without a connection.
	ErrNoConnection = errors.New("no database connection")

	// ErrInsertFailed is returned when a batch insert cannot be committed.
	ErrInsertFailed = errors.New("event batch insert failed")

	// ErrETagFailed is returned when the tag cache cannot be read or written.
	ErrETagFailed = errors.New("etag cache operation failed")
)

type (
	// Connection wraps the database handle for the local store.
	Connection struct {
		*sql.DB
	}

	// Event is the persisted form of one upstream event. Payload is the
	// verbatim upstream JSON blob.
	Event struct {
		ID          string
		EventType   string
		RepoName    string
		ActorLogin  string
		CreatedAt   time.Time
		Payload     []byte
		CollectedAt time.Time
	}

	// Commit is one commit unpacked from a PushEvent payload. Rows exist only
	// when commit indexing is enabled.
	Commit struct {
		SHA         string
		EventID     string
		RepoName    string
		AuthorName  string
		Message     string
		CommittedAt time.Time
	}

	// ETagEntry is one row of the conditional-request cache.
	ETagEntry struct {
		Key        string
		ETag       string
		LastPollAt time.Time
	}

	// StoreStats summarizes store contents for the health endpoint.
	StoreStats struct {
		EventCount int64
		LastPollAt time.Time
	}

	// ReadHandle is the read-only capability handed to the query layer.
	ReadHandle interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}

	// Store is the full capability set of the event store. The local SQLite
	// implementation is EventStore; alternative backends implement the same
	// set without core code changing.
	Store interface {
		// Initialize creates schema and indexes if absent. Idempotent.
		Initialize(ctx context.Context) error
		// InsertEvents writes a batch atomically, skipping duplicate ids.
		// Returns the number of newly inserted rows.
		InsertEvents(ctx context.Context, events []Event) (int, error)
		// InsertCommits writes extracted commits, skipping duplicate SHAs.
		InsertCommits(ctx context.Context, commits []Commit) (int, error)
		// GetETag returns the cached tag entry for an endpoint key.
		GetETag(ctx context.Context, key string) (ETagEntry, bool, error)
		// PutETag overwrites the cached tag entry for an endpoint key.
		PutETag(ctx context.Context, key, etag string, at time.Time) error
		// OpenRead returns the read-only handle for the query layer.
		OpenRead() ReadHandle
		// HealthCheck verifies the store is reachable.
		HealthCheck(ctx context.Context) error
		// Stats reports store contents for health reporting.
		Stats(ctx context.Context) (StoreStats, error)

		io.Closer
	}
)

// NewConnection opens the local store at path with WAL journal mode,
// busy_timeout, and foreign keys enabled. The pool holds a single
// connection, so readers wait while a batch transaction is in progress.
func NewConnection(path string) (*Connection, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_loc=UTC",
		path,
	)

	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	// SQLite allows a single writer; funnel all writes through one
	// connection so concurrent polls queue instead of erroring.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("store health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck checks that the store answers queries, with a bounded timeout
// when the caller passes none.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)

		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the underlying handle. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}
