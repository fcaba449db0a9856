package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh store in a temp directory with schema applied.
func newTestStore(t *testing.T) *EventStore {
	t.Helper()

	conn, err := NewConnection(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	store, err := NewEventStore(conn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	require.NoError(t, store.Initialize(context.Background()))

	return store
}

func testEvent(id string, eventType string, repo string, createdAt time.Time) Event {
	return Event{
		ID:          id,
		EventType:   eventType,
		RepoName:    repo,
		ActorLogin:  "octocat",
		CreatedAt:   createdAt,
		Payload:     []byte(`{"action":"started"}`),
		CollectedAt: createdAt.Add(time.Second),
	}
}

func TestInitializeIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)

	// A second initialize against a current schema must be a no-op.
	require.NoError(t, store.Initialize(context.Background()))
}

func TestInsertEventsDeduplicates(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []Event{
		testEvent("A1", "WatchEvent", "o/r", now),
		testEvent("A2", "PullRequestEvent", "o/r", now),
	}

	inserted, err := store.InsertEvents(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-inserting the same batch is a no-op.
	inserted, err = store.InsertEvents(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.EventCount)
}

func TestInsertEventsPartialOverlap(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertEvents(ctx, []Event{testEvent("A1", "WatchEvent", "o/r", now)})
	require.NoError(t, err)

	inserted, err := store.InsertEvents(ctx, []Event{
		testEvent("A1", "WatchEvent", "o/r", now),
		testEvent("B1", "IssuesEvent", "o/r", now),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestInsertEventsEmptyBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)

	inserted, err := store.InsertEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestETagRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.GetETag(ctx, "global")
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutETag(ctx, "global", `W/"abc"`, at))

	entry, found, err := store.GetETag(ctx, "global")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `W/"abc"`, entry.ETag)
	assert.Equal(t, at, entry.LastPollAt)

	// Overwrite advances the poll instant and replaces the tag.
	later := at.Add(5 * time.Minute)
	require.NoError(t, store.PutETag(ctx, "global", `W/"def"`, later))

	entry, found, err = store.GetETag(ctx, "global")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `W/"def"`, entry.ETag)
	assert.Equal(t, later, entry.LastPollAt)
}

func TestPutETagEmptyStoresNull(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutETag(ctx, "repo:o/r", "", at))

	entry, found, err := store.GetETag(ctx, "repo:o/r")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, entry.ETag)
	assert.Equal(t, at, entry.LastPollAt)
}

func TestInsertCommitsDeduplicates(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertEvents(ctx, []Event{testEvent("E1", "PushEvent", "o/r", now)})
	require.NoError(t, err)

	commits := []Commit{
		{SHA: "abc123", EventID: "E1", RepoName: "o/r", AuthorName: "octocat", Message: "fix", CommittedAt: now},
	}

	inserted, err := store.InsertCommits(ctx, commits)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	inserted, err = store.InsertCommits(ctx, commits)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestStatsReportsLastPoll(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EventCount)
	assert.True(t, stats.LastPollAt.IsZero())

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.PutETag(ctx, "global", `W/"x"`, at))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, at, stats.LastPollAt)
}

func TestHealthCheck(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}
