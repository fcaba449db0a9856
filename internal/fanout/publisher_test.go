package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghpulse/ghpulse/internal/storage"
)

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewPublisher(nil, "github-events")
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestBuildMessagesKeysByRepo(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []storage.Event{
		{
			ID:         "A1",
			EventType:  "WatchEvent",
			RepoName:   "o/r",
			ActorLogin: "octocat",
			CreatedAt:  createdAt,
			Payload:    []byte(`{"action":"started"}`),
		},
		{
			ID:        "B1",
			EventType: "IssuesEvent",
			RepoName:  "other/repo",
			CreatedAt: createdAt,
			Payload:   []byte(`{}`),
		},
	}

	messages, err := buildMessages(events)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, []byte("o/r"), messages[0].Key)
	assert.Equal(t, []byte("other/repo"), messages[1].Key)

	var decoded message
	require.NoError(t, json.Unmarshal(messages[0].Value, &decoded))
	assert.Equal(t, "A1", decoded.ID)
	assert.Equal(t, "WatchEvent", decoded.EventType)
	assert.Equal(t, "octocat", decoded.ActorLogin)
	assert.NotEmpty(t, decoded.MessageID)
	assert.JSONEq(t, `{"action":"started"}`, string(decoded.Payload))
}

func TestBuildMessagesUniqueMessageIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := []storage.Event{
		{ID: "A1", RepoName: "o/r", Payload: []byte(`{}`)},
		{ID: "A2", RepoName: "o/r", Payload: []byte(`{}`)},
	}

	messages, err := buildMessages(events)
	require.NoError(t, err)

	var first, second message
	require.NoError(t, json.Unmarshal(messages[0].Value, &first))
	require.NoError(t, json.Unmarshal(messages[1].Value, &second))
	assert.NotEqual(t, first.MessageID, second.MessageID)
}
