package ingest

import (
	"encoding/json"

	"github.com/ghpulse/ghpulse/internal/github"
	"github.com/ghpulse/ghpulse/internal/storage"
)

const pushEventType = "PushEvent"

// pushPayload is the slice of a PushEvent payload commit indexing needs.
type pushPayload struct {
	Commits []struct {
		SHA    string `json:"sha"`
		Author struct {
			Name string `json:"name"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commits"`
}

// extractCommits unpacks commits from PushEvent payloads. Malformed payloads
// are skipped; the originating event is stored regardless.
func extractCommits(events []github.Event) []storage.Commit {
	var commits []storage.Commit

	for _, event := range events {
		if event.Type != pushEventType {
			continue
		}

		var payload pushPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			continue
		}

		for _, c := range payload.Commits {
			if c.SHA == "" {
				continue
			}

			commits = append(commits, storage.Commit{
				SHA:        c.SHA,
				EventID:    event.ID,
				RepoName:   event.Repo.Name,
				AuthorName: c.Author.Name,
				Message:    c.Message,
			})
		}
	}

	return commits
}
