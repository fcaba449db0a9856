// Package ingest keeps the event store fresh: it periodically fetches the
// upstream feeds, honors server-issued pacing, filters and deduplicates
// events, and writes batches through the store.
package ingest

import (
	"github.com/ghpulse/ghpulse/internal/github"
)

// Filter drops events outside the recognized type whitelist and, in targeted
// mode, outside the target repository set. Per-repo feed responses already
// satisfy the target constraint but are re-validated.
type Filter struct {
	types   map[string]struct{}
	targets map[string]struct{}
}

// NewFilter builds a filter from the recognized type whitelist and the target
// set. An empty target list means global mode: events from any repository are
// kept.
func NewFilter(eventTypes, targetRepos []string) *Filter {
	f := &Filter{
		types:   make(map[string]struct{}, len(eventTypes)),
		targets: make(map[string]struct{}, len(targetRepos)),
	}

	for _, t := range eventTypes {
		f.types[t] = struct{}{}
	}

	for _, repo := range targetRepos {
		f.targets[repo] = struct{}{}
	}

	return f
}

// Apply returns the events that pass the whitelist and target constraints,
// preserving order.
func (f *Filter) Apply(events []github.Event) []github.Event {
	kept := make([]github.Event, 0, len(events))

	for _, event := range events {
		if _, ok := f.types[event.Type]; !ok {
			continue
		}

		if len(f.targets) > 0 {
			if _, ok := f.targets[event.Repo.Name]; !ok {
				continue
			}
		}

		kept = append(kept, event)
	}

	return kept
}

// Recognizes reports whether the event type is in the whitelist.
func (f *Filter) Recognizes(eventType string) bool {
	_, ok := f.types[eventType]

	return ok
}
