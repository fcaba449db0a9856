// Package github wraps the upstream GitHub events endpoints: conditional
// GETs, rate-limit and poll-interval header parsing, and JSON event decoding.
package github

import (
	"encoding/json"
	"time"
)

type (
	// Event is one raw record from the upstream events feed. Payload is kept
	// verbatim; filtering and persistence are the caller's concern.
	Event struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		Actor     Actor           `json:"actor"`
		Repo      Repo            `json:"repo"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt time.Time       `json:"created_at"` //nolint: tagliatelle
	}

	// Actor identifies the user that triggered an event.
	Actor struct {
		Login string `json:"login"`
	}

	// Repo identifies the repository an event belongs to, in owner/name form.
	Repo struct {
		Name string `json:"name"`
	}

	// RateLimitState carries the upstream request budget parsed from
	// X-RateLimit-Remaining and X-RateLimit-Reset.
	RateLimitState struct {
		Remaining int
		Reset     time.Time
	}

	// FetchResult is the outcome of one fetch against an events endpoint.
	//
	// When Modified is false the upstream answered 304 Not Modified: Events
	// is empty and ETag preserves the tag the request was made with.
	FetchResult struct {
		Events       []Event
		ETag         string
		PollInterval time.Duration
		RateLimit    RateLimitState
		Modified     bool
	}

	// FetchOptions controls one fetch. ETag, when non-empty, is sent as
	// If-None-Match. Limit caps the number of events fetched across pages;
	// zero means a single page of the maximum page size.
	FetchOptions struct {
		ETag  string
		Limit int
	}
)
