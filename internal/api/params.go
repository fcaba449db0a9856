package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// intParam reads an integer query parameter with a default and an inclusive
// range. The error message is caller-facing.
func intParam(r *http.Request, name string, def, minValue, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}

	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("%s must be between %d and %d", name, minValue, maxValue)
	}

	return value, nil
}

// repoParam reads the required repo query parameter and validates the
// owner/name shape.
func repoParam(r *http.Request) (string, error) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		return "", fmt.Errorf("repo is required")
	}

	if !strings.Contains(repo, "/") {
		return "", fmt.Errorf("repo must be in owner/name form")
	}

	return repo, nil
}
