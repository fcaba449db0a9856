// Package chart renders query results as raster or vector images. The HTTP
// layer depends only on the Renderer contract; the go-chart implementation
// lives behind it so the core stays free of rendering logic.
package chart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ghpulse/ghpulse/internal/metrics"
)

// Format is the requested output encoding.
type Format string

// Supported output formats.
const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// Rendering errors.
var (
	// ErrUnsupportedFormat is returned for format tags outside {png, svg}.
	ErrUnsupportedFormat = errors.New("unsupported chart format")

	// ErrNoData is returned when there is nothing to draw.
	ErrNoData = errors.New("no data to render")
)

// ParseFormat validates a format tag. An empty tag defaults to PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "svg":
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// MIME returns the content type matching the format.
func (f Format) MIME() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}

	return "image/png"
}

// Renderer is the external rendering contract: given a query result and a
// format tag, produce image bytes whose MIME type matches the format.
type Renderer interface {
	// TrendingChart draws a ranked repository bar chart.
	TrendingChart(entries []metrics.TrendingEntry, hours int, format Format) ([]byte, error)
	// PRTimelineChart draws per-day pull-request lifecycle series.
	PRTimelineChart(days []metrics.PRTimelineDay, repo string, format Format) ([]byte, error)
}
