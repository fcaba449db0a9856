package chart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghpulse/ghpulse/internal/metrics"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestParseFormat(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "empty defaults to png", input: "", want: FormatPNG},
		{name: "png", input: "png", want: FormatPNG},
		{name: "svg", input: "svg", want: FormatSVG},
		{name: "upper case", input: "SVG", want: FormatSVG},
		{name: "unsupported", input: "gif", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, format)
		})
	}
}

func TestFormatMIME(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "image/png", FormatPNG.MIME())
	assert.Equal(t, "image/svg+xml", FormatSVG.MIME())
}

func TestTrendingChartPNG(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	renderer := NewRenderer()

	data, err := renderer.TrendingChart([]metrics.TrendingEntry{
		{RepoName: "a/x", Count: 3},
		{RepoName: "b/y", Count: 2},
	}, 24, FormatPNG)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, pngMagic, data[:4])
}

func TestTrendingChartSVG(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	renderer := NewRenderer()

	data, err := renderer.TrendingChart([]metrics.TrendingEntry{
		{RepoName: "a/x", Count: 3},
	}, 24, FormatSVG)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "<svg"))
}

func TestTrendingChartNoData(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	renderer := NewRenderer()

	_, err := renderer.TrendingChart(nil, 24, FormatPNG)
	require.ErrorIs(t, err, ErrNoData)
}

func TestPRTimelineChartPNG(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	renderer := NewRenderer()

	data, err := renderer.PRTimelineChart([]metrics.PRTimelineDay{
		{Date: "2025-01-01", Opened: 2, Closed: 1, Merged: 1},
		{Date: "2025-01-02", Opened: 1},
		{Date: "2025-01-03", Merged: 3},
	}, "o/r", FormatPNG)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, pngMagic, data[:4])
}
