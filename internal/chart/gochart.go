package chart

import (
	"bytes"
	"fmt"
	"io"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/ghpulse/ghpulse/internal/metrics"
)

const (
	chartWidth  = 1024
	chartHeight = 512
	barWidth    = 60
	dayLayout   = "2006-01-02"
)

// Compile-time assertion that GoChartRenderer satisfies the contract.
var _ Renderer = (*GoChartRenderer)(nil)

// GoChartRenderer implements Renderer with go-chart.
type GoChartRenderer struct{}

// NewRenderer creates the default chart renderer.
func NewRenderer() *GoChartRenderer {
	return &GoChartRenderer{}
}

// TrendingChart draws one bar per ranked repository.
func (r *GoChartRenderer) TrendingChart(
	entries []metrics.TrendingEntry,
	hours int,
	format Format,
) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	bars := make([]gochart.Value, 0, len(entries))
	for _, entry := range entries {
		bars = append(bars, gochart.Value{
			Value: float64(entry.Count),
			Label: entry.RepoName,
		})
	}

	graph := gochart.BarChart{
		Title:    fmt.Sprintf("Trending repositories (last %dh)", hours),
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: barWidth,
		Bars:     bars,
		XAxis: gochart.Style{
			TextRotationDegrees: 45,
		},
	}

	return render(format, graph.Render)
}

// PRTimelineChart draws opened/closed/merged series over the day range.
func (r *GoChartRenderer) PRTimelineChart(
	days []metrics.PRTimelineDay,
	repo string,
	format Format,
) ([]byte, error) {
	if len(days) == 0 {
		return nil, ErrNoData
	}

	xValues := make([]time.Time, 0, len(days))
	opened := make([]float64, 0, len(days))
	closed := make([]float64, 0, len(days))
	merged := make([]float64, 0, len(days))

	for _, day := range days {
		date, err := time.Parse(dayLayout, day.Date)
		if err != nil {
			return nil, fmt.Errorf("bad timeline date %q: %w", day.Date, err)
		}

		xValues = append(xValues, date)
		opened = append(opened, float64(day.Opened))
		closed = append(closed, float64(day.Closed))
		merged = append(merged, float64(day.Merged))
	}

	graph := gochart.Chart{
		Title:  fmt.Sprintf("Pull requests: %s", repo),
		Width:  chartWidth,
		Height: chartHeight,
		Series: []gochart.Series{
			gochart.TimeSeries{Name: "opened", XValues: xValues, YValues: opened},
			gochart.TimeSeries{Name: "closed", XValues: xValues, YValues: closed},
			gochart.TimeSeries{Name: "merged", XValues: xValues, YValues: merged},
		},
	}

	graph.Elements = []gochart.Renderable{
		gochart.Legend(&graph),
	}

	return render(format, graph.Render)
}

// render invokes a chart's Render with the provider matching the format.
func render(format Format, fn func(gochart.RendererProvider, io.Writer) error) ([]byte, error) {
	provider := gochart.PNG
	if format == FormatSVG {
		provider = gochart.SVG
	}

	var buf bytes.Buffer

	if err := fn(provider, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
