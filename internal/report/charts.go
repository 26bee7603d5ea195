package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("report: no data")

const defaultBins = 10

// DepthHistogramPNG renders a histogram of alert depth proxies as PNG.
// bins <= 0 selects the default.
func DepthHistogramPNG(w io.Writer, class string, depths []float64, bins int) error {
	if len(depths) == 0 {
		return ErrNoData
	}
	if bins <= 0 {
		bins = defaultBins
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Alert depth - %s (n=%d)", class, len(depths))
	p.X.Label.Text = "Depth proxy (fraction of frame)"
	p.Y.Label.Text = "Alerts"

	h, err := plotter.NewHist(plotter.Values(depths), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// TimelineBucket is the alert count per state in one time bucket.
type TimelineBucket struct {
	Start time.Time
	Far   int
	Near  int
}

// Timeline buckets records by bucket width starting at the first record.
// Records must be in ascending time order.
func Timeline(records []db.AlertRecord, bucket time.Duration) []TimelineBucket {
	if len(records) == 0 {
		return nil
	}
	if bucket <= 0 {
		bucket = time.Minute
	}
	start := records[0].CreatedAt.Truncate(bucket)
	last := records[len(records)-1].CreatedAt.Truncate(bucket)
	n := int(last.Sub(start)/bucket) + 1

	out := make([]TimelineBucket, n)
	for i := range out {
		out[i].Start = start.Add(time.Duration(i) * bucket)
	}
	for _, r := range records {
		i := int(r.CreatedAt.Truncate(bucket).Sub(start) / bucket)
		if i < 0 || i >= n {
			continue
		}
		switch hazard.State(r.State) {
		case hazard.Far:
			out[i].Far++
		case hazard.Near:
			out[i].Near++
		}
	}
	return out
}

// TimelineChart renders the alert timeline as a standalone echarts page.
func TimelineChart(w io.Writer, records []db.AlertRecord, bucket time.Duration) error {
	if bucket <= 0 {
		bucket = time.Minute
	}
	buckets := Timeline(records, bucket)
	if len(buckets) == 0 {
		return ErrNoData
	}

	labels := make([]string, len(buckets))
	far := make([]opts.LineData, len(buckets))
	near := make([]opts.LineData, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Start.Local().Format("15:04:05")
		far[i] = opts.LineData{Value: b.Far}
		near[i] = opts.LineData{Value: b.Near}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alert timeline", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Alerts", Subtitle: fmt.Sprintf("alerts=%d bucket=%s", len(records), bucket)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "alerts"}),
	)
	line.SetXAxis(labels).
		AddSeries(string(hazard.Far), far).
		AddSeries(string(hazard.Near), near)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("render timeline: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
