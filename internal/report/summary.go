// Package report summarises the alert journal: per-class statistics, depth
// histograms and an alert timeline chart.
package report

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/hazard"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Source is the read side of the journal used by reports.
type Source interface {
	AlertCounts(ctx context.Context) ([]db.ClassCount, error)
	AlertDepths(ctx context.Context, class string) ([]float64, error)
}

// ClassSummary aggregates journalled alerts for one class.
type ClassSummary struct {
	Class string `json:"class"`
	Far   int    `json:"far"`
	Near  int    `json:"near"`
	Total int    `json:"total"`

	// Depth statistics over every alert of the class. Zero when there
	// are no alerts; StdDev is zero for a single sample.
	DepthMin    float64 `json:"depth_min"`
	DepthMax    float64 `json:"depth_max"`
	DepthMean   float64 `json:"depth_mean"`
	DepthStdDev float64 `json:"depth_stddev"`
	DepthP50    float64 `json:"depth_p50"`
	DepthP90    float64 `json:"depth_p90"`
}

// Summarize builds one ClassSummary per class with at least one alert,
// ordered by class name.
func Summarize(ctx context.Context, src Source) ([]ClassSummary, error) {
	counts, err := src.AlertCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert counts: %w", err)
	}

	byClass := make(map[string]*ClassSummary)
	for _, c := range counts {
		s, ok := byClass[c.Class]
		if !ok {
			s = &ClassSummary{Class: c.Class}
			byClass[c.Class] = s
		}
		switch hazard.State(c.State) {
		case hazard.Far:
			s.Far += c.Count
		case hazard.Near:
			s.Near += c.Count
		}
		s.Total += c.Count
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	out := make([]ClassSummary, 0, len(classes))
	for _, class := range classes {
		s := byClass[class]
		depths, err := src.AlertDepths(ctx, class)
		if err != nil {
			return nil, fmt.Errorf("alert depths for %s: %w", class, err)
		}
		s.applyDepths(depths)
		out = append(out, *s)
	}
	return out, nil
}

func (s *ClassSummary) applyDepths(depths []float64) {
	if len(depths) == 0 {
		return
	}
	sorted := slices.Clone(depths)
	slices.Sort(sorted)

	s.DepthMin = floats.Min(sorted)
	s.DepthMax = floats.Max(sorted)
	s.DepthMean, s.DepthStdDev = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(s.DepthStdDev) {
		s.DepthStdDev = 0
	}
	s.DepthP50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.DepthP90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
}
