package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/report"
	"github.com/banshee-data/walkpal/internal/security"
)

type reportOptions struct {
	chartPath string
	window    time.Duration
	bucket    time.Duration
	histClass string
	histPath  string
	histBins  int
}

func newReportCommand(flags *rootFlags) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the alert journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.serviceConfig()
			if err != nil {
				return err
			}
			journal, err := db.NewDB(cfg.Paths.Database)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			if err := runReport(cmd.Context(), out, journal, shouldColorize(out)); err != nil {
				return err
			}
			return writeReportFiles(cmd.Context(), out, journal, opts)
		},
	}

	cmd.Flags().StringVar(&opts.chartPath, "chart", "", "Write an HTML alert timeline to this path")
	cmd.Flags().DurationVar(&opts.window, "window", 24*time.Hour, "Timeline window")
	cmd.Flags().DurationVar(&opts.bucket, "bucket", 10*time.Minute, "Timeline bucket width")
	cmd.Flags().StringVar(&opts.histClass, "histogram-class", "", "Class for the depth histogram (empty means all)")
	cmd.Flags().StringVar(&opts.histPath, "histogram", "", "Write a PNG depth histogram to this path")
	cmd.Flags().IntVar(&opts.histBins, "bins", 10, "Histogram bins")
	return cmd
}

func runReport(ctx context.Context, out io.Writer, src report.Source, colorize bool) error {
	summary, err := report.Summarize(ctx, src)
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		fmt.Fprintln(out, "no alerts recorded")
		return nil
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, []string{
			s.Class,
			strconv.Itoa(s.Far),
			nearColor(strconv.Itoa(s.Near), colorize),
			strconv.Itoa(s.Total),
			f(s.DepthMin),
			f(s.DepthP50),
			f(s.DepthP90),
			f(s.DepthMax),
			f(s.DepthMean),
			f(s.DepthStdDev),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Class", "Far", "Near", "Total", "Min", "P50", "P90", "Max", "Mean", "StdDev"},
		rows, 1, 2, 3, 4, 5, 6, 7, 8, 9,
	))
	return nil
}

func writeReportFiles(ctx context.Context, out io.Writer, journal report.Journal, opts reportOptions) error {
	if opts.chartPath != "" {
		records, err := journal.AlertsSince(ctx, time.Now().Add(-opts.window))
		if err != nil {
			return err
		}
		if err := writeFile(opts.chartPath, func(w io.Writer) error {
			return report.TimelineChart(w, records, opts.bucket)
		}); err != nil {
			return fmt.Errorf("timeline chart: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", opts.chartPath)
	}

	if opts.histPath != "" {
		depths, err := journal.AlertDepths(ctx, opts.histClass)
		if err != nil {
			return err
		}
		if err := writeFile(opts.histPath, func(w io.Writer) error {
			return report.DepthHistogramPNG(w, opts.histClass, depths, opts.histBins)
		}); err != nil {
			return fmt.Errorf("depth histogram: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", opts.histPath)
	}
	return nil
}

// writeFile renders into path, removing it again when render fails.
func writeFile(path string, render func(io.Writer) error) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
