package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/detection"
	"github.com/banshee-data/walkpal/internal/pipeline"
	"github.com/banshee-data/walkpal/internal/proximity"
	"github.com/banshee-data/walkpal/internal/tracking"
)

type replayOptions struct {
	tuningPath string
	udpPort    int
	speed      float64
}

func newReplayCommand() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <capture.pcap>",
		Short: "Run a detection capture through the pipeline and print the commands it produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuning, err := config.LoadTuningConfig(opts.tuningPath)
			if err != nil {
				return err
			}
			_, err = runReplay(cmd.Context(), cmd.OutOrStdout(), args[0], tuning, opts)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.tuningPath, "tuning", "", "Tuning file (JSON)")
	cmd.Flags().IntVar(&opts.udpPort, "udp-port", 7420, "Destination port of detection datagrams (0 for any)")
	cmd.Flags().Float64Var(&opts.speed, "speed", 0, "Pace frames at capture speed times this factor (0 is unpaced)")
	return cmd
}

// runReplay feeds the capture through a pipeline whose wearable and audio
// renderer are recorders, so nothing leaves the host.
func runReplay(ctx context.Context, out io.Writer, path string, tuning *config.TuningConfig, opts replayOptions) (*alert.Recorder, error) {
	rec := alert.NewRecorder()
	runner := pipeline.NewRunner(
		pipeline.ConfigFromTuning(tuning),
		tracking.NewTracker(tracking.TrackerConfigFromTuning(tuning)),
		proximity.NewEngine(tuning.GetClassThresholds()),
		alert.NewDispatcher(rec, rec),
	)

	var start time.Time
	sink := detection.SubmitFunc(func(fr detection.FrameResult) bool {
		res := runner.ProcessFrame(fr)
		if start.IsZero() {
			start = res.At
		}
		offset := res.At.Sub(start).Seconds()
		for _, ev := range res.Events {
			fmt.Fprintf(out, "%9.3fs  %s\n", offset, ev)
		}
		if res.Cleared {
			fmt.Fprintf(out, "%9.3fs  clear\n", offset)
		}
		return true
	})

	stats, err := detection.ReadPCAPFile(ctx, detection.ReplayConfig{
		Path:    path,
		UDPPort: opts.udpPort,
		Speed:   opts.speed,
	}, sink)
	if err != nil {
		return rec, err
	}

	rs := runner.Stats()
	fmt.Fprintln(out, renderTable(
		[]string{"Packets", "Frames", "Decode errors", "Rejected", "Span", "Events", "Clears", "Commands"},
		[][]string{{
			strconv.Itoa(stats.Packets),
			strconv.Itoa(stats.Frames),
			strconv.Itoa(stats.DecodeErrors),
			strconv.Itoa(stats.Rejected),
			stats.Duration.Round(time.Millisecond).String(),
			strconv.FormatInt(rs.Events, 10),
			strconv.FormatInt(rs.Clears, 10),
			strconv.Itoa(len(rec.Commands())),
		}},
		0, 1, 2, 3, 5, 6, 7,
	))
	return rec, nil
}
