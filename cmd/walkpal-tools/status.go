package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/httputil"
	"github.com/banshee-data/walkpal/internal/overlay"
	"github.com/banshee-data/walkpal/internal/pipeline"
	"github.com/banshee-data/walkpal/internal/serialmux"
)

type statusResponse struct {
	Pipeline pipeline.Stats          `json:"pipeline"`
	Overlay  *overlay.PublisherStats `json:"overlay"`
	Wearable struct {
		Path      string                   `json:"path"`
		Connected bool                     `json:"connected"`
		Device    serialmux.DeviceSnapshot `json:"device"`
	} `json:"wearable"`
}

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the counters of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return runStatus(cmd.Context(), out, httputil.NewClient(flags.server, nil), shouldColorize(out))
		},
	}
}

func runStatus(ctx context.Context, out io.Writer, client *httputil.Client, colorize bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var st statusResponse
	if err := client.GetJSON(ctx, "/api/stats", &st); err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}

	n := func(v int64) string { return strconv.FormatInt(v, 10) }
	wearable := "disconnected"
	if st.Wearable.Connected {
		wearable = "connected"
	}
	if st.Wearable.Path != "" {
		wearable += " (" + st.Wearable.Path + ")"
	}

	rows := [][]string{
		{"frames submitted", n(st.Pipeline.Submitted)},
		{"frames dropped", n(st.Pipeline.Dropped)},
		{"frames processed", n(st.Pipeline.Processed)},
		{"queue depth", strconv.Itoa(st.Pipeline.QueueDepth)},
		{"events", n(st.Pipeline.Events)},
		{"clears", n(st.Pipeline.Clears)},
		{"journal errors", nearColor(n(st.Pipeline.JournalErrors), colorize)},
		{"transport errors", nearColor(n(st.Pipeline.Dispatch.TransportErrors), colorize)},
		{"wearable", wearable},
	}
	if st.Overlay != nil {
		rows = append(rows,
			[]string{"overlay clients", n(int64(st.Overlay.Clients))},
			[]string{"overlay snapshots", strconv.FormatUint(st.Overlay.Snapshots, 10)},
		)
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, 1))
	return nil
}
