package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/httputil"
	"github.com/banshee-data/walkpal/internal/serialmux"
)

// commandSender writes one command to the wearable.
type commandSender interface {
	Send(cmd hazard.Command) error
	Close() error
}

func newSendCommand(flags *rootFlags) *cobra.Command {
	var direct bool
	var device string

	cmd := &cobra.Command{
		Use:   "send <a,b,c#>",
		Short: "Send a raw vibration command to the wearable",
		Long: "Send a raw vibration command. By default the command goes through the\n" +
			"running daemon; --direct opens the serial device instead, which only\n" +
			"works while the daemon is stopped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := hazard.ParseCommand(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !direct {
				return sendViaDaemon(cmd.Context(), out, httputil.NewClient(flags.server, nil), command)
			}

			cfg, err := flags.serviceConfig()
			if err != nil {
				return err
			}
			if device != "" {
				cfg.Serial.Device = device
			}
			if cfg.Serial.Device == "" {
				return errors.New("no serial device configured")
			}
			port, err := serialmux.NewRealSerialMux(cfg.Serial.Device, serialmux.PortOptions{
				BaudRate: cfg.Serial.BaudRate,
				DataBits: cfg.Serial.DataBits,
				StopBits: cfg.Serial.StopBits,
				Parity:   cfg.Serial.Parity,
			})
			if err != nil {
				return err
			}
			return sendDirect(out, port, command)
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "Open the serial device instead of using the daemon")
	cmd.Flags().StringVar(&device, "device", "", "Serial device for --direct (overrides the configuration)")
	return cmd
}

func sendViaDaemon(ctx context.Context, out io.Writer, client *httputil.Client, command hazard.Command) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resp struct {
		Sent string `json:"sent"`
	}
	if err := client.PostJSON(ctx, "/api/command", map[string]string{"command": command.String()}, &resp); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	fmt.Fprintf(out, "sent %s\n", resp.Sent)
	return nil
}

func sendDirect(out io.Writer, port commandSender, command hazard.Command) error {
	defer port.Close()
	if err := port.Send(command); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	fmt.Fprintf(out, "sent %s\n", command)
	return nil
}
