package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/version"
)

var (
	configPath   = flag.String("config", "/etc/walkpal/walkpal.toml", "Service configuration file (TOML)")
	tuningPath   = flag.String("tuning", "", "Tuning file (JSON); overrides paths.tuning_file")
	listen       = flag.String("listen", "", "HTTP listen address; overrides network.http_listen")
	detections   = flag.String("detections", "", "UDP address for detection datagrams; overrides network.detection_listen")
	grpcListen   = flag.String("grpc-listen", "", "Overlay gRPC listen address; overrides network.grpc_listen")
	audioAddr    = flag.String("audio-addr", "", "UDP address of the audio renderer; overrides network.audio_cue_addr")
	port         = flag.String("port", "", "Wearable serial device; overrides serial.device")
	dbPath       = flag.String("db", "", "SQLite journal path; overrides paths.database")
	logDir       = flag.String("log-dir", "", "Directory for rotated logs; overrides paths.log_dir")
	hotplug      = flag.Bool("hotplug", false, "Reconnect the wearable on udev add/remove events")
	mockWearable = flag.Bool("mock-wearable", false, "Attach an echoing mock wearable instead of a serial device")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("walkpal %s\n", version.String())
		return
	}

	cfg, err := config.LoadServiceConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load service config: %v", err)
	}
	applyFlags(&cfg, flag.CommandLine)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.Paths.LogDir != "" {
		w, err := monitoring.OpenLogFile(cfg.Paths.LogDir)
		if err != nil {
			log.Fatalf("failed to open log directory: %v", err)
		}
		defer w.Close()
		monitoring.TeeStandardLog(w)
	}

	tuning, err := config.LoadTuningConfig(cfg.Paths.TuningFile)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDaemon(cfg, tuning, options{MockWearable: *mockWearable})
	if err := d.Run(ctx); err != nil {
		log.Printf("walkpal: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}

// applyFlags copies explicitly set flags over the file configuration.
func applyFlags(cfg *config.ServiceConfig, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "tuning":
			cfg.Paths.TuningFile = v
		case "listen":
			cfg.Network.HTTPListen = v
		case "detections":
			cfg.Network.DetectionListen = v
		case "grpc-listen":
			cfg.Network.GRPCListen = v
		case "audio-addr":
			cfg.Network.AudioCueAddr = v
		case "port":
			cfg.Serial.Device = v
		case "db":
			cfg.Paths.Database = v
		case "log-dir":
			cfg.Paths.LogDir = v
		case "hotplug":
			cfg.Serial.Hotplug = v == "true"
		}
	})
}
