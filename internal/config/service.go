package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/banshee-data/walkpal/internal/security"
)

// Serial describes the wearable link.
type Serial struct {
	Device   string `toml:"device"` // empty disables the link
	BaudRate int    `toml:"baud_rate"`
	DataBits int    `toml:"data_bits"`
	StopBits int    `toml:"stop_bits"`
	Parity   string `toml:"parity"`
	Hotplug  bool   `toml:"hotplug"`
}

// Network holds listen and peer addresses.
type Network struct {
	DetectionListen string `toml:"detection_listen"` // UDP, detection datagrams
	AudioCueAddr    string `toml:"audio_cue_addr"`   // UDP peer, empty disables cues
	HTTPListen      string `toml:"http_listen"`
	GRPCListen      string `toml:"grpc_listen"`
}

// Paths holds on-disk locations.
type Paths struct {
	Database   string `toml:"database"`
	LogDir     string `toml:"log_dir"`
	LockFile   string `toml:"lock_file"`
	TuningFile string `toml:"tuning_file"`
}

// ServiceConfig is the deployment configuration of the walkpal daemon.
type ServiceConfig struct {
	Serial  Serial  `toml:"serial"`
	Network Network `toml:"network"`
	Paths   Paths   `toml:"paths"`
}

// DefaultServiceConfig returns the configuration used when no file exists.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Serial: Serial{
			BaudRate: 9600,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
		},
		Network: Network{
			DetectionListen: ":7420",
			HTTPListen:      "localhost:8080",
			GRPCListen:      "localhost:50061",
		},
		Paths: Paths{
			Database: "walkpal.db",
			LockFile: "/tmp/walkpal.lock",
		},
	}
}

// LoadServiceConfig reads a TOML file on top of the defaults. A missing file
// yields the defaults.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read service config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse service config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid service config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks required fields.
func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.Network.DetectionListen) == "" {
		return errors.New("network.detection_listen is required")
	}
	if strings.TrimSpace(c.Paths.Database) == "" {
		return errors.New("paths.database is required")
	}
	if c.Serial.Hotplug && c.Serial.Device == "" {
		return errors.New("serial.hotplug requires serial.device")
	}
	if c.Serial.Device != "" {
		if err := security.ValidateDevicePath(c.Serial.Device); err != nil {
			return fmt.Errorf("serial.device: %w", err)
		}
	}
	return nil
}

// Marshal renders the configuration as TOML.
func (c ServiceConfig) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
