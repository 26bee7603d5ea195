package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/walkpal/internal/hazard"
)

// DefaultTuningPath is read when no tuning path is configured and the file
// exists; relative to the working directory.
const DefaultTuningPath = "config/tuning.json"

const (
	defaultStaleAfter           = 7 * time.Second
	defaultAssociationTolerance = 0.15
	defaultQueueCapacity        = 32
)

// TuningConfig holds the tracker and policy tuning parameters. Every field
// is optional: the Get* accessors fall back to the built-in defaults, so a
// partial file only overrides what it names.
type TuningConfig struct {
	// Tracker
	StaleAfter           *string  `json:"stale_after,omitempty"` // duration string like "7s"
	AssociationTolerance *float64 `json:"association_tolerance,omitempty"`

	// Pipeline
	QueueCapacity *int  `json:"queue_capacity,omitempty"`
	ClearOnEmpty  *bool `json:"clear_on_empty,omitempty"`

	// Policy: per-class depth threshold overrides
	ClassThresholds map[string]float64 `json:"class_thresholds,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB. An empty path
// reads DefaultTuningPath if present and otherwise yields built-in defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(DefaultTuningPath); err != nil {
			return EmptyTuningConfig(), nil
		}
		path = DefaultTuningPath
	}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.StaleAfter != nil && *c.StaleAfter != "" {
		d, err := time.ParseDuration(*c.StaleAfter)
		if err != nil {
			return fmt.Errorf("invalid stale_after '%s': %w", *c.StaleAfter, err)
		}
		if d <= 0 {
			return fmt.Errorf("stale_after must be positive, got %s", d)
		}
	}

	if c.AssociationTolerance != nil {
		if *c.AssociationTolerance <= 0 || *c.AssociationTolerance > 1 {
			return fmt.Errorf("association_tolerance must be in (0, 1], got %f", *c.AssociationTolerance)
		}
	}

	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}

	// Sorted so the reported error is stable.
	classes := make([]string, 0, len(c.ClassThresholds))
	for class := range c.ClassThresholds {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		if !hazard.IsHazard(class) {
			return fmt.Errorf("class_thresholds: unknown class %q", class)
		}
		if v := c.ClassThresholds[class]; v <= 0 || v > 1 {
			return fmt.Errorf("class_thresholds[%s] must be in (0, 1], got %f", class, v)
		}
	}
	return nil
}

// GetStaleAfter returns how long an unseen object is kept.
func (c *TuningConfig) GetStaleAfter() time.Duration {
	if c.StaleAfter == nil || *c.StaleAfter == "" {
		return defaultStaleAfter
	}
	d, err := time.ParseDuration(*c.StaleAfter)
	if err != nil || d <= 0 {
		return defaultStaleAfter
	}
	return d
}

// GetAssociationTolerance returns the depth-ratio tolerance used to match a
// detection to an existing object.
func (c *TuningConfig) GetAssociationTolerance() float64 {
	if c.AssociationTolerance == nil {
		return defaultAssociationTolerance
	}
	return *c.AssociationTolerance
}

// GetQueueCapacity returns the number of frames buffered ahead of the tracker.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return defaultQueueCapacity
	}
	return *c.QueueCapacity
}

// GetClearOnEmpty reports whether an empty pass sends the clear command.
func (c *TuningConfig) GetClearOnEmpty() bool {
	if c.ClearOnEmpty == nil {
		return true
	}
	return *c.ClearOnEmpty
}

// GetClassThresholds returns a copy of the per-class threshold overrides.
func (c *TuningConfig) GetClassThresholds() map[string]float64 {
	out := make(map[string]float64, len(c.ClassThresholds))
	for k, v := range c.ClassThresholds {
		out[k] = v
	}
	return out
}
