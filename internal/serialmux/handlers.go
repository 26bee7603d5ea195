package serialmux

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
)

// DeviceState collects what the wearable has reported about itself.
type DeviceState struct {
	mu       sync.Mutex
	status   map[string]any
	lastEcho hazard.Command
	echoes   int64
	unknown  int64
}

// NewDeviceState returns an empty state.
func NewDeviceState() *DeviceState {
	return &DeviceState{status: make(map[string]any)}
}

// HandleLine updates the state from one device line.
func (d *DeviceState) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	switch ClassifyLine(line) {
	case EventTypeEcho:
		cmd, err := hazard.ParseCommand(line)
		if err != nil {
			return fmt.Errorf("failed to parse echo: %w", err)
		}
		d.mu.Lock()
		d.lastEcho = cmd
		d.echoes++
		d.mu.Unlock()
	case EventTypeStatus:
		var values map[string]any
		if err := json.Unmarshal([]byte(line), &values); err != nil {
			return fmt.Errorf("failed to unmarshal status JSON: %w", err)
		}
		d.mu.Lock()
		for k, v := range values {
			d.status[k] = v
		}
		d.mu.Unlock()
		monitoring.Logf("[wearable] status %s", line)
	default:
		d.mu.Lock()
		d.unknown++
		d.mu.Unlock()
		monitoring.Logf("[wearable] %s", line)
	}
	return nil
}

// DeviceSnapshot is a point-in-time copy of DeviceState.
type DeviceSnapshot struct {
	Status   map[string]any `json:"status"`
	LastEcho string         `json:"last_echo,omitempty"`
	Echoes   int64          `json:"echoes"`
	Unknown  int64          `json:"unknown_lines"`
}

// Snapshot returns a copy of the collected state.
func (d *DeviceState) Snapshot() DeviceSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := make(map[string]any, len(d.status))
	for k, v := range d.status {
		status[k] = v
	}
	s := DeviceSnapshot{Status: status, Echoes: d.echoes, Unknown: d.unknown}
	if d.echoes > 0 {
		s.LastEcho = d.lastEcho.String()
	}
	return s
}

// Consume feeds every line from a subscription into HandleLine until the
// channel closes.
func (d *DeviceState) Consume(lines <-chan string) {
	for line := range lines {
		if err := d.HandleLine(line); err != nil {
			monitoring.Logf("[wearable] %v", err)
		}
	}
}
