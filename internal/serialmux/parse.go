package serialmux

import (
	"strings"

	"github.com/banshee-data/walkpal/internal/hazard"
)

const (
	EventTypeEcho    = "echo"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// ClassifyLine inspects a line read from the wearable and returns a simple
// event type token. Firmware in echo mode repeats every command it applied;
// status reports are single-line JSON objects.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasSuffix(line, hazard.CommandTerminator) {
		if _, err := hazard.ParseCommand(line); err == nil {
			return EventTypeEcho
		}
	}
	if strings.HasPrefix(line, "{") {
		return EventTypeStatus
	}
	return EventTypeUnknown
}
