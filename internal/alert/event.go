// Package alert turns proximity transitions into wearable commands and
// spatial audio cue triggers.
package alert

import (
	"fmt"
	"time"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/tracking"
)

// Position is the spatial audio source position of an event.
type Position = tracking.Position

// Event is a single proximity transition for one tracked object.
type Event struct {
	ObjectID string         `json:"object_id"`
	Class    string         `json:"class"`
	State    hazard.State   `json:"state"`
	Command  hazard.Command `json:"command"`
	Channel  int            `json:"channel"`
	Position Position       `json:"position"`
	Depth    float64        `json:"depth"`
	At       time.Time      `json:"at"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s cmd=%s ch=%d depth=%.3f", e.ObjectID, e.Class, e.State, e.Command, e.Channel, e.Depth)
}

// NewEvent builds the event for obj entering state with the given cue.
func NewEvent(obj tracking.TrackedObject, state hazard.State, cue hazard.Cue, at time.Time) Event {
	return Event{
		ObjectID: obj.ID,
		Class:    obj.Class,
		State:    state,
		Command:  cue.Command,
		Channel:  cue.Channel,
		Position: obj.CuePosition(),
		Depth:    obj.Depth,
		At:       at,
	}
}
