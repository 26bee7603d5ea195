package alert

import (
	"sync"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
)

// Transport delivers wire commands to the wearable.
type Transport interface {
	Send(cmd hazard.Command) error
}

// AudioSink triggers a pre-loaded spatial audio cue.
type AudioSink interface {
	Play(channel int, pos Position) error
}

// DispatchStats are cumulative dispatcher counters.
type DispatchStats struct {
	Events          int64 `json:"events"`
	Clears          int64 `json:"clears"`
	CommandsSent    int64 `json:"commands_sent"`
	TransportErrors int64 `json:"transport_errors"`
	CuesPlayed      int64 `json:"cues_played"`
	AudioErrors     int64 `json:"audio_errors"`
}

// Dispatcher fans an Event out to the wearable transport and the audio sink.
// Delivery is best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	transport Transport
	audio     AudioSink

	mu    sync.Mutex
	stats DispatchStats
}

// NewDispatcher returns a dispatcher writing to transport and audio. Either
// may be nil, in which case that side is skipped.
func NewDispatcher(transport Transport, audio AudioSink) *Dispatcher {
	return &Dispatcher{transport: transport, audio: audio}
}

// SetTransport swaps the wearable transport, e.g. after a device hotplug.
func (d *Dispatcher) SetTransport(t Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transport = t
}

// Dispatch sends exactly one command for ev and triggers its audio cue.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	d.stats.Events++
	transport, audio := d.transport, d.audio
	d.mu.Unlock()

	d.send(transport, ev.Command)

	if audio == nil || ev.Channel == 0 {
		return
	}
	err := audio.Play(ev.Channel, ev.Position)
	d.mu.Lock()
	if err != nil {
		d.stats.AudioErrors++
	} else {
		d.stats.CuesPlayed++
	}
	d.mu.Unlock()
	if err != nil {
		monitoring.Logf("[dispatch] audio cue %d for %s failed: %v", ev.Channel, ev.ObjectID, err)
	}
}

// Clear sends a single all-off command.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.stats.Clears++
	transport := d.transport
	d.mu.Unlock()

	d.send(transport, hazard.Clear)
}

func (d *Dispatcher) send(t Transport, cmd hazard.Command) {
	if t == nil {
		d.mu.Lock()
		d.stats.TransportErrors++
		d.mu.Unlock()
		return
	}
	err := t.Send(cmd)
	d.mu.Lock()
	if err != nil {
		d.stats.TransportErrors++
	} else {
		d.stats.CommandsSent++
	}
	d.mu.Unlock()
	if err != nil {
		monitoring.Logf("[dispatch] command %s dropped: %v", cmd, err)
	}
}

// Stats returns the cumulative counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
