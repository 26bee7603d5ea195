package alert

import (
	"sync"

	"github.com/banshee-data/walkpal/internal/hazard"
)

// Played is one recorded audio cue trigger.
type Played struct {
	Channel  int
	Position Position
}

// Recorder is an in-memory Transport and AudioSink. It backs offline replay
// and tests.
type Recorder struct {
	mu       sync.Mutex
	commands []hazard.Command
	cues     []Played
	sendErr  error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Send calls return err (nil restores success).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

// Send records cmd.
func (r *Recorder) Send(cmd hazard.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// Play records a cue trigger.
func (r *Recorder) Play(channel int, pos Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, Played{Channel: channel, Position: pos})
	return nil
}

// Commands returns a copy of every command sent so far.
func (r *Recorder) Commands() []hazard.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hazard.Command(nil), r.commands...)
}

// Cues returns a copy of every cue played so far.
func (r *Recorder) Cues() []Played {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Played(nil), r.cues...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
	r.cues = nil
}
