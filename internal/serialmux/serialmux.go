// Package serialmux owns the serial link to the haptic wearable. Commands
// go out as raw "a,b,c#" bytes; whatever the firmware writes back is split
// into lines and fanned out to subscribers.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/walkpal/internal/hazard"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is how many device lines a slow subscriber may lag
// before lines are dropped for it.
const subscriberBuffer = 8

// SerialMuxInterface is what the link, the API and the admin pages need
// from a wearable connection.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel of device lines. The channel is
	// closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)

	Send(hazard.Command) error
	// SendCommand parses a textual command and writes it.
	SendCommand(string) error

	// Monitor reads device lines until ctx is done or the port fails.
	Monitor(context.Context) error
	// Initialise puts the wearable into a known (silent) state.
	Initialise() error
	Close() error

	// AttachAdminRoutes mounts the /debug console for this connection.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes one serial port: writes are serialised and every
// line read is offered to all subscribers.
type SerialMux[T SerialPorter] struct {
	port T

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: make(map[string]chan string)}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Initialise silences every actuator. The wearable keeps its last command
// across reconnects, so this runs on every open.
func (s *SerialMux[T]) Initialise() error {
	if err := s.Send(hazard.Clear); err != nil {
		return fmt.Errorf("failed to send initial clear: %w", err)
	}
	return nil
}

// Send writes cmd to the serial port. The firmware does not acknowledge.
func (s *SerialMux[T]) Send(cmd hazard.Command) error {
	b := cmd.Bytes()
	s.writeMu.Lock()
	n, err := s.port.Write(b)
	s.writeMu.Unlock()
	switch {
	case err != nil:
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	case n != len(b):
		return fmt.Errorf("%w: short write %d/%d", ErrWriteFailed, n, len(b))
	}
	return nil
}

// SendCommand validates a textual "a,b,c#" command and sends it.
func (s *SerialMux[T]) SendCommand(command string) error {
	cmd, err := hazard.ParseCommand(command)
	if err != nil {
		return err
	}
	return s.Send(cmd)
}

// ScanDeviceLines is a bufio.SplitFunc that splits on newlines and on the
// command terminator, so both firmware log lines and echoed commands come
// through as single tokens. Empty tokens are skipped.
func ScanDeviceLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\n#"); i >= 0 {
		end := start + i
		tok := data[start:end]
		if data[end] == '#' {
			tok = data[start : end+1]
		}
		return end + 1, bytes.TrimRight(tok, "\r"), nil
	}
	if atEOF && len(data) > start {
		return len(data), bytes.TrimRight(data[start:], "\r"), nil
	}
	return start, nil, nil
}

// Monitor reads device lines and broadcasts them. It returns nil at EOF or
// after Close, ctx.Err() on cancellation and the read error otherwise.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	// Scan blocks in Read, so it runs apart from the select below.
	go func() {
		var err error
		defer func() {
			readErr <- err
			close(lines)
		}()
		sc := bufio.NewScanner(s.port)
		sc.Split(ScanDeviceLines)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		err = sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// broadcast offers line to every subscriber without blocking. It reports
// false once the mux is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

// Close ends every subscription and closes the port.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}
