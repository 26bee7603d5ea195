// Package audiocue triggers pre-loaded spatial audio cues on an external
// renderer. Each trigger is one JSON datagram; delivery is best effort.
package audiocue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
)

var (
	ErrQueueFull      = errors.New("audio cue queue full")
	ErrInvalidChannel = errors.New("audio channel out of range")
)

// Trigger is the datagram sent to the renderer.
type Trigger struct {
	Channel int     `json:"channel"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Cue     string  `json:"cue"`
}

// NewTrigger builds the trigger for channel at pos.
func NewTrigger(channel int, pos alert.Position) (Trigger, error) {
	if channel < 1 || channel > hazard.NumChannels {
		return Trigger{}, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return Trigger{
		Channel: channel,
		X:       pos.X,
		Y:       pos.Y,
		Z:       pos.Z,
		Cue:     hazard.SoundForChannel(channel),
	}, nil
}

// Sender delivers triggers over UDP without blocking the caller.
type Sender struct {
	conn        *net.UDPConn
	queue       chan []byte
	address     string
	logInterval time.Duration

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewSender dials the renderer at addr.
func NewSender(addr string, logInterval time.Duration) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audio renderer address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio renderer connection: %w", err)
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Sender{
		conn:        conn,
		queue:       make(chan []byte, 64),
		address:     addr,
		logInterval: logInterval,
	}, nil
}

// Play implements alert.AudioSink.
func (s *Sender) Play(channel int, pos alert.Position) error {
	trig, err := NewTrigger(channel, pos)
	if err != nil {
		return err
	}
	b, err := json.Marshal(trig)
	if err != nil {
		return err
	}
	select {
	case s.queue <- b:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Start runs the delivery loop until ctx is done, then closes the socket.
func (s *Sender) Start(ctx context.Context) {
	go func() {
		defer s.conn.Close()
		var failed int
		var lastErr error
		ticker := time.NewTicker(s.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case b := <-s.queue:
				if _, err := s.conn.Write(b); err != nil {
					failed++
					lastErr = err
					s.dropped.Add(1)
					continue
				}
				s.sent.Add(1)
			case <-ticker.C:
				if failed > 0 {
					monitoring.Logf("[audiocue] %d cue(s) to %s failed (latest: %v)", failed, s.address, lastErr)
					failed, lastErr = 0, nil
				}
			}
		}
	}()
	monitoring.Logf("[audiocue] sending cues to %s", s.address)
}

// Stats returns the number of delivered and dropped triggers.
func (s *Sender) Stats() (sent, dropped int64) {
	return s.sent.Load(), s.dropped.Load()
}

// Noop discards every trigger. It is used when no renderer is configured.
type Noop struct{}

func (Noop) Play(int, alert.Position) error { return nil }
