// Package overlay streams tracker snapshots to overlay renderers over gRPC
// and websocket.
package overlay

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/tracking"
	"github.com/google/uuid"
)

// ErrTooManyClients is returned by Subscribe once MaxClients streams are open.
var ErrTooManyClients = errors.New("overlay: too many clients")

// Config holds overlay feed parameters.
type Config struct {
	// ListenAddr is the gRPC listen address (e.g. "localhost:50061").
	ListenAddr string

	// ClientBuffer is the number of snapshots queued per client before
	// snapshots are dropped for that client.
	ClientBuffer int

	// MaxClients bounds concurrent subscribers across gRPC and websocket.
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		ClientBuffer: 8,
		MaxClients:   8,
	}
}

// Snapshot is the tracker state after one pipeline pass.
type Snapshot struct {
	Seq     uint64                   `json:"seq"`
	At      time.Time                `json:"at"`
	Objects []tracking.TrackedObject `json:"objects"`
	Events  []alert.Event            `json:"events"`
}

type subscriber struct {
	id string
	ch chan Snapshot
}

// Publisher fans snapshots out to subscribers. A slow subscriber loses
// snapshots rather than stalling the pipeline.
type Publisher struct {
	config Config

	clients   map[string]*subscriber
	clientsMu sync.RWMutex

	latest   Snapshot
	latestMu sync.RWMutex

	seq         atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32
}

// NewPublisher creates a publisher. Zero config fields take their defaults.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	return &Publisher{
		config:  cfg,
		clients: make(map[string]*subscriber),
	}
}

// Config returns the effective configuration.
func (p *Publisher) Config() Config { return p.config }

// Publish records a snapshot and offers it to every subscriber.
func (p *Publisher) Publish(at time.Time, objects []tracking.TrackedObject, events []alert.Event) {
	snap := Snapshot{
		Seq:     p.seq.Add(1),
		At:      at,
		Objects: append([]tracking.TrackedObject(nil), objects...),
		Events:  append([]alert.Event(nil), events...),
	}
	if snap.Objects == nil {
		snap.Objects = []tracking.TrackedObject{}
	}
	if snap.Events == nil {
		snap.Events = []alert.Event{}
	}

	p.latestMu.Lock()
	p.latest = snap
	p.latestMu.Unlock()

	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	for _, c := range p.clients {
		select {
		case c.ch <- snap:
		default:
			p.dropped.Add(1)
		}
	}
}

// Latest returns the most recent snapshot, if any has been published.
func (p *Publisher) Latest() (Snapshot, bool) {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	return p.latest, p.latest.Seq != 0
}

// Subscribe registers a new client. kind is used for the client ID and logs.
func (p *Publisher) Subscribe(kind string) (string, <-chan Snapshot, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()

	if len(p.clients) >= p.config.MaxClients {
		return "", nil, fmt.Errorf("%w (max %d)", ErrTooManyClients, p.config.MaxClients)
	}
	c := &subscriber{
		id: fmt.Sprintf("%s-%s", kind, uuid.NewString()),
		ch: make(chan Snapshot, p.config.ClientBuffer),
	}
	p.clients[c.id] = c
	n := p.clientCount.Add(1)
	monitoring.Logf("[overlay] client connected: %s (total: %d)", c.id, n)
	return c.id, c.ch, nil
}

// Unsubscribe removes a client and closes its channel. Unknown IDs are ignored.
func (p *Publisher) Unsubscribe(id string) {
	p.clientsMu.Lock()
	c, ok := p.clients[id]
	if ok {
		delete(p.clients, id)
		close(c.ch)
	}
	p.clientsMu.Unlock()

	if ok {
		n := p.clientCount.Add(-1)
		monitoring.Logf("[overlay] client disconnected: %s (remaining: %d)", id, n)
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Snapshots uint64 `json:"snapshots"`
	Dropped   uint64 `json:"dropped"`
	Clients   int32  `json:"clients"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Snapshots: p.seq.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   p.clientCount.Load(),
	}
}
