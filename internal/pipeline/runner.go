// Package pipeline runs detection frames through the tracker, the policy
// engine and the dispatcher on a single consumer goroutine.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/detection"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/proximity"
	"github.com/banshee-data/walkpal/internal/timeutil"
	"github.com/banshee-data/walkpal/internal/tracking"
)

var ErrQueueClosed = errors.New("pipeline queue closed")

const journalTimeout = 2 * time.Second

// Journal persists alerts and object lifecycles. Errors are logged and
// counted by the runner, never propagated.
type Journal interface {
	UpsertObject(ctx context.Context, obj tracking.TrackedObject) error
	MarkEvicted(ctx context.Context, obj tracking.TrackedObject, at time.Time) error
	RecordAlert(ctx context.Context, ev alert.Event) error
}

// Publisher receives the tracker state after every pass.
type Publisher interface {
	Publish(at time.Time, objects []tracking.TrackedObject, events []alert.Event)
}

// Config holds runner parameters.
type Config struct {
	QueueCapacity int
	ClearOnEmpty  bool
	StatsInterval time.Duration // 0 disables periodic stats logging
}

// ConfigFromTuning builds a Config from tuning values.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		QueueCapacity: cfg.GetQueueCapacity(),
		ClearOnEmpty:  cfg.GetClearOnEmpty(),
		StatsInterval: time.Minute,
	}
}

// PassResult describes one processed frame.
type PassResult struct {
	At      time.Time
	Ingest  tracking.IngestResult
	Events  []alert.Event
	Cleared bool
}

// Stats are cumulative runner counters.
type Stats struct {
	Submitted     int64                 `json:"submitted"`
	Dropped       int64                 `json:"dropped"`
	Processed     int64                 `json:"processed"`
	Events        int64                 `json:"events"`
	Clears        int64                 `json:"clears"`
	JournalErrors int64                 `json:"journal_errors"`
	QueueDepth    int                   `json:"queue_depth"`
	Tracker       tracking.TrackerStats `json:"tracker"`
	Dispatch      alert.DispatchStats   `json:"dispatch"`
}

// Runner owns the tracker. Frames enter through Submit from any goroutine
// and are processed one at a time by Run.
type Runner struct {
	cfg        Config
	tracker    *tracking.Tracker
	engine     *proximity.Engine
	dispatcher *alert.Dispatcher
	clock      timeutil.Clock

	journal   Journal
	publisher Publisher

	queue     chan detection.FrameResult
	done      chan struct{}
	closeOnce sync.Once

	passMu sync.Mutex // serialises Run and direct ProcessFrame callers

	submitted     atomic.Int64
	dropped       atomic.Int64
	processed     atomic.Int64
	events        atomic.Int64
	clears        atomic.Int64
	journalErrors atomic.Int64
}

// Option configures optional collaborators.
type Option func(*Runner)

// WithJournal records alerts and lifecycles in j.
func WithJournal(j Journal) Option { return func(r *Runner) { r.journal = j } }

// WithPublisher publishes tracker state to p after every pass.
func WithPublisher(p Publisher) Option { return func(r *Runner) { r.publisher = p } }

// WithClock overrides the clock used for frames without a timestamp.
func WithClock(c timeutil.Clock) Option { return func(r *Runner) { r.clock = c } }

// NewRunner wires a runner around its collaborators.
func NewRunner(cfg Config, tracker *tracking.Tracker, engine *proximity.Engine, dispatcher *alert.Dispatcher, opts ...Option) *Runner {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1
	}
	r := &Runner{
		cfg:        cfg,
		tracker:    tracker,
		engine:     engine,
		dispatcher: dispatcher,
		clock:      timeutil.RealClock{},
		queue:      make(chan detection.FrameResult, cfg.QueueCapacity),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Tracker returns the owned tracker for read-only snapshot access.
func (r *Runner) Tracker() *tracking.Tracker { return r.tracker }

// Engine returns the policy engine.
func (r *Runner) Engine() *proximity.Engine { return r.engine }

// Submit enqueues fr without blocking. It returns false if the queue is full
// or the runner is closed; the frame is then dropped.
func (r *Runner) Submit(fr detection.FrameResult) bool {
	select {
	case <-r.done:
		r.dropped.Add(1)
		return false
	default:
	}
	select {
	case r.queue <- fr:
		r.submitted.Add(1)
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Close stops accepting frames. Run returns ErrQueueClosed once the
// remaining queue is drained.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Run consumes frames until ctx is done or the runner is closed.
func (r *Runner) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.cfg.StatsInterval > 0 {
		ticker := r.clock.NewTicker(r.cfg.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fr := <-r.queue:
			r.ProcessFrame(fr)
		case <-tick:
			r.logStats()
		case <-r.done:
			for {
				select {
				case fr := <-r.queue:
					r.ProcessFrame(fr)
				default:
					return ErrQueueClosed
				}
			}
		}
	}
}

// ProcessFrame runs one full pass synchronously: ingest and evict, policy,
// dispatch, then journal and publish.
func (r *Runner) ProcessFrame(fr detection.FrameResult) PassResult {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	now := fr.At
	if now.IsZero() {
		now = r.clock.Now()
	}

	res := PassResult{At: now}
	res.Ingest = r.tracker.Ingest(fr.Detections, fr.Frame, now)
	pass := r.engine.EvaluatePass(r.tracker, now)
	res.Events = pass.Events

	for _, ev := range res.Events {
		r.dispatcher.Dispatch(ev)
	}
	if pass.Clear || (r.cfg.ClearOnEmpty && res.Ingest.Accepted == 0) {
		r.dispatcher.Clear()
		res.Cleared = true
		r.clears.Add(1)
	}

	r.processed.Add(1)
	r.events.Add(int64(len(res.Events)))

	if r.journal != nil {
		r.writeJournal(res)
	}
	if r.publisher != nil {
		r.publisher.Publish(now, r.tracker.Snapshot(), res.Events)
	}
	return res
}

func (r *Runner) writeJournal(res PassResult) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	touched := make([]string, 0, len(res.Ingest.Created)+len(res.Ingest.Updated))
	touched = append(touched, res.Ingest.Created...)
	touched = append(touched, res.Ingest.Updated...)
	for _, id := range touched {
		obj, ok := r.tracker.Get(id)
		if !ok {
			continue
		}
		r.journalErr(r.journal.UpsertObject(ctx, obj))
	}
	for _, ev := range res.Events {
		r.journalErr(r.journal.RecordAlert(ctx, ev))
	}
	for _, obj := range res.Ingest.Evicted {
		r.journalErr(r.journal.MarkEvicted(ctx, obj, res.At))
	}
}

func (r *Runner) journalErr(err error) {
	if err == nil {
		return
	}
	if r.journalErrors.Add(1)%100 == 1 {
		monitoring.Logf("[pipeline] journal write failed: %v", err)
	}
}

// Stats returns the cumulative counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Submitted:     r.submitted.Load(),
		Dropped:       r.dropped.Load(),
		Processed:     r.processed.Load(),
		Events:        r.events.Load(),
		Clears:        r.clears.Load(),
		JournalErrors: r.journalErrors.Load(),
		QueueDepth:    len(r.queue),
		Tracker:       r.tracker.Stats(),
		Dispatch:      r.dispatcher.Stats(),
	}
}

func (r *Runner) logStats() {
	s := r.Stats()
	monitoring.Logf("[pipeline] processed=%d dropped=%d events=%d clears=%d active=%d transport_errors=%d",
		s.Processed, s.Dropped, s.Events, s.Clears, s.Tracker.Active, s.Dispatch.TransportErrors)
}
