package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/detection"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/proximity"
	"github.com/banshee-data/walkpal/internal/timeutil"
	"github.com/banshee-data/walkpal/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame = tracking.Frame{Width: 1000, Height: 1000}
)

type fakeJournal struct {
	mu      sync.Mutex
	upserts []tracking.TrackedObject
	evicted []string
	alerts  []alert.Event
	err     error
}

func (j *fakeJournal) UpsertObject(_ context.Context, obj tracking.TrackedObject) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.upserts = append(j.upserts, obj)
	return j.err
}

func (j *fakeJournal) MarkEvicted(_ context.Context, obj tracking.TrackedObject, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.evicted = append(j.evicted, obj.ID)
	return j.err
}

func (j *fakeJournal) RecordAlert(_ context.Context, ev alert.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.alerts = append(j.alerts, ev)
	return j.err
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	last  []tracking.TrackedObject
}

func (p *fakePublisher) Publish(_ time.Time, objects []tracking.TrackedObject, _ []alert.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = objects
}

func newTestRunner(t *testing.T, capacity int, opts ...Option) (*Runner, *alert.Recorder) {
	t.Helper()
	rec := alert.NewRecorder()
	cfg := ConfigFromTuning(config.EmptyTuningConfig())
	cfg.QueueCapacity = capacity
	cfg.StatsInterval = 0
	r := NewRunner(cfg,
		tracking.NewTracker(tracking.DefaultTrackerConfig()),
		proximity.NewEngine(nil),
		alert.NewDispatcher(rec, rec),
		opts...)
	return r, rec
}

func frameAt(at time.Time, dets ...tracking.Detection) detection.FrameResult {
	return detection.FrameResult{Source: "test", At: at, Frame: frame, Detections: dets}
}

func square(class string, size float64) tracking.Detection {
	return tracking.Detection{Class: class, Box: tracking.Rect{X: 0.3, Y: 0.3, Width: size, Height: size}, Confidence: 0.9}
}

func commandStrings(cmds []hazard.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestProcessFrame_CarFar(t *testing.T) {
	t.Parallel()
	r, rec := newTestRunner(t, 4)

	res := r.ProcessFrame(frameAt(t0, square(hazard.Car, 0.35)))

	require.Len(t, res.Events, 1)
	assert.False(t, res.Cleared)
	assert.Equal(t, []string{"1,0,1#"}, commandStrings(rec.Commands()))
	require.Len(t, rec.Cues(), 1)
	assert.Equal(t, 3, rec.Cues()[0].Channel)
}

func TestProcessFrame_CarNear(t *testing.T) {
	t.Parallel()
	r, rec := newTestRunner(t, 4)

	r.ProcessFrame(frameAt(t0, square(hazard.Car, 0.35)))
	r.ProcessFrame(frameAt(t0.Add(time.Second), square(hazard.Car, 0.45)))
	r.ProcessFrame(frameAt(t0.Add(2*time.Second), square(hazard.Car, 0.47)))

	assert.Equal(t, []string{"1,0,1#", "3,3,3#"}, commandStrings(rec.Commands()))
	cues := rec.Cues()
	require.Len(t, cues, 2)
	assert.Equal(t, 4, cues[1].Channel)
}

func TestProcessFrame_ConeOnce(t *testing.T) {
	t.Parallel()
	r, rec := newTestRunner(t, 4)

	for i, size := range []float64{0.31, 0.33, 0.35, 0.36} {
		r.ProcessFrame(frameAt(t0.Add(time.Duration(i)*time.Second), square(hazard.Cone, size)))
	}
	assert.Equal(t, []string{"0,0,1#"}, commandStrings(rec.Commands()))
	require.Len(t, rec.Cues(), 1)
	assert.Equal(t, 10, rec.Cues()[0].Channel)
}

func TestProcessFrame_EmptyPassSendsExactlyOneClear(t *testing.T) {
	t.Parallel()
	r, rec := newTestRunner(t, 4)

	res := r.ProcessFrame(frameAt(t0))
	assert.True(t, res.Cleared)
	assert.Equal(t, []string{"0,0,0#"}, commandStrings(rec.Commands()))
	assert.Empty(t, rec.Cues())

	// Only non-hazard classes also count as empty.
	rec.Reset()
	r.ProcessFrame(frameAt(t0.Add(time.Second), square("person", 0.5), square("dog", 0.2)))
	assert.Equal(t, []string{"0,0,0#"}, commandStrings(rec.Commands()))
}

func TestProcessFrame_ClearDisabled(t *testing.T) {
	t.Parallel()
	rec := alert.NewRecorder()
	r := NewRunner(Config{QueueCapacity: 1},
		tracking.NewTracker(tracking.DefaultTrackerConfig()),
		proximity.NewEngine(nil),
		alert.NewDispatcher(rec, rec))

	res := r.ProcessFrame(frameAt(t0))
	assert.False(t, res.Cleared)
	assert.Empty(t, rec.Commands())
}

func TestProcessFrame_EvictsStaleEntries(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner(t, 4)

	r.ProcessFrame(frameAt(t0, square(hazard.Bus, 0.2)))
	res := r.ProcessFrame(frameAt(t0.Add(6 * time.Second)))
	assert.Empty(t, res.Ingest.Evicted)
	assert.Equal(t, 1, r.Tracker().Len())

	res = r.ProcessFrame(frameAt(t0.Add(7 * time.Second)))
	assert.Len(t, res.Ingest.Evicted, 1)
	assert.Equal(t, 0, r.Tracker().Len())
}

func TestProcessFrame_UsesClockWithoutTimestamp(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(t0.Add(time.Hour))
	r, _ := newTestRunner(t, 4, WithClock(clock))

	res := r.ProcessFrame(frameAt(time.Time{}, square(hazard.Stair, 0.2)))
	assert.Equal(t, t0.Add(time.Hour), res.At)
	snap := r.Tracker().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, t0.Add(time.Hour), snap[0].FirstSeen)
}

func TestProcessFrame_JournalAndPublisher(t *testing.T) {
	t.Parallel()
	j := &fakeJournal{}
	p := &fakePublisher{}
	r, _ := newTestRunner(t, 4, WithJournal(j), WithPublisher(p))

	r.ProcessFrame(frameAt(t0, square(hazard.Car, 0.35)))
	r.ProcessFrame(frameAt(t0.Add(10 * time.Second)))

	require.Len(t, j.upserts, 1)
	assert.True(t, j.upserts[0].Far, "upsert happens after latching")
	require.Len(t, j.alerts, 1)
	assert.Equal(t, hazard.Far, j.alerts[0].State)
	assert.Equal(t, []string{j.upserts[0].ID}, j.evicted)

	assert.Equal(t, 2, p.calls)
	assert.Empty(t, p.last)
}

func TestProcessFrame_JournalErrorsCounted(t *testing.T) {
	t.Parallel()
	j := &fakeJournal{err: errors.New("disk full")}
	r, rec := newTestRunner(t, 4, WithJournal(j))

	r.ProcessFrame(frameAt(t0, square(hazard.Car, 0.35)))

	assert.EqualValues(t, 2, r.Stats().JournalErrors)
	assert.Len(t, rec.Commands(), 1, "journal failure must not block dispatch")
}

// ---------------------------------------------------------------------------
// Queue and consumer
// ---------------------------------------------------------------------------

func TestSubmit_DropsWhenFull(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner(t, 2)

	assert.True(t, r.Submit(frameAt(t0)))
	assert.True(t, r.Submit(frameAt(t0)))
	assert.False(t, r.Submit(frameAt(t0)))

	s := r.Stats()
	assert.EqualValues(t, 2, s.Submitted)
	assert.EqualValues(t, 1, s.Dropped)
	assert.Equal(t, 2, s.QueueDepth)
}

func TestRun_ProcessesSubmittedFrames(t *testing.T) {
	t.Parallel()
	r, rec := newTestRunner(t, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Submit(frameAt(t0))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return r.Stats().Processed == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, rec.Commands(), 4)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestClose_DrainsAndStops(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner(t, 4)

	require.True(t, r.Submit(frameAt(t0, square(hazard.Car, 0.35))))
	require.True(t, r.Submit(frameAt(t0.Add(time.Second))))
	r.Close()
	r.Close()

	assert.False(t, r.Submit(frameAt(t0)))
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.EqualValues(t, 2, r.Stats().Processed)
}

func TestRun_LogsStatsOnTick(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	clock := timeutil.NewMockClock(t0)
	rec := alert.NewRecorder()
	r := NewRunner(Config{QueueCapacity: 1, StatsInterval: time.Minute},
		tracking.NewTracker(tracking.DefaultTrackerConfig()),
		proximity.NewEngine(nil),
		alert.NewDispatcher(rec, rec),
		WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	assert.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		mu.Lock()
		defer mu.Unlock()
		for _, l := range lines {
			if strings.HasPrefix(l, "[pipeline] processed=") {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}
