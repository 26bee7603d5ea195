package proximity

import (
	"testing"
	"time"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame = tracking.Frame{Width: 1000, Height: 1000}
)

// square returns a detection whose depth proxy equals size.
func square(class string, size float64) tracking.Detection {
	return tracking.Detection{Class: class, Box: tracking.Rect{X: 0.1, Y: 0.1, Width: size, Height: size}}
}

func TestDecide(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)

	tests := []struct {
		name      string
		obj       tracking.TrackedObject
		wantState hazard.State
		wantCmd   string
		wantCh    int
	}{
		{"two-sided far", tracking.TrackedObject{Class: hazard.Car, Depth: 0.35}, hazard.Far, "1,0,1#", 3},
		{"two-sided near", tracking.TrackedObject{Class: hazard.Car, Depth: 0.55, Far: true}, hazard.Near, "3,3,3#", 4},
		{"two-sided at threshold is near", tracking.TrackedObject{Class: hazard.Car, Depth: 0.4}, hazard.Near, "3,3,3#", 4},
		{"two-sided far latched", tracking.TrackedObject{Class: hazard.Car, Depth: 0.35, Far: true}, "", "", 0},
		{"two-sided both latched", tracking.TrackedObject{Class: hazard.Car, Depth: 0.9, Far: true, Near: true}, "", "", 0},
		{"near-only below", tracking.TrackedObject{Class: hazard.Cone, Depth: 0.1}, "", "", 0},
		{"near-only above", tracking.TrackedObject{Class: hazard.Cone, Depth: 0.35}, hazard.Near, "0,0,1#", 10},
		{"far-only below", tracking.TrackedObject{Class: hazard.Bus, Depth: 0.2}, hazard.Far, "1,0,0#", 7},
		{"far-only above", tracking.TrackedObject{Class: hazard.Bus, Depth: 0.6}, "", "", 0},
		{"abnormal bollard shares channel", tracking.TrackedObject{Class: hazard.BollardAbnormal, Depth: 0.5}, hazard.Near, "0,0,1#", 11},
		{"stair near", tracking.TrackedObject{Class: hazard.Stair, Depth: 0.7, Far: true}, hazard.Near, "0,0,2#", 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.obj)
			assert.False(t, d.Clear)
			assert.Equal(t, tt.wantState, d.State)
			if tt.wantCmd == "" {
				assert.False(t, d.Fire())
				return
			}
			require.True(t, d.Fire())
			assert.Equal(t, tt.wantCmd, d.Cue.Command.String())
			assert.Equal(t, tt.wantCh, d.Cue.Channel)
		})
	}
}

func TestDecide_UnknownClassClears(t *testing.T) {
	t.Parallel()
	d := NewEngine(nil).Decide(tracking.TrackedObject{Class: "person", Depth: 0.9})
	assert.True(t, d.Clear)
	assert.False(t, d.Fire())
}

type fixedStore struct {
	objects []tracking.TrackedObject
	latched map[string]hazard.State
}

func (s *fixedStore) Snapshot() []tracking.TrackedObject { return s.objects }

func (s *fixedStore) Latch(id string, state hazard.State) bool {
	if s.latched == nil {
		s.latched = make(map[string]hazard.State)
	}
	s.latched[id] = state
	return true
}

func TestEvaluatePass_UnknownClassClears(t *testing.T) {
	t.Parallel()
	store := &fixedStore{objects: []tracking.TrackedObject{
		{ID: "obj_person", Class: "person", Depth: 0.9},
		{ID: "obj_car", Class: hazard.Car, Depth: 0.3},
	}}

	pass := NewEngine(nil).EvaluatePass(store, t0)
	assert.True(t, pass.Clear)
	require.Len(t, pass.Events, 1)
	assert.Equal(t, "obj_car", pass.Events[0].ObjectID)
	assert.NotContains(t, store.latched, "obj_person")
}

func TestEvaluatePass_KnownClassesDoNotClear(t *testing.T) {
	t.Parallel()
	store := &fixedStore{objects: []tracking.TrackedObject{{ID: "obj_cone", Class: hazard.Cone, Depth: 0.1}}}
	pass := NewEngine(nil).EvaluatePass(store, t0)
	assert.False(t, pass.Clear)
	assert.Empty(t, pass.Events)
}

func TestNewEngine_Overrides(t *testing.T) {
	t.Parallel()
	e := NewEngine(map[string]float64{hazard.Car: 0.25, "person": 0.1})

	v, ok := e.Threshold(hazard.Car)
	require.True(t, ok)
	assert.Equal(t, 0.25, v)
	_, ok = e.Threshold("person")
	assert.False(t, ok)

	d := e.Decide(tracking.TrackedObject{Class: hazard.Car, Depth: 0.3})
	assert.Equal(t, hazard.Near, d.State)
}

// ---------------------------------------------------------------------------
// Scenarios against a live tracker
// ---------------------------------------------------------------------------

func TestEvaluate_CarApproaches(t *testing.T) {
	t.Parallel()
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	e := NewEngine(nil)

	tr.Ingest([]tracking.Detection{square(hazard.Car, 0.35)}, frame, t0)
	events := e.Evaluate(tr, t0)
	require.Len(t, events, 1)
	assert.Equal(t, hazard.Far, events[0].State)
	assert.Equal(t, "1,0,1#", events[0].Command.String())
	assert.Equal(t, 3, events[0].Channel)

	// Same tier again: nothing.
	tr.Ingest([]tracking.Detection{square(hazard.Car, 0.36)}, frame, t0.Add(time.Second))
	assert.Empty(t, e.Evaluate(tr, t0.Add(time.Second)))

	tr.Ingest([]tracking.Detection{square(hazard.Car, 0.45)}, frame, t0.Add(2*time.Second))
	events = e.Evaluate(tr, t0.Add(2*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, hazard.Near, events[0].State)
	assert.Equal(t, "3,3,3#", events[0].Command.String())
	assert.Equal(t, 4, events[0].Channel)

	tr.Ingest([]tracking.Detection{square(hazard.Car, 0.5)}, frame, t0.Add(3*time.Second))
	assert.Empty(t, e.Evaluate(tr, t0.Add(3*time.Second)))
}

func TestEvaluate_CarFirstSeenNear(t *testing.T) {
	t.Parallel()
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	e := NewEngine(nil)

	tr.Ingest([]tracking.Detection{square(hazard.Car, 0.6)}, frame, t0)
	events := e.Evaluate(tr, t0)
	require.Len(t, events, 1)
	assert.Equal(t, "3,3,3#", events[0].Command.String())

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Near)
	assert.False(t, snap[0].Far)
}

func TestEvaluate_ConeAlertsOnce(t *testing.T) {
	t.Parallel()
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	e := NewEngine(nil)

	var all int
	for i, size := range []float64{0.2, 0.32, 0.35, 0.38, 0.4} {
		now := t0.Add(time.Duration(i) * time.Second)
		tr.Ingest([]tracking.Detection{square(hazard.Cone, size)}, frame, now)
		events := e.Evaluate(tr, now)
		for _, ev := range events {
			assert.Equal(t, "0,0,1#", ev.Command.String())
			assert.Equal(t, 10, ev.Channel)
		}
		all += len(events)
	}
	assert.Equal(t, 1, all)
}

func TestEvaluate_BusOnlyFar(t *testing.T) {
	t.Parallel()
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	e := NewEngine(nil)

	tr.Ingest([]tracking.Detection{square(hazard.Bus, 0.4)}, frame, t0)
	require.Len(t, e.Evaluate(tr, t0), 1)

	tr.Ingest([]tracking.Detection{square(hazard.Bus, 0.52)}, frame, t0.Add(time.Second))
	assert.Empty(t, e.Evaluate(tr, t0.Add(time.Second)))
}

func TestEvaluate_NewIdentityAfterEvictionAlertsAgain(t *testing.T) {
	t.Parallel()
	tr := tracking.NewTracker(tracking.DefaultTrackerConfig())
	e := NewEngine(nil)

	tr.Ingest([]tracking.Detection{square(hazard.Cone, 0.35)}, frame, t0)
	require.Len(t, e.Evaluate(tr, t0), 1)

	res := tr.Ingest(nil, frame, t0.Add(8*time.Second))
	require.Len(t, res.Evicted, 1)

	later := t0.Add(9 * time.Second)
	tr.Ingest([]tracking.Detection{square(hazard.Cone, 0.35)}, frame, later)
	assert.Len(t, e.Evaluate(tr, later), 1)
}

func TestPolicies(t *testing.T) {
	t.Parallel()
	views := NewEngine(map[string]float64{hazard.Stair: 0.6}).Policies()
	require.Len(t, views, len(hazard.Policies))

	byClass := make(map[string]PolicyView)
	for _, v := range views {
		byClass[v.Class] = v
	}
	assert.Equal(t, 0.6, byClass[hazard.Stair].Threshold)
	assert.Equal(t, 0.5, byClass[hazard.Stair].Default)
	assert.Equal(t, "far-only", byClass[hazard.Bus].Shape)
	assert.Empty(t, byClass[hazard.Bus].NearCmd)
	assert.Empty(t, byClass[hazard.Cone].FarCmd)
	assert.Equal(t, 10, byClass[hazard.Cone].NearCh)
}
