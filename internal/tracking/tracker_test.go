package tracking

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame = Frame{Width: 1000, Height: 1000}
)

func det(class string, x, y, w, h float64) Detection {
	return Detection{Class: class, Box: Rect{X: x, Y: y, Width: w, Height: h}, Confidence: 0.9}
}

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func TestDepthProxies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		box       Rect
		wantDepth float64
	}{
		{"tall box uses height", Rect{Width: 100, Height: 300}, 0.3},
		{"wide box uses width", Rect{Width: 400, Height: 200}, 0.4},
		{"square box uses width", Rect{Width: 250, Height: 250}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, depth := depthProxies(tt.box, frame)
			assert.InDelta(t, tt.wantDepth, depth, 1e-9)
		})
	}
}

func TestCuePosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		box   Rect
		wantX float64
		wantY float64
	}{
		{"centre", Rect{X: 400, Y: 400, Width: 200, Height: 200}, 0, 0},
		{"far left top", Rect{X: 0, Y: 0, Width: 0, Height: 0}, 1, 1},
		{"right quarter", Rect{X: 700, Y: 450, Width: 100, Height: 100}, -0.5, 0},
		{"left quarter", Rect{X: 200, Y: 200, Width: 100, Height: 100}, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := TrackedObject{Box: tt.box, Frame: frame, Depth: 0.42}
			pos := obj.CuePosition()
			assert.InDelta(t, tt.wantX, pos.X, 1e-9)
			assert.InDelta(t, tt.wantY, pos.Y, 1e-9)
			assert.InDelta(t, 0.42, pos.Z, 1e-9)
		})
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_FiltersAndDrops(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	res := tracker.Ingest([]Detection{
		det("person", 0.1, 0.1, 0.2, 0.2),
		det("car", 0.1, 0.1, math.NaN(), 0.2),
		det("cone", 0.1, 0.1, 0, 0.2),
		det("car", 0.1, 0.1, 0.2, 0.2),
	}, frame, t0)

	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, 1, res.Accepted)
	assert.Len(t, res.Created, 1)
	assert.Equal(t, 1, tracker.Len())

	res = tracker.Ingest([]Detection{det("car", 0.1, 0.1, 0.5, 0.5)}, Frame{}, t0)
	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, res.Created)
}

func TestIngest_CreatesEntryWithPixelBox(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	res := tracker.Ingest([]Detection{det("car", 0.2, 0.3, 0.1, 0.35)}, Frame{Width: 1280, Height: 720}, t0)
	require.Len(t, res.Created, 1)

	obj, ok := tracker.Get(res.Created[0])
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(obj.ID, "obj_"))
	assert.Equal(t, "car", obj.Class)
	assert.InDelta(t, 256, obj.Box.X, 1e-9)
	assert.InDelta(t, 216, obj.Box.Y, 1e-9)
	assert.InDelta(t, 128, obj.Box.Width, 1e-9)
	assert.InDelta(t, 252, obj.Box.Height, 1e-9)
	assert.InDelta(t, 0.1, obj.DepthWidth, 1e-9)
	assert.InDelta(t, 0.35, obj.DepthHeight, 1e-9)
	assert.InDelta(t, 0.35, obj.Depth, 1e-9)
	assert.Equal(t, t0, obj.FirstSeen)
	assert.Equal(t, t0, obj.LastSeen)
	assert.False(t, obj.Near)
	assert.False(t, obj.Far)
}

func TestIngest_IDStableAcrossAssociatedFrames(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	first := tracker.Ingest([]Detection{det("car", 0.1, 0.1, 0.2, 0.2)}, frame, t0)
	require.Len(t, first.Created, 1)
	id := first.Created[0]

	for i := 1; i <= 5; i++ {
		d := 0.2 + float64(i)*0.01
		res := tracker.Ingest([]Detection{det("car", 0.1, 0.1, d, d)}, frame, t0.Add(time.Duration(i)*time.Second))
		assert.Empty(t, res.Created)
		assert.Equal(t, []string{id}, res.Updated)
	}

	obj, ok := tracker.Get(id)
	require.True(t, ok)
	assert.Equal(t, t0, obj.FirstSeen)
	assert.Equal(t, t0.Add(5*time.Second), obj.LastSeen)
	assert.InDelta(t, 0.25, obj.Depth, 1e-9)
}

func TestIngest_ToleranceIsStrict(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	tracker.Ingest([]Detection{det("car", 0, 0, 0.25, 0.25)}, frame, t0)
	// dW = 0.15 exactly: not a match.
	res := tracker.Ingest([]Detection{det("car", 0, 0, 0.40, 0.25)}, frame, t0)
	assert.Len(t, res.Created, 1)
	assert.Equal(t, 2, tracker.Len())
}

func TestIngest_ClassIgnoredForAssociation(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	first := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0)
	second := tracker.Ingest([]Detection{det("truck", 0.5, 0.5, 0.32, 0.31)}, frame, t0.Add(time.Second))

	require.Len(t, first.Created, 1)
	assert.Equal(t, first.Created, second.Updated)
	obj, _ := tracker.Get(first.Created[0])
	assert.Equal(t, "truck", obj.Class)
}

func TestIngest_FirstMatchInCreationOrderWins(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	a := tracker.Ingest([]Detection{det("car", 0, 0, 0.30, 0.30)}, frame, t0).Created[0]
	tracker.Ingest([]Detection{det("car", 0, 0, 0.50, 0.50)}, frame, t0)
	c := tracker.Ingest([]Detection{det("car", 0, 0, 0.36, 0.36)}, frame, t0)
	require.Len(t, c.Created, 0, "0.36 is within tolerance of the first entry")
	assert.Equal(t, []string{a}, c.Updated)
}

func TestIngest_SamePassDetectionsDoNotMatchEachOther(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	res := tracker.Ingest([]Detection{
		det("cone", 0.1, 0.6, 0.1, 0.1),
		det("cone", 0.7, 0.6, 0.1, 0.1),
	}, frame, t0)
	assert.Len(t, res.Created, 2)
	assert.Equal(t, 2, tracker.Len())
}

func TestIngest_KeepsFlagsOnUpdate(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	id := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0).Created[0]
	require.True(t, tracker.Latch(id, hazard.Far))
	tracker.Ingest([]Detection{det("car", 0, 0, 0.35, 0.35)}, frame, t0.Add(time.Second))

	obj, _ := tracker.Get(id)
	assert.True(t, obj.Far)
	assert.False(t, obj.Near)
}

func TestIngest_LastSeenNonDecreasing(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	id := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0.Add(2*time.Second)).Created[0]
	tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0.Add(time.Second))

	obj, _ := tracker.Get(id)
	assert.Equal(t, t0.Add(2*time.Second), obj.LastSeen)
}

func TestIngest_UniqueIDs(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		// Identical boxes would associate, so start from an empty store.
		tracker.Reset()
		res := tracker.Ingest([]Detection{det("bus", 0, 0, 0.2, 0.2)}, frame, t0)
		require.Len(t, res.Created, 1)
		assert.False(t, seen[res.Created[0]], "duplicate id %s", res.Created[0])
		seen[res.Created[0]] = true
	}
}

// ---------------------------------------------------------------------------
// Eviction
// ---------------------------------------------------------------------------

func TestEvict_Boundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		evicted bool
	}{
		{"fresh", 0, false},
		{"just under", 7*time.Second - time.Millisecond, false},
		{"exactly stale", 7 * time.Second, true},
		{"well past", 30 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(DefaultTrackerConfig())
			tracker.Ingest([]Detection{det("stair", 0, 0, 0.2, 0.6)}, frame, t0)

			out := tracker.Evict(t0.Add(tt.elapsed))
			if tt.evicted {
				assert.Len(t, out, 1)
				assert.Equal(t, 0, tracker.Len())
			} else {
				assert.Empty(t, out)
				assert.Equal(t, 1, tracker.Len())
			}
		})
	}
}

func TestIngest_EvictsAtEndOfPass(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	old := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0).Created[0]
	res := tracker.Ingest(nil, frame, t0.Add(8*time.Second))

	require.Len(t, res.Evicted, 1)
	assert.Equal(t, old, res.Evicted[0].ID)
	_, ok := tracker.Get(old)
	assert.False(t, ok)
}

func TestEvict_ResetsFlagsForNewIdentity(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	id := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0).Created[0]
	tracker.Latch(id, hazard.Far)
	tracker.Evict(t0.Add(10 * time.Second))

	res := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0.Add(11*time.Second))
	require.Len(t, res.Created, 1)
	assert.NotEqual(t, id, res.Created[0])
	obj, _ := tracker.Get(res.Created[0])
	assert.False(t, obj.Far)
}

// ---------------------------------------------------------------------------
// Latch and snapshots
// ---------------------------------------------------------------------------

func TestLatch(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	id := tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3)}, frame, t0).Created[0]

	assert.True(t, tracker.Latch(id, hazard.Near))
	assert.False(t, tracker.Latch(id, hazard.Near))
	assert.True(t, tracker.Latch(id, hazard.Far))
	assert.False(t, tracker.Latch(id, hazard.Far))
	assert.False(t, tracker.Latch("obj_missing", hazard.Near))
	assert.False(t, tracker.Latch(id, hazard.State("bogus")))
}

func TestSnapshot_IsCopyInCreationOrder(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	a := tracker.Ingest([]Detection{det("car", 0, 0, 0.1, 0.1)}, frame, t0).Created[0]
	b := tracker.Ingest([]Detection{det("bus", 0, 0, 0.6, 0.6)}, frame, t0).Created[0]

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a, snap[0].ID)
	assert.Equal(t, b, snap[1].ID)

	snap[0].Near = true
	snap[0].Class = "mutated"
	again := tracker.Snapshot()
	if diff := cmp.Diff("car", again[0].Class); diff != "" {
		t.Errorf("snapshot aliasing (-want +got):\n%s", diff)
	}
	assert.False(t, again[0].Near)
}

func TestStats(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())

	tracker.Ingest([]Detection{det("car", 0, 0, 0.3, 0.3), det("dog", 0, 0, 0.1, 0.1)}, frame, t0)
	tracker.Ingest([]Detection{det("car", 0, 0, 0.31, 0.31)}, frame, t0.Add(time.Second))
	tracker.Evict(t0.Add(time.Minute))

	want := TrackerStats{Passes: 2, Created: 1, Associated: 1, Filtered: 1, Evicted: 1}
	if diff := cmp.Diff(want, tracker.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}
