package tracking

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/google/uuid"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	StaleAfter           time.Duration // Entries unseen for this long are evicted
	AssociationTolerance float64       // Max per-axis depth-proxy delta for a match (strict)
}

// DefaultTrackerConfig returns the built-in tracker parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.EmptyTuningConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from tuning values.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		StaleAfter:           cfg.GetStaleAfter(),
		AssociationTolerance: cfg.GetAssociationTolerance(),
	}
}

// IngestResult describes what a single Ingest pass did.
type IngestResult struct {
	Accepted int             // detections that passed the allow-list and geometry checks
	Filtered int             // detections with a non-hazard class
	Dropped  int             // malformed detections (bad geometry, non-finite box)
	Created  []string        // IDs of entries created this pass
	Updated  []string        // IDs of entries associated this pass
	Evicted  []TrackedObject // entries removed by the end-of-pass eviction
}

// TrackerStats are cumulative counters since construction or Reset.
type TrackerStats struct {
	Passes     int64 `json:"passes"`
	Created    int64 `json:"created"`
	Associated int64 `json:"associated"`
	Filtered   int64 `json:"filtered"`
	Dropped    int64 `json:"dropped"`
	Evicted    int64 `json:"evicted"`
	Active     int   `json:"active"`
}

// Tracker owns the set of tracked hazard objects.
type Tracker struct {
	config TrackerConfig

	objects map[string]*TrackedObject
	order   []string // creation order, used for association and snapshots
	stats   TrackerStats

	mu sync.RWMutex
}

// NewTracker creates a new tracker with the provided configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		config:  cfg,
		objects: make(map[string]*TrackedObject),
	}
}

// Config returns the active configuration.
func (t *Tracker) Config() TrackerConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// Reset drops all entries and counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects = make(map[string]*TrackedObject)
	t.order = nil
	t.stats = TrackerStats{}
}

// Ingest applies one frame's detections to the store and then evicts stale
// entries. Detections are associated only with entries that existed before
// this pass, scanned in creation order; the first match wins.
func (t *Tracker) Ingest(dets []Detection, frame Frame, now time.Time) IngestResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res IngestResult
	t.stats.Passes++

	existing := len(t.order)
	for _, d := range dets {
		if !hazard.IsHazard(d.Class) {
			res.Filtered++
			continue
		}
		if !frame.Valid() || !d.Box.finite() || d.Box.Width <= 0 || d.Box.Height <= 0 {
			res.Dropped++
			continue
		}
		res.Accepted++

		box := frame.Denormalize(d.Box)
		dw, dh, depth := depthProxies(box, frame)

		if obj := t.associate(dw, dh, existing); obj != nil {
			obj.Class = d.Class
			obj.Box = box
			obj.Frame = frame
			if now.After(obj.LastSeen) {
				obj.LastSeen = now
			}
			obj.DepthWidth, obj.DepthHeight, obj.Depth = dw, dh, depth
			res.Updated = append(res.Updated, obj.ID)
			t.stats.Associated++
			continue
		}

		obj := &TrackedObject{
			ID:          fmt.Sprintf("obj_%s", uuid.NewString()),
			Class:       d.Class,
			Box:         box,
			Frame:       frame,
			FirstSeen:   now,
			LastSeen:    now,
			DepthWidth:  dw,
			DepthHeight: dh,
			Depth:       depth,
		}
		t.objects[obj.ID] = obj
		t.order = append(t.order, obj.ID)
		res.Created = append(res.Created, obj.ID)
		t.stats.Created++
	}

	t.stats.Filtered += int64(res.Filtered)
	t.stats.Dropped += int64(res.Dropped)
	if res.Dropped > 0 {
		monitoring.Logf("[tracker] dropped %d malformed detection(s) (frame %dx%d)", res.Dropped, frame.Width, frame.Height)
	}

	res.Evicted = t.evictLocked(now)
	return res
}

// associate returns the first of the first n entries whose depth proxies are
// both strictly within tolerance, or nil.
func (t *Tracker) associate(dw, dh float64, n int) *TrackedObject {
	tol := t.config.AssociationTolerance
	for _, id := range t.order[:n] {
		obj := t.objects[id]
		if math.Abs(obj.DepthWidth-dw) < tol && math.Abs(obj.DepthHeight-dh) < tol {
			return obj
		}
	}
	return nil
}

// Evict removes entries with now - LastSeen >= StaleAfter and returns copies
// of them in creation order.
func (t *Tracker) Evict(now time.Time) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(now)
}

func (t *Tracker) evictLocked(now time.Time) []TrackedObject {
	var evicted []TrackedObject
	kept := t.order[:0]
	for _, id := range t.order {
		obj := t.objects[id]
		if now.Sub(obj.LastSeen) >= t.config.StaleAfter {
			evicted = append(evicted, *obj)
			delete(t.objects, id)
			continue
		}
		kept = append(kept, id)
	}
	// Clear the tail so removed IDs are not retained by the backing array.
	for i := len(kept); i < len(t.order); i++ {
		t.order[i] = ""
	}
	t.order = kept
	t.stats.Evicted += int64(len(evicted))
	return evicted
}

// Snapshot returns value copies of all entries in creation order.
func (t *Tracker) Snapshot() []TrackedObject {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TrackedObject, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.objects[id])
	}
	return out
}

// Get returns a copy of the entry with the given ID.
func (t *Tracker) Get(id string) (TrackedObject, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.objects[id]
	if !ok {
		return TrackedObject{}, false
	}
	return *obj, true
}

// Len returns the number of live entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Latch sets the flag for state on the entry and reports whether it changed.
// It returns false if the flag was already set or the entry is gone.
func (t *Tracker) Latch(id string, state hazard.State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.objects[id]
	if !ok {
		return false
	}
	switch state {
	case hazard.Near:
		if obj.Near {
			return false
		}
		obj.Near = true
	case hazard.Far:
		if obj.Far {
			return false
		}
		obj.Far = true
	default:
		return false
	}
	return true
}

// Stats returns the cumulative counters.
func (t *Tracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.stats
	s.Active = len(t.order)
	return s
}
