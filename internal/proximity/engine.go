// Package proximity applies the per-class policy table to tracked objects
// and emits alert events on latched state transitions.
package proximity

import (
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/tracking"
)

// Store is the part of the tracker the engine needs.
type Store interface {
	Snapshot() []tracking.TrackedObject
	Latch(id string, state hazard.State) bool
}

// Decision is the outcome of evaluating one object against its policy.
// A zero State with Clear unset means nothing to do.
type Decision struct {
	State hazard.State
	Cue   *hazard.Cue
	Clear bool // class has no policy
}

// Fire reports whether the decision asks for an alert.
func (d Decision) Fire() bool { return d.Cue != nil }

// Engine evaluates tracked objects against the policy table.
type Engine struct {
	thresholds map[string]float64
}

// NewEngine returns an engine using the built-in thresholds, replaced per
// class by any entry in overrides.
func NewEngine(overrides map[string]float64) *Engine {
	th := make(map[string]float64, len(hazard.Policies))
	for class, p := range hazard.Policies {
		th[class] = p.Threshold
	}
	for class, v := range overrides {
		if _, ok := th[class]; ok {
			th[class] = v
		}
	}
	return &Engine{thresholds: th}
}

// Threshold returns the effective depth threshold for class.
func (e *Engine) Threshold(class string) (float64, bool) {
	v, ok := e.thresholds[class]
	return v, ok
}

// Decide picks at most one transition for obj given its current flags.
func (e *Engine) Decide(obj tracking.TrackedObject) Decision {
	p, ok := hazard.Lookup(obj.Class)
	if !ok {
		return Decision{Clear: true}
	}
	tau := e.thresholds[obj.Class]

	var state hazard.State
	switch p.Shape {
	case hazard.TwoSided:
		if obj.Depth < tau && !obj.Far {
			state = hazard.Far
		} else if obj.Depth >= tau && !obj.Near {
			state = hazard.Near
		}
	case hazard.NearOnly:
		if obj.Depth >= tau && !obj.Near {
			state = hazard.Near
		}
	case hazard.FarOnly:
		if obj.Depth < tau && !obj.Far {
			state = hazard.Far
		}
	}
	if state == "" {
		return Decision{}
	}
	return Decision{State: state, Cue: p.CueFor(state)}
}

// Pass is the result of one evaluation over the store.
type Pass struct {
	Events []alert.Event
	// Clear is set when an object's class has no policy; the wearable
	// should be sent the neutral command.
	Clear bool
}

// Evaluate runs Decide over every object in the store. An event is emitted
// only when Latch reports a transition, so each flag fires at most once per
// object identity.
func (e *Engine) Evaluate(store Store, now time.Time) []alert.Event {
	return e.EvaluatePass(store, now).Events
}

// EvaluatePass is Evaluate that also reports objects without a policy.
func (e *Engine) EvaluatePass(store Store, now time.Time) Pass {
	var pass Pass
	for _, obj := range store.Snapshot() {
		d := e.Decide(obj)
		if d.Clear {
			monitoring.Logf("[policy] no policy for class %q (%s), clearing", obj.Class, obj.ID)
			pass.Clear = true
			continue
		}
		if !d.Fire() {
			continue
		}
		if !store.Latch(obj.ID, d.State) {
			continue
		}
		pass.Events = append(pass.Events, alert.NewEvent(obj, d.State, *d.Cue, now))
	}
	return pass
}

// PolicyView is the effective policy for one class, for reporting.
type PolicyView struct {
	Class     string  `json:"class"`
	Shape     string  `json:"shape"`
	Threshold float64 `json:"threshold"`
	Default   float64 `json:"default_threshold"`
	FarCmd    string  `json:"far_command,omitempty"`
	FarCh     int     `json:"far_channel,omitempty"`
	NearCmd   string  `json:"near_command,omitempty"`
	NearCh    int     `json:"near_channel,omitempty"`
}

// Policies returns the effective policy table sorted by class.
func (e *Engine) Policies() []PolicyView {
	out := make([]PolicyView, 0, len(hazard.Policies))
	for _, class := range hazard.Classes() {
		p := hazard.Policies[class]
		v := PolicyView{
			Class:     class,
			Shape:     p.Shape.String(),
			Threshold: e.thresholds[class],
			Default:   p.Threshold,
		}
		if c := p.CueFor(hazard.Far); c != nil {
			v.FarCmd, v.FarCh = c.Command.String(), c.Channel
		}
		if c := p.CueFor(hazard.Near); c != nil {
			v.NearCmd, v.NearCh = c.Command.String(), c.Channel
		}
		out = append(out, v)
	}
	return out
}
