package hazard

import "sort"

// Class names as emitted by the classifiers.
const (
	Bicycle         = "bicycle"
	Bus             = "bus"
	Car             = "car"
	Truck           = "truck"
	Motorcycle      = "motorcycle"
	Cone            = "cone"
	BollardNormal   = "bollard_normal"
	BollardAbnormal = "bollard_abnormal"
	FireHydrant     = "fire_hydrant"
	BusDoorFront    = "bus_door_front"
	BusDoorBack     = "bus_door_back"
	BusStop         = "bus_stop"
	Crosswalk       = "crosswalk"
	Stair           = "stair"
)

// State is a proximity state of a tracked object.
type State string

const (
	Near State = "near"
	Far  State = "far"
)

// Shape selects which proximity states a class can alert on.
type Shape int

const (
	TwoSided Shape = iota // alerts once when far and once when near
	NearOnly              // alerts only once close
	FarOnly               // alerts only while still far
)

func (s Shape) String() string {
	switch s {
	case TwoSided:
		return "two-sided"
	case NearOnly:
		return "near-only"
	case FarOnly:
		return "far-only"
	default:
		return "unknown"
	}
}

// Cue is what the wearable and the audio renderer receive for one
// class/state combination.
type Cue struct {
	Command Command
	Channel int    // spatial audio channel, 1..NumChannels
	Sound   string // cue file loaded by the audio renderer for Channel
}

// Policy is the proximity rule for one class. Depth values below Threshold
// are far, values at or above it are near.
type Policy struct {
	Class     string
	Shape     Shape
	Threshold float64
	FarCue    *Cue
	NearCue   *Cue
}

// CueFor returns the cue for the given state, or nil when the shape never
// alerts on that state.
func (p Policy) CueFor(s State) *Cue {
	switch s {
	case Near:
		if p.Shape == FarOnly {
			return nil
		}
		return p.NearCue
	case Far:
		if p.Shape == NearOnly {
			return nil
		}
		return p.FarCue
	}
	return nil
}

// NumChannels is the number of pre-loaded spatial audio cues.
const NumChannels = 20

func cue(a, b, c, channel int, sound string) *Cue {
	return &Cue{Command: Command{A: a, B: b, C: c}, Channel: channel, Sound: sound}
}

// Policies is the hand-tuned policy table. Depth is a monocular size proxy,
// so every class has its own crossing point.
var Policies = map[string]Policy{
	Bicycle:    {Class: Bicycle, Shape: TwoSided, Threshold: 0.3, FarCue: cue(1, 0, 0, 1, "1_bicycle_F"), NearCue: cue(3, 1, 3, 2, "1_bicycle_A")},
	Car:        {Class: Car, Shape: TwoSided, Threshold: 0.4, FarCue: cue(1, 0, 1, 3, "1_vehicle_F"), NearCue: cue(3, 3, 3, 4, "1_vehicle_A")},
	Motorcycle: {Class: Motorcycle, Shape: TwoSided, Threshold: 0.5, FarCue: cue(1, 0, 0, 5, "1_motorcycle_F"), NearCue: cue(3, 1, 3, 6, "1_motorcycle_A")},
	Bus:        {Class: Bus, Shape: FarOnly, Threshold: 0.5, FarCue: cue(1, 0, 0, 7, "8_bus_F")},
	Truck:      {Class: Truck, Shape: TwoSided, Threshold: 0.5, FarCue: cue(1, 0, 0, 8, "1_largevehicle_F"), NearCue: cue(3, 0, 3, 9, "1_largevehicle_A")},

	Cone:            {Class: Cone, Shape: NearOnly, Threshold: 0.3, NearCue: cue(0, 0, 1, 10, "2_cone_A")},
	BollardNormal:   {Class: BollardNormal, Shape: NearOnly, Threshold: 0.3, NearCue: cue(0, 0, 1, 11, "2_bollard_A")},
	BollardAbnormal: {Class: BollardAbnormal, Shape: NearOnly, Threshold: 0.3, NearCue: cue(0, 0, 1, 11, "2_bollard_A")},
	FireHydrant:     {Class: FireHydrant, Shape: NearOnly, Threshold: 0.3, NearCue: cue(0, 0, 1, 12, "2_firehydrant_A")},

	BusDoorFront: {Class: BusDoorFront, Shape: NearOnly, Threshold: 0.4, NearCue: cue(0, 0, 1, 13, "8_busfrontdoor_A")},
	BusDoorBack:  {Class: BusDoorBack, Shape: NearOnly, Threshold: 0.4, NearCue: cue(0, 0, 1, 14, "8_busbackdoor_A")},
	BusStop:      {Class: BusStop, Shape: TwoSided, Threshold: 0.5, FarCue: cue(0, 0, 1, 15, "7_busstation_F"), NearCue: cue(0, 0, 2, 16, "7_busstation_A")},
	Crosswalk:    {Class: Crosswalk, Shape: TwoSided, Threshold: 0.5, FarCue: cue(0, 0, 1, 17, "3_crosswalk_F"), NearCue: cue(0, 0, 2, 18, "3_crosswalk_A")},
	Stair:        {Class: Stair, Shape: TwoSided, Threshold: 0.5, FarCue: cue(0, 0, 1, 19, "4_stairs_F"), NearCue: cue(0, 0, 2, 20, "4_stairs_A")},
}

// IsHazard reports whether class is on the tracking allow-list.
func IsHazard(class string) bool {
	_, ok := Policies[class]
	return ok
}

// Lookup returns the policy for class.
func Lookup(class string) (Policy, bool) {
	p, ok := Policies[class]
	return p, ok
}

// Classes returns the allow-listed class names in sorted order.
func Classes() []string {
	out := make([]string, 0, len(Policies))
	for c := range Policies {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SoundForChannel returns the cue file name for an audio channel, or "" if
// the channel is unused.
func SoundForChannel(channel int) string {
	for _, p := range Policies {
		for _, c := range []*Cue{p.FarCue, p.NearCue} {
			if c != nil && c.Channel == channel {
				return c.Sound
			}
		}
	}
	return ""
}
