package tracking

import (
	"math"
	"time"
)

// Rect is an axis-aligned rectangle. Detections carry it in normalized
// [0,1] image coordinates; tracked objects carry it in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MidX returns the horizontal centre.
func (r Rect) MidX() float64 { return r.X + r.Width/2 }

// MidY returns the vertical centre.
func (r Rect) MidY() float64 { return r.Y + r.Height/2 }

func (r Rect) finite() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Frame is the pixel geometry of the buffer a set of detections was
// computed on.
type Frame struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the geometry can be used for pixel conversion.
func (f Frame) Valid() bool { return f.Width > 0 && f.Height > 0 }

// Denormalize converts a normalized rectangle to pixel coordinates.
func (f Frame) Denormalize(r Rect) Rect {
	w, h := float64(f.Width), float64(f.Height)
	return Rect{X: r.X * w, Y: r.Y * h, Width: r.Width * w, Height: r.Height * h}
}

// Detection is one raw classifier output for a frame.
type Detection struct {
	Class      string  `json:"label"`
	Box        Rect    `json:"box"` // normalized
	Confidence float64 `json:"confidence"`
}

// Position is a spatial audio source position. X and Y are mirrored offsets
// from the frame centre in [-1,1]; Z is the depth proxy.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TrackedObject is one persistent hazard identity.
type TrackedObject struct {
	ID    string `json:"id"`
	Class string `json:"class"`

	Box   Rect  `json:"box"` // pixels
	Frame Frame `json:"frame"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Depth proxies: box size relative to frame size, larger is closer.
	DepthWidth  float64 `json:"depth_width"`
	DepthHeight float64 `json:"depth_height"`
	Depth       float64 `json:"depth"`

	// Latched proximity flags. Once set they stay set until the object is
	// evicted.
	Near bool `json:"near"`
	Far  bool `json:"far"`
}

// mirror maps a [0,1] centre ratio to a signed offset: the right/lower half
// becomes negative, the left/upper half positive.
func mirror(mid float64) float64 {
	if mid > 0.5 {
		return -(mid - 0.5) / 0.5
	}
	return (0.5 - mid) / 0.5
}

// CuePosition returns where the spatial audio cue for this object is played.
func (o TrackedObject) CuePosition() Position {
	var x, y float64
	if o.Frame.Valid() {
		x = mirror(o.Box.MidX() / float64(o.Frame.Width))
		y = mirror(o.Box.MidY() / float64(o.Frame.Height))
	}
	return Position{X: x, Y: y, Z: o.Depth}
}

// depthProxies computes the width and height ratios and picks the one
// along the longer side of the box.
func depthProxies(box Rect, frame Frame) (dw, dh, depth float64) {
	dw = box.Width / float64(frame.Width)
	dh = box.Height / float64(frame.Height)
	if box.Height > box.Width {
		return dw, dh, dh
	}
	return dw, dh, dw
}
