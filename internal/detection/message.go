// Package detection receives per-frame classifier output from the external
// perception process and turns it into FrameResults for the pipeline.
//
// The wire format is one JSON object per UDP datagram:
//
//	{"source":"obs","ts":1700000000.25,"width":1280,"height":720,
//	 "detections":[{"label":"car","box":[0.1,0.2,0.3,0.4],"confidence":0.91}]}
//
// Boxes are normalized [x, y, w, h]. A missing or zero ts means "now".
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/walkpal/internal/tracking"
)

var ErrMalformedMessage = errors.New("malformed detection message")

// FrameResult is one classifier completion.
type FrameResult struct {
	Source     string
	At         time.Time // zero when the sender gave no timestamp
	Frame      tracking.Frame
	Detections []tracking.Detection
}

type wireDetection struct {
	Label      string     `json:"label"`
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
}

type wireMessage struct {
	Source     string          `json:"source"`
	TS         float64         `json:"ts,omitempty"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detections []wireDetection `json:"detections"`
}

// Decode parses one datagram. Individual detections are not validated here;
// the tracker filters unknown classes and bad geometry.
func Decode(b []byte) (FrameResult, error) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return FrameResult{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return FrameResult{}, fmt.Errorf("%w: frame geometry %dx%d", ErrMalformedMessage, m.Width, m.Height)
	}

	fr := FrameResult{
		Source:     m.Source,
		Frame:      tracking.Frame{Width: m.Width, Height: m.Height},
		Detections: make([]tracking.Detection, 0, len(m.Detections)),
	}
	if m.TS > 0 && !math.IsInf(m.TS, 0) {
		sec, frac := math.Modf(m.TS)
		fr.At = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	for _, d := range m.Detections {
		fr.Detections = append(fr.Detections, tracking.Detection{
			Class:      d.Label,
			Box:        tracking.Rect{X: d.Box[0], Y: d.Box[1], Width: d.Box[2], Height: d.Box[3]},
			Confidence: d.Confidence,
		})
	}
	return fr, nil
}

// Encode renders fr in wire form. Used by replay tooling and tests.
func Encode(fr FrameResult) ([]byte, error) {
	m := wireMessage{
		Source:     fr.Source,
		Width:      fr.Frame.Width,
		Height:     fr.Frame.Height,
		Detections: make([]wireDetection, 0, len(fr.Detections)),
	}
	if !fr.At.IsZero() {
		m.TS = float64(fr.At.UnixNano()) / 1e9
	}
	for _, d := range fr.Detections {
		m.Detections = append(m.Detections, wireDetection{
			Label:      d.Class,
			Box:        [4]float64{d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height},
			Confidence: d.Confidence,
		})
	}
	return json.Marshal(m)
}
