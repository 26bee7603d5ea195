// Package tracking turns per-frame hazard detections into persistent
// object identities.
//
// Responsibilities: allow-list filtering, pixel/depth-proxy geometry,
// depth-ratio association, in-place update and staleness eviction.
// Key types: Detection, Frame, TrackedObject, Tracker.
//
// The Tracker is the single owner of object state. Callers read value
// copies through Snapshot and change proximity flags only through Latch.
package tracking
