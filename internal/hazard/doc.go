// Package hazard defines the fixed set of hazard classes, the wire command
// sent to the wearable, and the per-class proximity policy table.
//
// The table is declarative: one Policy per class holds the depth threshold,
// the policy shape and the cue (command + audio channel) for each proximity
// state. Evaluation lives in internal/proximity.
package hazard
