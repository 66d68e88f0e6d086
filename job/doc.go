// Package job defines the Job record, its lifecycle state machine, and the
// persistence contract.
//
// The state machine is pure: given a status and an event it returns the next
// status and the effects to record, with no hidden state and no I/O. Every
// mutation of a persisted job travels through a Transition applied
// conditionally on the job's current status, so concurrent writers lose
// cleanly with a conflict instead of overwriting each other.
package job
