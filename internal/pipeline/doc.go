// Package pipeline orchestrates recap production jobs. The Manager creates
// job records, runs each accepted job on its own goroutine through the fixed
// step sequence, enforces quality gates, rotates candidates when a source
// video proves unusable, and finalizes every job in exactly one terminal
// state. All job state lives in the store; the manager keeps only scheduling
// state, so a crashed process can resume from the rows it left behind.
package pipeline
