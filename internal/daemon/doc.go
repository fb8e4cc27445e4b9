// Package daemon coordinates the long-running Recast process.
//
// It wires configuration, the job store, the pipeline manager, and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances. Run is the entry point used by `recast daemon run`: it installs
// signal handling, builds the service clients once, shares them between the
// step executors and the preflight checks, and blocks until shutdown.
//
// Keep assembly and lifecycle logic here: pipeline semantics live in
// internal/pipeline and the individual step packages.
package daemon
