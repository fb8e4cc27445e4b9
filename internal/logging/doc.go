// Package logging assembles the process-wide slog logger: a human-readable
// console handler or JSON handler (optionally teeing to a log file), typed
// attribute helpers, and context plumbing that stamps job_id, step, and
// correlation_id onto every line emitted inside a pipeline run.
package logging
