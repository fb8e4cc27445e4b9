// Package preflight provides readiness checks for the external services,
// binaries, and filesystem paths that Recast depends on.
//
// These checks run in three contexts:
//   - The pipeline manager runs them before a job's first step. If any
//     check fails, the job fails as a configuration error instead of
//     burning API quota on a doomed run.
//   - The daemon exposes them at GET /health/detail.
//   - The CLI "recast preflight" command prints them directly.
//
// Service checks are gated by their config -- a disabled thumbnail server
// or an unset distribution channel is skipped, not failed.
package preflight
