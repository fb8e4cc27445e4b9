// Package api implements the daemon's HTTP surface: job submission and
// inspection, cancellation, daemon status, the daily report, and health
// probes. The CLI is its primary consumer, but the payloads are plain JSON
// so dashboards and scripts can use them directly.
//
// # Endpoints
//
// POST /api/jobs: submit a recap job, responds 202 with the queued job.
//
// GET /api/jobs/{id}: fetch one job document, events included.
//
// GET /api/jobs: list jobs newest first, filterable by status, limitable.
//
// POST /api/jobs/{id}/cancel: request cancellation; 202 when accepted,
// 409 with the current status when the job is already terminal.
//
// GET /api/status: scheduler state plus store counts and daemon version.
//
// GET /api/report/daily: last-24h production summary.
//
// GET /health and /health/detail: liveness and full preflight results.
//
// # Design Notes
//
// Responses reuse the persisted job document directly; jobs.Job carries
// snake_case JSON tags for exactly this purpose, so there is no DTO mirror
// to drift out of sync. Errors use a {error: {code, message}} envelope with
// codes taken from the services failure taxonomy. Authentication is a
// single static bearer token: empty token disables auth, and the health
// endpoints never require it so probes keep working behind misconfigured
// clients.
package api
