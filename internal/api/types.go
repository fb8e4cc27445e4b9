package api

import (
	"recast/internal/jobs"
	"recast/internal/pipeline"
	"recast/internal/preflight"
	"recast/internal/report"
)

// SubmitRequest is the POST /api/jobs body. All fields are optional; an
// empty body submits a full-pipeline job that discovers its own source.
type SubmitRequest struct {
	JobType string `json:"job_type,omitempty"`
	VideoID string `json:"video_id,omitempty"`
	Subject string `json:"subject,omitempty"`
	Profile string `json:"profile,omitempty"`
	Privacy string `json:"privacy,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// JobResponse wraps a single job document.
type JobResponse struct {
	Job *jobs.Job `json:"job"`
}

// JobListResponse wraps a job listing, newest first.
type JobListResponse struct {
	Jobs  []*jobs.Job `json:"jobs"`
	Count int         `json:"count"`
}

// StatusResponse reports scheduler state, store counts, and build version.
type StatusResponse struct {
	pipeline.StatusSummary
	Version string `json:"version"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthDetailResponse carries full preflight results. Status is "ok" when
// every check passed and "degraded" otherwise.
type HealthDetailResponse struct {
	Status string            `json:"status"`
	Checks []preflight.Check `json:"checks"`
}

// ErrorResponse is the uniform error envelope. Cancel conflicts additionally
// report the job's current status so callers can tell why the request was
// refused.
type ErrorResponse struct {
	Error  ErrorBody   `json:"error"`
	Status jobs.Status `json:"status,omitempty"`
}

// ErrorBody names the failure kind and describes it.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DailyReportResponse aliases the report payload so consumers import one
// package for every response shape.
type DailyReportResponse = report.Daily
