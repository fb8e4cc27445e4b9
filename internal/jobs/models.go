package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusCancelRequested Status = "cancel_requested"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusCanceled        Status = "canceled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusCancelRequested,
	StatusSucceeded,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the complete set of permitted status edges. A failure
// observed while cancellation is pending still finalizes as failed; the
// record notes the pending cancellation.
var legalTransitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusRunning:         {},
		StatusCancelRequested: {},
		StatusCanceled:        {},
	},
	StatusRunning: {
		StatusSucceeded:       {},
		StatusFailed:          {},
		StatusCanceled:        {},
		StatusCancelRequested: {},
	},
	StatusCancelRequested: {
		StatusCanceled: {},
		StatusFailed:   {},
	},
}

// CanTransition reports whether moving a job from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Statuses returns all known statuses in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the status is one of the final states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in this status still owns a runner.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusCancelRequested
}

// JobType selects which pipeline a job runs.
type JobType string

const (
	TypeFullPipeline JobType = "full_pipeline"
	TypeDiscover     JobType = "discover"
)

// ParseJobType validates a job type string, defaulting to the full pipeline.
func ParseJobType(value string) (JobType, bool) {
	switch JobType(strings.ToLower(strings.TrimSpace(value))) {
	case "", TypeFullPipeline:
		return TypeFullPipeline, true
	case TypeDiscover:
		return TypeDiscover, true
	default:
		return "", false
	}
}

// Pipeline step names in execution order.
const (
	StepDiscover   = "discover"
	StepIngest     = "ingest"
	StepScript     = "script"
	StepVoice      = "voice"
	StepRender     = "render"
	StepThumbnail  = "thumbnail"
	StepUpload     = "upload"
	StepDistribute = "distribute"
)

var fullPipelineSteps = []string{
	StepDiscover,
	StepIngest,
	StepScript,
	StepVoice,
	StepRender,
	StepThumbnail,
	StepUpload,
	StepDistribute,
}

// PlanSteps returns the ordered step names a job of the given type runs.
func PlanSteps(jobType JobType) []string {
	switch jobType {
	case TypeDiscover:
		return []string{StepDiscover}
	default:
		out := make([]string, len(fullPipelineSteps))
		copy(out, fullPipelineSteps)
		return out
	}
}

// StepStatus represents the lifecycle of one pipeline step within a job.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Step records one pipeline step's state on the job record.
type Step struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Score      *float64   `json:"score,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// EventLevel classifies event log entries.
type EventLevel string

const (
	EventInfo  EventLevel = "info"
	EventWarn  EventLevel = "warn"
	EventError EventLevel = "error"
)

// Event is one append-only entry in a job's bounded event log.
type Event struct {
	At      time.Time  `json:"at"`
	Level   EventLevel `json:"level"`
	Step    string     `json:"step,omitempty"`
	Message string     `json:"message"`
}

// EventLimit bounds the per-job event log. Oldest entries are evicted first.
const EventLimit = 200

// Request carries the submission parameters for a job.
type Request struct {
	VideoID string `json:"video_id,omitempty"`
	Subject string `json:"subject,omitempty"`
	Profile string `json:"profile,omitempty"`
	Privacy string `json:"privacy,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// Pinned reports whether the request fixes the source video, disabling
// discovery and candidate fallback.
func (r Request) Pinned() bool {
	return strings.TrimSpace(r.VideoID) != ""
}

// Failure is the structured error recorded on a failed job.
type Failure struct {
	Kind                string `json:"kind"`
	Step                string `json:"step,omitempty"`
	Message             string `json:"message"`
	Attempts            int    `json:"attempts,omitempty"`
	CancellationPending bool   `json:"cancellation_pending,omitempty"`
}

// Job is the persisted record for one unit of pipeline work.
type Job struct {
	ID          string         `json:"id"`
	JobType     JobType        `json:"job_type"`
	Status      Status         `json:"status"`
	VideoID     string         `json:"video_id,omitempty"`
	CurrentStep string         `json:"current_step,omitempty"`
	Progress    float64        `json:"progress"`
	Request     Request        `json:"request"`
	Steps       []Step         `json:"steps"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *Failure       `json:"error,omitempty"`
	Events      []Event        `json:"events"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Step returns the named step record, or nil when the plan does not include it.
func (j *Job) Step(name string) *Step {
	for i := range j.Steps {
		if j.Steps[i].Name == name {
			return &j.Steps[i]
		}
	}
	return nil
}

// AppendEvent adds an entry to the job's event log, evicting the oldest
// entries beyond EventLimit.
func (j *Job) AppendEvent(level EventLevel, step, message string) {
	j.Events = append(j.Events, Event{
		At:      time.Now().UTC(),
		Level:   level,
		Step:    step,
		Message: message,
	})
	if overflow := len(j.Events) - EventLimit; overflow > 0 {
		j.Events = append(j.Events[:0], j.Events[overflow:]...)
	}
}

// ResetSteps returns the named steps to pending with cleared attempts and
// scores. Used when candidate fallback restarts the subject-scoped steps.
func (j *Job) ResetSteps(names ...string) {
	for _, name := range names {
		if step := j.Step(name); step != nil {
			step.Status = StepPending
			step.Attempts = 0
			step.Score = nil
			step.Detail = ""
			step.StartedAt = nil
			step.FinishedAt = nil
		}
	}
}

// RecomputeProgress sets progress to the completed fraction of planned steps.
// Skipped steps count as completed.
func (j *Job) RecomputeProgress() {
	if len(j.Steps) == 0 {
		return
	}
	done := 0
	for _, step := range j.Steps {
		if step.Status == StepOK || step.Status == StepSkipped {
			done++
		}
	}
	j.Progress = float64(done) / float64(len(j.Steps))
}

// Stats aggregates job counts per status.
type Stats struct {
	Total  int            `json:"total"`
	Counts map[Status]int `json:"counts"`
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
