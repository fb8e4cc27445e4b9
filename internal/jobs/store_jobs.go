package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recast/internal/services"
)

const jobColumns = "id, job_type, status, video_id, current_step, progress, request_json, steps_json, result_json, error_json, events_json, created_at, updated_at"

// timeFormat keeps a fixed-width fractional second so timestamp strings sort
// lexicographically in creation order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Create inserts a new job in the queued state with its planned steps
// initialized and the first event recorded.
func (s *Store) Create(ctx context.Context, jobType JobType, req Request) (*Job, error) {
	parsed, ok := ParseJobType(string(jobType))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "create job", fmt.Sprintf("unknown job type %q", jobType), nil)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		JobType:   parsed,
		Status:    StatusQueued,
		VideoID:   req.VideoID,
		Progress:  0,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range PlanSteps(parsed) {
		step := Step{Name: name, Status: StepPending}
		if name == StepDiscover && req.Pinned() {
			step.Status = StepSkipped
			step.Detail = "subject pinned"
		}
		job.Steps = append(job.Steps, step)
	}
	job.AppendEvent(EventInfo, "", "job created")

	requestJSON, stepsJSON, resultJSON, errorJSON, eventsJSON, err := marshalJobColumns(job)
	if err != nil {
		return nil, err
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		string(job.JobType),
		string(job.Status),
		nullableString(job.VideoID),
		nullableString(job.CurrentStep),
		job.Progress,
		requestJSON,
		stepsJSON,
		resultJSON,
		errorJSON,
		eventsJSON,
		job.CreatedAt.Format(timeFormat),
		job.UpdatedAt.Format(timeFormat),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return job, nil
}

// Get fetches a job by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs ordered newest first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByStatus returns jobs matching any of the provided statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + placeholders + `) ORDER BY created_at`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// HasSucceededForVideo reports whether any succeeded job already produced a
// recap for the given source video. Discovery uses it to skip subjects that
// have been processed before.
func (s *Store) HasSucceededForVideo(ctx context.Context, videoID string) (bool, error) {
	if videoID == "" {
		return false, nil
	}
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs WHERE video_id = ? AND status = ?`,
		videoID,
		string(StatusSucceeded),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count succeeded jobs for video: %w", err)
	}
	return count > 0, nil
}

// ErrJobTerminal is returned when a mutation targets a job already in a
// terminal state.
var ErrJobTerminal = errors.New("job is terminal")

// Update applies a mutation to the current job record and persists the
// result atomically. The mutation sees a fresh copy of the row; concurrent
// updates to the same job serialize. Illegal status transitions, terminal
// mutation, and progress regressions are rejected or corrected here so every
// caller shares the same guarantees.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prevStatus := job.Status
	prevProgress := job.Progress
	if prevStatus.IsTerminal() {
		return nil, services.Wrap(services.ErrValidation, "", "update job", fmt.Sprintf("%s: status %s", ErrJobTerminal.Error(), prevStatus), ErrJobTerminal)
	}

	if err := mutate(job); err != nil {
		return nil, err
	}

	if job.Status != prevStatus && !CanTransition(prevStatus, job.Status) {
		return nil, services.Wrap(services.ErrValidation, "", "update job", fmt.Sprintf("illegal transition %s -> %s", prevStatus, job.Status), nil)
	}
	// Progress is monotonic.
	if job.Progress < prevProgress {
		job.Progress = prevProgress
	}
	if overflow := len(job.Events) - EventLimit; overflow > 0 {
		job.Events = append(job.Events[:0], job.Events[overflow:]...)
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.writeJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RequestCancel flips a job toward cancellation: queued jobs finalize as
// canceled immediately, running jobs become cancel_requested for the runner
// to observe at the next step boundary. The returned bool reports whether
// cancellation is now applied or pending; it is false for terminal jobs.
func (s *Store) RequestCancel(ctx context.Context, id string) (*Job, bool, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	switch job.Status {
	case StatusQueued:
		job.Status = StatusCanceled
		job.AppendEvent(EventInfo, "", "cancel requested before start, job canceled")
	case StatusRunning:
		job.Status = StatusCancelRequested
		job.AppendEvent(EventInfo, job.CurrentStep, "cancel requested")
	case StatusCancelRequested:
		return job, true, nil
	default:
		return job, false, nil
	}

	job.UpdatedAt = time.Now().UTC()
	if err := s.writeJob(ctx, job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// AppendEvent records a single event on a live job.
func (s *Store) AppendEvent(ctx context.Context, id string, level EventLevel, step, message string) error {
	_, err := s.Update(ctx, id, func(job *Job) error {
		job.AppendEvent(level, step, message)
		return nil
	})
	return err
}

func (s *Store) writeJob(ctx context.Context, job *Job) error {
	requestJSON, stepsJSON, resultJSON, errorJSON, eventsJSON, err := marshalJobColumns(job)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET job_type = ?, status = ?, video_id = ?, current_step = ?, progress = ?,
             request_json = ?, steps_json = ?, result_json = ?, error_json = ?,
             events_json = ?, updated_at = ?
         WHERE id = ?`,
		string(job.JobType),
		string(job.Status),
		nullableString(job.VideoID),
		nullableString(job.CurrentStep),
		job.Progress,
		requestJSON,
		stepsJSON,
		resultJSON,
		errorJSON,
		eventsJSON,
		job.UpdatedAt.Format(timeFormat),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func marshalJobColumns(job *Job) (request, steps, result, errJSON, events any, err error) {
	requestBytes, err := json.Marshal(job.Request)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal request: %w", err)
	}
	stepsBytes, err := json.Marshal(job.Steps)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	eventsBytes, err := json.Marshal(job.Events)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal events: %w", err)
	}
	var resultValue any
	if job.Result != nil {
		resultBytes, err := json.Marshal(job.Result)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("marshal result: %w", err)
		}
		resultValue = string(resultBytes)
	}
	var errorValue any
	if job.Error != nil {
		errorBytes, err := json.Marshal(job.Error)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("marshal error: %w", err)
		}
		errorValue = string(errorBytes)
	}
	return string(requestBytes), string(stepsBytes), resultValue, errorValue, string(eventsBytes), nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          string
		jobType     string
		statusStr   string
		videoID     sql.NullString
		currentStep sql.NullString
		progress    float64
		requestRaw  string
		stepsRaw    string
		resultRaw   sql.NullString
		errorRaw    sql.NullString
		eventsRaw   string
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&statusStr,
		&videoID,
		&currentStep,
		&progress,
		&requestRaw,
		&stepsRaw,
		&resultRaw,
		&errorRaw,
		&eventsRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		JobType:     JobType(jobType),
		Status:      Status(statusStr),
		VideoID:     videoID.String,
		CurrentStep: currentStep.String,
		Progress:    progress,
	}
	if err := json.Unmarshal([]byte(requestRaw), &job.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsRaw), &job.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(eventsRaw), &job.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	if resultRaw.Valid && resultRaw.String != "" {
		if err := json.Unmarshal([]byte(resultRaw.String), &job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if errorRaw.Valid && errorRaw.String != "" {
		job.Error = &Failure{}
		if err := json.Unmarshal([]byte(errorRaw.String), job.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
