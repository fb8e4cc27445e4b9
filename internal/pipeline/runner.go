package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"recast/internal/gate"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/notify"
	"recast/internal/services"
	"recast/internal/step"
)

// errClaimLost marks a job that left the queued state before this runner
// could claim it, typically a cancel that landed first.
var errClaimLost = errors.New("job no longer queued")

// stepError carries the failing step context into the finalizer.
type stepError struct {
	step     string
	attempts int
	err      error
}

// runJob owns one job from slot acquisition to its terminal status. It is
// the only goroutine that writes this job's record while it runs; everything
// it decides is persisted through store.Update so the row stays the single
// source of truth.
func (m *Manager) runJob(ctx context.Context, jobID string) {
	defer m.wg.Done()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		// Shutdown while waiting for a slot: the job stays queued and the
		// next daemon start adopts it.
		return
	}
	if ctx.Err() != nil {
		return
	}

	logger := m.logger.With(logging.String(logging.FieldJobID, jobID))

	job, claimed, err := m.claim(ctx, jobID)
	if err != nil {
		logger.Error("job claim failed", logging.Error(err))
		return
	}
	if !claimed {
		// Canceled while queued; RequestCancel already finalized it.
		return
	}
	logger.Info("job started",
		logging.String("job_type", string(job.JobType)),
		logging.String("video_id", job.Request.VideoID))

	m.publish(notify.EventJobStarted, notify.Payload{
		"job_id":   job.ID,
		"video_id": job.Request.VideoID,
	})

	if m.preflight != nil {
		if err := m.preflight(ctx); err != nil {
			if !errors.Is(err, services.ErrConfiguration) {
				err = services.Wrap(services.ErrConfiguration, "", "preflight", "", err)
			}
			logger.Error("preflight failed", logging.Error(err))
			m.finalizeFailure(logger, jobID, &stepError{err: err})
			return
		}
	}

	workDir := m.cfg.JobWorkDir(job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		m.finalizeFailure(logger, jobID, &stepError{
			err: services.Wrap(services.ErrConfiguration, "", "create workspace", workDir, err),
		})
		return
	}

	xchg := step.NewExchange(job.ID, job.Request, workDir)
	runErr := m.runPlan(ctx, logger, job, xchg)

	switch {
	case runErr == nil:
		m.finalizeSuccess(logger, job, xchg)
	case errors.Is(runErr.err, services.ErrCancelled) && ctx.Err() == nil:
		m.finalizeCanceled(logger, jobID, runErr)
	case ctx.Err() != nil:
		m.finalizeInterrupted(logger, jobID, runErr)
	default:
		m.finalizeFailure(logger, jobID, runErr)
	}
}

// claim moves a queued job into running. claimed=false means the job left
// the queued state first (cancel before start) and there is nothing to run.
func (m *Manager) claim(ctx context.Context, jobID string) (*jobs.Job, bool, error) {
	job, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusQueued {
			return errClaimLost
		}
		j.Status = jobs.StatusRunning
		j.AppendEvent(jobs.EventInfo, "", "job started")
		return nil
	})
	switch {
	case err == nil:
		return job, true, nil
	case errors.Is(err, errClaimLost), errors.Is(err, jobs.ErrJobTerminal):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// runPlan walks the job's step plan in order. A nil return means every step
// completed or was skipped; otherwise the failing step context comes back
// for classification.
func (m *Manager) runPlan(ctx context.Context, logger *slog.Logger, job *jobs.Job, xchg *step.Exchange) *stepError {
	plan, err := m.buildPlan(job)
	if err != nil {
		return &stepError{err: err}
	}

	idx := 0
	for idx < len(plan) {
		ps := plan[idx]

		// Pinned submissions record discover as skipped at create time.
		if rec := job.Step(ps.name); rec != nil && rec.Status == jobs.StepSkipped {
			idx++
			continue
		}

		if err := m.boundary(ctx, job.ID, ps.name); err != nil {
			return &stepError{step: ps.name, err: err}
		}

		outcome, attempts, err := m.executeStep(ctx, logger, job, xchg, ps)
		if err != nil {
			if m.shouldFallback(xchg, ps, err) {
				next, fbErr := m.advanceCandidate(ctx, logger, job, xchg, plan, ps, err)
				if fbErr != nil {
					return &stepError{step: ps.name, attempts: attempts, err: fbErr}
				}
				idx = next
				continue
			}
			return &stepError{step: ps.name, attempts: attempts, err: err}
		}

		if err := m.completeStep(ctx, job, xchg, ps, outcome, attempts); err != nil {
			return &stepError{step: ps.name, err: err}
		}
		idx++
	}
	return nil
}

// boundary re-reads the job between steps. Cancellation is honored only
// here, never mid-step. Daemon shutdown surfaces as the raw context error so
// the finalizer can tell an interrupt from an operator cancel.
func (m *Manager) boundary(ctx context.Context, jobID, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusCancelRequested {
		return services.Wrap(services.ErrCancelled, next, "boundary", "cancel requested", nil)
	}
	return nil
}

// executeStep runs one planned step, gated or plain, and keeps the job
// record's step state and event log current. The returned attempt count is
// gate attempts for gated steps and invocation attempts otherwise.
func (m *Manager) executeStep(ctx context.Context, logger *slog.Logger, job *jobs.Job, xchg *step.Exchange, ps plannedStep) (step.Outcome, int, error) {
	stepLogger := logger.With(logging.String(logging.FieldStep, ps.name))

	updated, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		now := time.Now().UTC()
		j.CurrentStep = ps.name
		if rec := j.Step(ps.name); rec != nil {
			rec.Status = jobs.StepRunning
			rec.StartedAt = &now
			rec.FinishedAt = nil
			rec.Detail = ""
		}
		j.AppendEvent(jobs.EventInfo, ps.name, "step started")
		return nil
	})
	if err != nil {
		return step.Outcome{}, 0, err
	}
	*job = *updated

	recordRetry := func(_ int, wait time.Duration, stepErr error) {
		if err := m.store.AppendEvent(ctx, job.ID, jobs.EventWarn, ps.name,
			fmt.Sprintf("transient failure, retrying in %s: %s", wait, services.Message(stepErr))); err != nil {
			stepLogger.Warn("retry event not recorded", logging.Error(err))
		}
	}
	opts := step.Options{
		Logger:  stepLogger,
		Timeout: ps.timeout,
		Retries: m.cfg.Pipeline.StepRetries,
		Backoff: time.Duration(m.cfg.Pipeline.RetryBackoffSeconds) * time.Second,
		OnRetry: recordRetry,
	}

	attempts := 1
	var outcome step.Outcome
	var runErr error
	if ps.gate != nil {
		g := gate.New(ps.exec, *ps.gate,
			gate.WithLogger(stepLogger),
			gate.WithRecorder(func(recordCtx context.Context, _ *step.Exchange, message string) {
				if err := m.store.AppendEvent(recordCtx, job.ID, jobs.EventWarn, ps.name, message); err != nil {
					stepLogger.Warn("gate event not recorded", logging.Error(err))
				}
			}),
			gate.WithOnRetry(func(x *step.Exchange, verdict gate.Verdict) {
				attempts = verdict.Attempt
				if ps.regenerate != nil {
					ps.regenerate(x, verdict)
				}
			}))
		outcome, runErr = g.Run(ctx, xchg, opts)
	} else {
		opts.OnRetry = func(attempt int, wait time.Duration, stepErr error) {
			attempts = attempt + 1
			recordRetry(attempt, wait, stepErr)
		}
		outcome, runErr = step.Run(ctx, ps.exec, xchg, opts)
	}

	if runErr != nil {
		m.recordStepFailure(job.ID, ps.name, attempts, runErr)
		return step.Outcome{}, attempts, runErr
	}
	return outcome, attempts, nil
}

// recordStepFailure persists the failed step state. It writes on a fresh
// context so the record lands even when the run context died mid-step.
func (m *Manager) recordStepFailure(jobID, stepName string, attempts int, stepErr error) {
	ctx, cancel := writeContext()
	defer cancel()
	if _, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		now := time.Now().UTC()
		if rec := j.Step(stepName); rec != nil {
			rec.Status = jobs.StepFailed
			rec.Attempts = attempts
			rec.Detail = services.Message(stepErr)
			rec.FinishedAt = &now
		}
		j.AppendEvent(jobs.EventError, stepName, fmt.Sprintf("step failed: %s", services.Message(stepErr)))
		return nil
	}); err != nil {
		m.logger.Warn("step failure not recorded",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldStep, stepName),
			logging.Error(err))
	}
}

// completeStep merges the outcome into the exchange and marks the step ok.
func (m *Manager) completeStep(ctx context.Context, job *jobs.Job, xchg *step.Exchange, ps plannedStep, outcome step.Outcome, attempts int) error {
	xchg.Merge(outcome.Artifacts)

	updated, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		now := time.Now().UTC()
		if rec := j.Step(ps.name); rec != nil {
			rec.Status = jobs.StepOK
			rec.Attempts = attempts
			rec.Score = outcome.Score
			rec.FinishedAt = &now
			if rec.StartedAt == nil {
				rec.StartedAt = &now
			}
		}
		if subject := xchg.SubjectID(); subject != "" {
			j.VideoID = subject
		}
		j.RecomputeProgress()
		message := "step completed"
		if outcome.Score != nil {
			message = fmt.Sprintf("step completed, score %.1f", *outcome.Score)
		}
		j.AppendEvent(jobs.EventInfo, ps.name, message)
		if ps.name == jobs.StepDiscover && xchg.Candidate != nil {
			j.AppendEvent(jobs.EventInfo, ps.name,
				fmt.Sprintf("candidate %s selected: %s", xchg.Candidate.VideoID, xchg.Candidate.Title))
		}
		return nil
	})
	if err != nil {
		return err
	}
	*job = *updated
	return nil
}

// shouldFallback reports whether a failure burns the current candidate
// instead of the job. Only auto-selected subjects inside the recoverable
// span qualify; cancellation and operator-fixable errors always surface.
func (m *Manager) shouldFallback(xchg *step.Exchange, ps plannedStep, err error) bool {
	if !ps.subjectScoped || xchg.Stream == nil || xchg.Request.Pinned() {
		return false
	}
	if errors.Is(err, services.ErrCancelled) ||
		errors.Is(err, services.ErrConfiguration) ||
		errors.Is(err, services.ErrValidation) ||
		errors.Is(err, services.ErrNoViableCandidate) {
		return false
	}
	return true
}

// advanceCandidate rejects the current candidate, clears its traces, and
// restarts the subject scope from the next one. It returns the plan index to
// resume at; stream exhaustion surfaces as ErrNoViableCandidate.
func (m *Manager) advanceCandidate(ctx context.Context, logger *slog.Logger, job *jobs.Job, xchg *step.Exchange, plan []plannedStep, failed plannedStep, cause error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rejected := ""
	if xchg.Candidate != nil {
		rejected = xchg.Candidate.VideoID
	}
	resetNames := fallbackResetNames(plan)

	updated, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.AppendEvent(jobs.EventWarn, failed.name,
			fmt.Sprintf("candidate %s rejected at %s: %s", rejected, failed.name, services.Message(cause)))
		j.ResetSteps(resetNames...)
		j.VideoID = ""
		j.CurrentStep = ""
		return nil
	})
	if err != nil {
		return 0, err
	}
	*job = *updated

	next, err := xchg.Stream.Next(ctx)
	if err != nil {
		return 0, err
	}

	// The rejected candidate's downloads and renders are garbage now.
	if err := clearWorkDir(xchg.WorkDir); err != nil {
		logger.Warn("workspace reset failed",
			logging.String("workdir", xchg.WorkDir),
			logging.Error(err))
	}
	xchg.ResetForCandidate(next)
	logger.Info("candidate fallback",
		logging.String("rejected", rejected),
		logging.String("video_id", next.VideoID),
		logging.Int("remaining", xchg.Stream.Remaining()))

	updated, err = m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.VideoID = next.VideoID
		j.AppendEvent(jobs.EventInfo, jobs.StepDiscover,
			fmt.Sprintf("candidate %s selected: %s", next.VideoID, next.Title))
		return nil
	})
	if err != nil {
		return 0, err
	}
	*job = *updated

	for i, ps := range plan {
		if ps.subjectScoped {
			return i, nil
		}
	}
	return len(plan), nil
}

// clearWorkDir empties a job workspace without removing the directory
// itself, so the running job keeps a valid working path.
func clearWorkDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// writeContext returns a short-lived context for store writes that must land
// even when the run context is gone.
func writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
