package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"recast/internal/candidates"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/notify"
	"recast/internal/services"
	"recast/internal/step"
	"recast/internal/steps"
)

// resultArtifacts are the exchange keys copied into a succeeded job's result.
var resultArtifacts = []string{
	steps.ArtifactYouTubeVideoID,
	steps.ArtifactYouTubeURL,
	steps.ArtifactOutputPath,
	steps.ArtifactRecapPath,
	steps.ArtifactThumbnailPath,
	steps.ArtifactVideoTitle,
	steps.ArtifactPlatforms,
	steps.ArtifactInitialViews,
}

// finalizeSuccess writes the terminal succeeded state. A cancel that landed
// after the last step completed still wins: cancel_requested cannot
// transition to succeeded, so the job finalizes canceled without a result.
func (m *Manager) finalizeSuccess(logger *slog.Logger, job *jobs.Job, xchg *step.Exchange) {
	ctx, cancel := writeContext()
	defer cancel()

	canceledLate := false
	updated, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusCancelRequested {
			canceledLate = true
			j.Status = jobs.StatusCanceled
			j.CurrentStep = ""
			j.AppendEvent(jobs.EventInfo, "", "canceled after last step completed")
			return nil
		}
		j.Status = jobs.StatusSucceeded
		j.CurrentStep = ""
		j.Progress = 1
		j.Result = buildResult(ctx, j, xchg)
		j.AppendEvent(jobs.EventInfo, "", "job succeeded")
		return nil
	})
	if err != nil {
		logger.Error("job finalize failed", logging.Error(err))
		return
	}

	m.cleanupWorkspace(logger, xchg.WorkDir)

	if canceledLate {
		logger.Info("job canceled")
		m.publish(notify.EventJobCanceled, notify.Payload{
			"job_id":   updated.ID,
			"video_id": updated.VideoID,
		})
		return
	}

	url := xchg.StringArtifact(steps.ArtifactYouTubeURL)
	logger.Info("job succeeded",
		logging.String("video_id", updated.VideoID),
		logging.String("url", url))
	m.publish(notify.EventJobSucceeded, notify.Payload{
		"job_id":   updated.ID,
		"video_id": updated.VideoID,
		"url":      url,
	})
}

// buildResult assembles the terminal result payload: published identifiers,
// output artifacts, per-step scores, and the subject that produced them.
// Discover-only jobs instead report the ranked candidate list.
func buildResult(ctx context.Context, job *jobs.Job, xchg *step.Exchange) map[string]any {
	result := make(map[string]any)

	if job.JobType == jobs.TypeDiscover {
		result["candidates"] = discoverResult(ctx, xchg)
		return result
	}

	for _, key := range resultArtifacts {
		if value, ok := xchg.Artifact(key); ok {
			result[key] = value
		}
	}
	if xchg.Candidate != nil {
		result["candidate"] = *xchg.Candidate
	}
	scores := make(map[string]float64)
	for _, rec := range job.Steps {
		if rec.Score != nil {
			scores[rec.Name] = *rec.Score
		}
	}
	if len(scores) > 0 {
		result["scores"] = scores
	}
	return result
}

// discoverResult drains the stream into the ranked candidate list, the first
// selection included.
func discoverResult(ctx context.Context, xchg *step.Exchange) []candidates.Candidate {
	var list []candidates.Candidate
	if xchg.Candidate != nil {
		list = append(list, *xchg.Candidate)
	}
	if xchg.Stream == nil {
		return list
	}
	for {
		next, err := xchg.Stream.Next(ctx)
		if err != nil {
			return list
		}
		list = append(list, *next)
	}
}

// finalizeCanceled moves the job to canceled after a boundary observed the
// cancel request. The event names the step that was current when the request
// took effect.
func (m *Manager) finalizeCanceled(logger *slog.Logger, jobID string, cause *stepError) {
	ctx, cancel := writeContext()
	defer cancel()

	during := ""
	updated, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		during = j.CurrentStep
		j.Status = jobs.StatusCanceled
		j.CurrentStep = ""
		if during != "" {
			j.AppendEvent(jobs.EventInfo, during, fmt.Sprintf("canceled during %s", during))
		} else {
			j.AppendEvent(jobs.EventInfo, "", "job canceled")
		}
		return nil
	})
	if err != nil {
		logger.Error("job finalize failed", logging.Error(err))
		return
	}

	m.cleanupWorkspace(logger, m.cfg.JobWorkDir(jobID))
	logger.Info("job canceled", logging.String(logging.FieldStep, cause.step))
	m.publish(notify.EventJobCanceled, notify.Payload{
		"job_id":   jobID,
		"video_id": updated.VideoID,
	})
}

// finalizeFailure writes the terminal failed state with its classification.
func (m *Manager) finalizeFailure(logger *slog.Logger, jobID string, cause *stepError) {
	ctx, cancel := writeContext()
	defer cancel()

	kind := services.FailureKind(cause.err)
	message := services.Message(cause.err)
	updated, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		failure := &jobs.Failure{
			Kind:     kind,
			Step:     cause.step,
			Message:  message,
			Attempts: cause.attempts,
		}
		// A cancel that raced the failure is recorded, not swallowed.
		if j.Status == jobs.StatusCancelRequested {
			failure.CancellationPending = true
		}
		j.Status = jobs.StatusFailed
		j.CurrentStep = ""
		j.Error = failure
		j.AppendEvent(jobs.EventError, cause.step, fmt.Sprintf("job failed: %s", message))
		return nil
	})
	if err != nil {
		logger.Error("job finalize failed", logging.Error(err))
		return
	}

	m.cleanupWorkspace(logger, m.cfg.JobWorkDir(jobID))
	logger.Error("job failed",
		logging.String(logging.FieldStep, cause.step),
		logging.String("kind", kind),
		logging.Error(cause.err))
	m.publish(notify.EventJobFailed, notify.Payload{
		"job_id":   jobID,
		"video_id": updated.VideoID,
		"step":     cause.step,
		"kind":     kind,
		"error":    message,
	})
}

// finalizeInterrupted marks a job cut short by daemon shutdown. Finalizing
// here keeps a graceful stop from leaving running rows behind; jobs killed
// without this path are swept by FailInterrupted at the next startup.
func (m *Manager) finalizeInterrupted(logger *slog.Logger, jobID string, cause *stepError) {
	ctx, cancel := writeContext()
	defer cancel()

	_, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		j.Status = jobs.StatusFailed
		j.CurrentStep = ""
		j.Error = &jobs.Failure{
			Kind:     services.KindInterrupted,
			Step:     cause.step,
			Message:  "daemon shutdown interrupted the job",
			Attempts: cause.attempts,
		}
		j.AppendEvent(jobs.EventWarn, cause.step, "job interrupted by shutdown")
		return nil
	})
	if err != nil {
		logger.Error("job finalize failed", logging.Error(err))
		return
	}
	m.cleanupWorkspace(logger, m.cfg.JobWorkDir(jobID))
	logger.Warn("job interrupted", logging.String(logging.FieldStep, cause.step))
}

// cleanupWorkspace removes a terminal job's working directory unless the
// operator asked to keep them around.
func (m *Manager) cleanupWorkspace(logger *slog.Logger, workDir string) {
	if m.cfg.Pipeline.KeepWorkspaces || workDir == "" {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("workspace cleanup failed",
			logging.String("workdir", workDir),
			logging.Error(err))
	}
}

// publish sends a lifecycle notification without letting delivery problems
// touch job state.
func (m *Manager) publish(event notify.Event, payload notify.Payload) {
	ctx, cancel := writeContext()
	defer cancel()
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
