package pipeline

import (
	"time"

	"recast/internal/config"
	"recast/internal/gate"
	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/step"
	"recast/internal/steps"
)

// StepSet bundles the concrete step executors the manager orchestrates.
type StepSet struct {
	Discover   step.Executor
	Ingest     step.Executor
	Script     step.Executor
	Voice      step.Executor
	Render     step.Executor
	Thumbnail  step.Executor
	Upload     step.Executor
	Distribute step.Executor
}

func (s StepSet) executor(name string) step.Executor {
	switch name {
	case jobs.StepDiscover:
		return s.Discover
	case jobs.StepIngest:
		return s.Ingest
	case jobs.StepScript:
		return s.Script
	case jobs.StepVoice:
		return s.Voice
	case jobs.StepRender:
		return s.Render
	case jobs.StepThumbnail:
		return s.Thumbnail
	case jobs.StepUpload:
		return s.Upload
	case jobs.StepDistribute:
		return s.Distribute
	default:
		return nil
	}
}

func (s StepSet) missing() []string {
	var missing []string
	for _, name := range jobs.PlanSteps(jobs.TypeFullPipeline) {
		if s.executor(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// plannedStep pairs one pipeline step with its execution policy. Subject
// scope marks the steps candidate fallback may restart: everything between
// discovery and the point of no recovery.
type plannedStep struct {
	name          string
	exec          step.Executor
	gate          *gate.Settings
	regenerate    func(*step.Exchange, gate.Verdict)
	timeout       time.Duration
	subjectScoped bool
}

// buildPlan resolves the job's step sequence against the configured
// executors, gates, and timeouts.
func (m *Manager) buildPlan(job *jobs.Job) ([]plannedStep, error) {
	names := jobs.PlanSteps(job.JobType)
	cut := m.cfg.Pipeline.PointOfNoRecovery

	plan := make([]plannedStep, 0, len(names))
	recoverable := true
	for _, name := range names {
		if name == cut {
			recoverable = false
		}
		exec := m.steps.executor(name)
		if exec == nil {
			return nil, services.Wrap(services.ErrConfiguration, name, "build plan",
				"no executor configured", nil)
		}
		ps := plannedStep{
			name:          name,
			exec:          exec,
			timeout:       stepTimeout(m.cfg, name),
			subjectScoped: name != jobs.StepDiscover && recoverable,
		}
		switch name {
		case jobs.StepScript:
			ps.gate = &gate.Settings{
				Threshold:   m.cfg.Gates.Script.Threshold,
				MaxAttempts: m.cfg.Gates.Script.MaxAttempts,
			}
			ps.regenerate = regenerateScript
		case jobs.StepVoice:
			ps.gate = &gate.Settings{
				Threshold:   m.cfg.Gates.Voice.Threshold,
				MaxAttempts: m.cfg.Gates.Voice.MaxAttempts,
			}
			ps.regenerate = regenerateVoice
		case jobs.StepRender:
			ps.gate = &gate.Settings{
				Threshold:   m.cfg.Gates.Render.Threshold,
				MaxAttempts: m.cfg.Gates.Render.MaxAttempts,
			}
			ps.regenerate = regenerateRender
		}
		plan = append(plan, ps)
	}
	return plan, nil
}

// fallbackResetNames lists the step names candidate fallback returns to
// pending before restarting from ingest.
func fallbackResetNames(plan []plannedStep) []string {
	names := make([]string, 0, len(plan))
	for _, ps := range plan {
		if ps.subjectScoped {
			names = append(names, ps.name)
		}
	}
	return names
}

func stepTimeout(cfg *config.Config, name string) time.Duration {
	seconds := 0
	switch name {
	case jobs.StepDiscover:
		seconds = cfg.Steps.DiscoverTimeout
	case jobs.StepIngest:
		seconds = cfg.Steps.IngestTimeout
	case jobs.StepScript:
		seconds = cfg.Steps.ScriptTimeout
	case jobs.StepVoice:
		seconds = cfg.Steps.VoiceTimeout
	case jobs.StepRender:
		seconds = cfg.Steps.RenderTimeout
	case jobs.StepThumbnail:
		seconds = cfg.Steps.ThumbnailTimeout
	case jobs.StepUpload:
		seconds = cfg.Steps.UploadTimeout
	case jobs.StepDistribute:
		seconds = cfg.Steps.DistributeTimeout
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// regenerateScript forwards the judge's critique into the next generation
// attempt and bumps the revision counter the prompt reports.
func regenerateScript(xchg *step.Exchange, _ gate.Verdict) {
	xchg.Tuning.ScriptRevision++
	xchg.Tuning.Critique = xchg.StringArtifact(steps.ArtifactCritique)
}

// regenerateVoice slows delivery and lifts pitch slightly between attempts;
// rushed reads are the dominant cause of clipping and loudness misses.
func regenerateVoice(xchg *step.Exchange, _ gate.Verdict) {
	xchg.Tuning.RatePercent -= 2
	xchg.Tuning.PitchPercent++
}

// regenerateRender compresses the cut plan so segment boundaries land closer
// to the narration beats on the next assembly.
func regenerateRender(xchg *step.Exchange, _ gate.Verdict) {
	xchg.Tuning.TimingScale *= 0.9
}
