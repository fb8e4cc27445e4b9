package step

import (
	"context"

	"recast/internal/candidates"
	"recast/internal/jobs"
)

// Outcome is the success result of one step execution. Artifacts are merged
// into the exchange for later steps; Score is set only by gated steps.
type Outcome struct {
	Artifacts map[string]any
	Score     *float64
}

// Executor runs one pipeline step against the job's exchange.
type Executor interface {
	Name() string
	Execute(context.Context, *Exchange) (Outcome, error)
}

// Tuning carries the generation parameters quality gates adjust between
// attempts. Zero values mean untouched defaults except TimingScale, which
// NewExchange initializes to 1.
type Tuning struct {
	ScriptRevision int
	Critique       string
	RatePercent    int
	PitchPercent   int
	TimingScale    float64
}

// Exchange is the in-memory carrier for one pipeline run: the resolved
// subject, the per-job workspace, and artifact values produced by prior
// steps. It is owned by a single runner goroutine and never shared.
//
// Stream is job-scoped: discovery fills it once and candidate fallback
// draws from it, so ResetForCandidate leaves it alone.
type Exchange struct {
	JobID     string
	Request   jobs.Request
	Candidate *candidates.Candidate
	Stream    *candidates.Stream
	WorkDir   string
	Artifacts map[string]any
	Tuning    Tuning
}

// NewExchange builds the run carrier for one job.
func NewExchange(jobID string, req jobs.Request, workDir string) *Exchange {
	return &Exchange{
		JobID:     jobID,
		Request:   req,
		WorkDir:   workDir,
		Artifacts: make(map[string]any),
		Tuning:    Tuning{TimingScale: 1},
	}
}

// ResetForCandidate discards candidate-scoped state before a fallback
// restart: artifacts and tuning reset, the new candidate becomes the subject.
func (x *Exchange) ResetForCandidate(candidate *candidates.Candidate) {
	x.Candidate = candidate
	x.Artifacts = make(map[string]any)
	x.Tuning = Tuning{TimingScale: 1}
}

// SubjectID returns the video the job is working on: the pinned request video
// or the currently selected candidate.
func (x *Exchange) SubjectID() string {
	if x.Request.Pinned() {
		return x.Request.VideoID
	}
	if x.Candidate != nil {
		return x.Candidate.VideoID
	}
	return ""
}

// Merge copies step outcome artifacts into the exchange.
func (x *Exchange) Merge(artifacts map[string]any) {
	if len(artifacts) == 0 {
		return
	}
	if x.Artifacts == nil {
		x.Artifacts = make(map[string]any, len(artifacts))
	}
	for key, value := range artifacts {
		x.Artifacts[key] = value
	}
}

// Artifact returns a prior step's artifact value.
func (x *Exchange) Artifact(key string) (any, bool) {
	value, ok := x.Artifacts[key]
	return value, ok
}

// StringArtifact returns a prior step's artifact as a string, or empty when
// absent or differently typed.
func (x *Exchange) StringArtifact(key string) string {
	if value, ok := x.Artifacts[key].(string); ok {
		return value
	}
	return ""
}

// FloatArtifact returns a numeric artifact value.
func (x *Exchange) FloatArtifact(key string) (float64, bool) {
	switch value := x.Artifacts[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}
