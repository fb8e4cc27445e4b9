package steps

import (
	"context"
	"log/slog"
	"strings"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/step"
)

// ScriptService generates and judges recap scripts. *gemini.Client
// satisfies it.
type ScriptService interface {
	GenerateScript(ctx context.Context, req gemini.ScriptRequest) (*gemini.Script, error)
	CritiqueScript(ctx context.Context, script *gemini.Script) (*gemini.Critique, error)
}

// Script generates the recap script and scores it with a self-critique. The
// score feeds the quality gate; the critique text rides the exchange so a
// regeneration attempt can address it.
type Script struct {
	service ScriptService
	logger  *slog.Logger
}

// NewScript builds the script step.
func NewScript(service ScriptService, logger *slog.Logger) *Script {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Script{service: service, logger: logger}
}

func (s *Script) Name() string { return jobs.StepScript }

func (s *Script) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	transcript := xchg.StringArtifact(ArtifactTranscript)
	if transcript == "" {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepScript, "load transcript",
			"no transcript artifact on exchange", nil)
	}

	script, err := s.service.GenerateScript(ctx, gemini.ScriptRequest{
		Subject:      xchg.Request.Subject,
		VideoTitle:   xchg.StringArtifact(ArtifactSourceTitle),
		ChannelTitle: xchg.StringArtifact(ArtifactSourceChannel),
		Transcript:   transcript,
		Revision:     xchg.Tuning.ScriptRevision,
		Critique:     xchg.Tuning.Critique,
	})
	if err != nil {
		return step.Outcome{}, err
	}

	critique, err := s.service.CritiqueScript(ctx, script)
	if err != nil {
		return step.Outcome{}, err
	}

	s.logger.Info("script generated",
		logging.String(logging.FieldJobID, xchg.JobID),
		logging.Int("revision", xchg.Tuning.ScriptRevision),
		logging.Int("segments", len(script.Segments)),
		logging.Float64("score", critique.Score))

	score := critique.Score
	return step.Outcome{
		Score: &score,
		Artifacts: map[string]any{
			ArtifactScript:           script,
			ArtifactScriptText:       script.FullText(),
			ArtifactCritique:         critiqueText(critique),
			ArtifactVideoTitle:       script.Title,
			ArtifactVideoDescription: script.Description,
			ArtifactVideoTags:        script.Tags,
		},
	}, nil
}

// critiqueText flattens the judge output into the feedback block a
// regeneration prompt receives.
func critiqueText(critique *gemini.Critique) string {
	parts := make([]string, 0, 2)
	if critique.Summary != "" {
		parts = append(parts, critique.Summary)
	}
	if len(critique.Weaknesses) > 0 {
		parts = append(parts, "weaknesses: "+strings.Join(critique.Weaknesses, "; "))
	}
	return strings.Join(parts, " ")
}
