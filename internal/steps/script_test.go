package steps

import (
	"context"
	"errors"
	"testing"

	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/step"
)

type fakeScriptService struct {
	lastReq  gemini.ScriptRequest
	script   *gemini.Script
	critique *gemini.Critique
	genErr   error
}

func (f *fakeScriptService) GenerateScript(_ context.Context, req gemini.ScriptRequest) (*gemini.Script, error) {
	f.lastReq = req
	return f.script, f.genErr
}

func (f *fakeScriptService) CritiqueScript(_ context.Context, _ *gemini.Script) (*gemini.Critique, error) {
	return f.critique, nil
}

func scriptedExchange(t *testing.T) *step.Exchange {
	t.Helper()
	xchg := step.NewExchange("job-1", jobs.Request{Subject: "inception"}, t.TempDir())
	xchg.Merge(map[string]any{
		ArtifactTranscript:    "dom cobb steals secrets from dreams",
		ArtifactSourceTitle:   "Inception Explained",
		ArtifactSourceChannel: "Recap Central",
	})
	return xchg
}

func TestScriptProducesScoredOutcome(t *testing.T) {
	service := &fakeScriptService{
		script: &gemini.Script{
			Hook:        "ሰላም",
			Segments:    []gemini.Segment{{Text: "መጀመሪያ"}},
			Payoff:      "መጨረሻ",
			Title:       "ኢንሴፕሽን ሙሉ ታሪክ",
			Description: "recap description",
			Tags:        []string{"recap", "inception"},
		},
		critique: &gemini.Critique{Score: 87.5, Summary: "solid pacing", Weaknesses: []string{"weak hook"}},
	}
	scriptStep := NewScript(service, nil)

	xchg := scriptedExchange(t)
	outcome, err := scriptStep.Execute(context.Background(), xchg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Score == nil || *outcome.Score != 87.5 {
		t.Fatalf("score = %v, want 87.5", outcome.Score)
	}
	if got, ok := outcome.Artifacts[ArtifactScript].(*gemini.Script); !ok || got != service.script {
		t.Errorf("script artifact = %v", outcome.Artifacts[ArtifactScript])
	}
	if got := outcome.Artifacts[ArtifactVideoTitle]; got != "ኢንሴፕሽን ሙሉ ታሪክ" {
		t.Errorf("title artifact = %v", got)
	}
	critique, _ := outcome.Artifacts[ArtifactCritique].(string)
	if critique != "solid pacing weaknesses: weak hook" {
		t.Errorf("critique artifact = %q", critique)
	}
	if service.lastReq.VideoTitle != "Inception Explained" {
		t.Errorf("request video title = %q", service.lastReq.VideoTitle)
	}
}

func TestScriptForwardsTuningToRegeneration(t *testing.T) {
	service := &fakeScriptService{
		script:   &gemini.Script{Hook: "hook", Segments: []gemini.Segment{{Text: "t"}}},
		critique: &gemini.Critique{Score: 95},
	}
	scriptStep := NewScript(service, nil)

	xchg := scriptedExchange(t)
	xchg.Tuning.ScriptRevision = 2
	xchg.Tuning.Critique = "hook buried, stakes unclear"
	if _, err := scriptStep.Execute(context.Background(), xchg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if service.lastReq.Revision != 2 {
		t.Errorf("revision = %d, want 2", service.lastReq.Revision)
	}
	if service.lastReq.Critique != "hook buried, stakes unclear" {
		t.Errorf("critique = %q", service.lastReq.Critique)
	}
}

func TestScriptRequiresTranscript(t *testing.T) {
	scriptStep := NewScript(&fakeScriptService{}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	_, err := scriptStep.Execute(context.Background(), xchg)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestScriptPropagatesGenerationFailure(t *testing.T) {
	service := &fakeScriptService{genErr: services.ErrTransient}
	scriptStep := NewScript(service, nil)

	_, err := scriptStep.Execute(context.Background(), scriptedExchange(t))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
}
