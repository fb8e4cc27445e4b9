package steps

import (
	"context"
	"errors"
	"math"
	"testing"

	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/services/ffmpegx"
	"recast/internal/step"
)

type fakeAssembler struct {
	scenes   []float64
	cuts     []ffmpegx.Cut
	duration float64
}

func (f *fakeAssembler) DetectScenes(_ context.Context, _ string, _ float64) ([]float64, error) {
	return f.scenes, nil
}

func (f *fakeAssembler) RenderRecap(_ context.Context, _, _, _ string, cuts []ffmpegx.Cut) error {
	f.cuts = cuts
	return nil
}

func (f *fakeAssembler) Duration(_ context.Context, _ string) (float64, error) {
	return f.duration, nil
}

func renderedExchange(t *testing.T) *step.Exchange {
	t.Helper()
	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	xchg.Merge(map[string]any{
		ArtifactSourcePath:        "/work/source/vid-1.mp4",
		ArtifactNarrationPath:     "/work/voice/narration.wav",
		ArtifactNarrationDuration: 60.0,
		ArtifactSourceDurationSec: 600.0,
		ArtifactNarrationBeats:    []float64{12, 24, 36, 60},
	})
	return xchg
}

func TestRenderAssemblesCutsAndScores(t *testing.T) {
	assembler := &fakeAssembler{
		scenes:   []float64{25, 80, 140, 220, 310, 420, 500},
		duration: 60,
	}
	render := NewRender(assembler, RenderConfig{}, nil)

	outcome, err := render.Execute(context.Background(), renderedExchange(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(assembler.cuts) == 0 {
		t.Fatal("no cuts passed to renderer")
	}
	total := 0.0
	for _, cut := range assembler.cuts {
		if cut.EndSec <= cut.StartSec {
			t.Errorf("degenerate cut %+v", cut)
		}
		total += cut.EndSec - cut.StartSec
	}
	if math.Abs(total-60) > 1 {
		t.Errorf("cut total = %.2f, want about the narration length", total)
	}
	if outcome.Score == nil || *outcome.Score < 0 || *outcome.Score > 1 {
		t.Fatalf("score = %v, want within [0,1]", outcome.Score)
	}
	if got := outcome.Artifacts[ArtifactCutCount]; got != len(assembler.cuts) {
		t.Errorf("cut count artifact = %v", got)
	}
}

func TestRenderHonorsTimingScale(t *testing.T) {
	assembler := &fakeAssembler{duration: 54}
	render := NewRender(assembler, RenderConfig{}, nil)

	xchg := renderedExchange(t)
	xchg.Tuning.TimingScale = 0.5
	if _, err := render.Execute(context.Background(), xchg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	total := 0.0
	for _, cut := range assembler.cuts {
		total += cut.EndSec - cut.StartSec
	}
	if math.Abs(total-30) > 1 {
		t.Errorf("scaled cut total = %.2f, want about 30", total)
	}
}

func TestRenderRequiresArtifacts(t *testing.T) {
	render := NewRender(&fakeAssembler{}, RenderConfig{}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	_, err := render.Execute(context.Background(), xchg)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestPlanCutsSnapsToScenes(t *testing.T) {
	// 600s source, 60s target: five windows inside the usable span with one
	// segment each. A scene near a window center should become that
	// segment's start.
	scenes := []float64{75.0}
	cuts := planCuts(scenes, 600, 60)
	if len(cuts) != 5 {
		t.Fatalf("cuts = %d, want 5", len(cuts))
	}
	found := false
	for _, cut := range cuts {
		if cut.StartSec == 75.0 {
			found = true
		}
	}
	if !found {
		t.Errorf("no cut snapped to the scene change: %+v", cuts)
	}
}

func TestPlanCutsWithoutScenesSpacesEvenly(t *testing.T) {
	cuts := planCuts(nil, 600, 60)
	if len(cuts) != 5 {
		t.Fatalf("cuts = %d, want 5", len(cuts))
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i].StartSec <= cuts[i-1].EndSec {
			t.Errorf("cuts overlap: %+v then %+v", cuts[i-1], cuts[i])
		}
	}
}

func TestPlanCutsBoundsSegmentCount(t *testing.T) {
	if got := len(planCuts(nil, 600, 10)); got != minCuts {
		t.Errorf("short target cuts = %d, want floor %d", got, minCuts)
	}
	if got := len(planCuts(nil, 7200, 600)); got != maxCuts {
		t.Errorf("long target cuts = %d, want cap %d", got, maxCuts)
	}
	if got := planCuts(nil, 0, 60); got != nil {
		t.Errorf("zero source should plan nothing, got %v", got)
	}
}

func TestAlignmentScore(t *testing.T) {
	cuts := []ffmpegx.Cut{{StartSec: 0, EndSec: 15}, {StartSec: 100, EndSec: 115}}
	// Boundaries at 15 and 30 in the recap timeline.
	if got := alignmentScore(cuts, []float64{15, 30}); got != 1 {
		t.Errorf("perfect alignment = %v, want 1", got)
	}
	if got := alignmentScore(cuts, []float64{17.5, 27.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("offset alignment = %v, want 0.5", got)
	}
	if got := alignmentScore(cuts, []float64{90}); got != 0 {
		t.Errorf("beats beyond recap = %v, want 0", got)
	}
	if got := alignmentScore(nil, []float64{1}); got != 0 {
		t.Errorf("no cuts = %v, want 0", got)
	}
}
