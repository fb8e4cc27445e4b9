package steps

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/ffmpegx"
	"recast/internal/step"
)

const (
	defaultSceneThreshold = 0.4

	// Cut planning: aim for segments around 15 seconds, between 4 and 16 of
	// them, drawn from the source with the cold open and credits excluded.
	targetSegmentSeconds = 15.0
	minCuts              = 4
	maxCuts              = 16
	introSkipFraction    = 0.03
	creditsSkipFraction  = 0.05

	// alignmentWindow is the denominator of the timing score: an average
	// beat-to-cut distance at or past this many seconds scores zero.
	alignmentWindow = 5.0
)

// VideoAssembler covers the ffmpeg work the render step needs.
// *ffmpegx.Client satisfies it.
type VideoAssembler interface {
	DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error)
	RenderRecap(ctx context.Context, videoPath, narrationPath, output string, cuts []ffmpegx.Cut) error
	Duration(ctx context.Context, path string) (float64, error)
}

// RenderConfig carries recap assembly settings.
type RenderConfig struct {
	SceneThreshold float64
}

// Render plans recap cuts from scene changes, assembles them against the
// narration, and scores how well cut boundaries land on narration beats.
type Render struct {
	video  VideoAssembler
	cfg    RenderConfig
	logger *slog.Logger
}

// NewRender builds the render step.
func NewRender(video VideoAssembler, cfg RenderConfig, logger *slog.Logger) *Render {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.SceneThreshold <= 0 {
		cfg.SceneThreshold = defaultSceneThreshold
	}
	return &Render{video: video, cfg: cfg, logger: logger}
}

func (r *Render) Name() string { return jobs.StepRender }

func (r *Render) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	sourcePath := xchg.StringArtifact(ArtifactSourcePath)
	narrationPath := xchg.StringArtifact(ArtifactNarrationPath)
	if sourcePath == "" || narrationPath == "" {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepRender, "load artifacts",
			"missing source or narration artifact", nil)
	}
	narrationDur, ok := xchg.FloatArtifact(ArtifactNarrationDuration)
	if !ok || narrationDur <= 0 {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepRender, "load artifacts",
			"missing narration duration", nil)
	}
	sourceDur, ok := xchg.FloatArtifact(ArtifactSourceDurationSec)
	if !ok || sourceDur <= 0 {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepRender, "load artifacts",
			"missing source duration", nil)
	}

	scenes, err := r.video.DetectScenes(ctx, sourcePath, r.cfg.SceneThreshold)
	if err != nil {
		return step.Outcome{}, err
	}

	scale := xchg.Tuning.TimingScale
	if scale <= 0 {
		scale = 1
	}
	cuts := planCuts(scenes, sourceDur, narrationDur*scale)
	if len(cuts) == 0 {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepRender, "plan cuts",
			"source too short to cover narration", nil)
	}

	renderDir := filepath.Join(xchg.WorkDir, "render")
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return step.Outcome{}, services.Wrap(services.ErrExternalTool, jobs.StepRender, "prepare workspace",
			"create render directory", err)
	}
	recapPath := filepath.Join(renderDir, "recap.mp4")
	if err := r.video.RenderRecap(ctx, sourcePath, narrationPath, recapPath, cuts); err != nil {
		return step.Outcome{}, err
	}

	recapDur, err := r.video.Duration(ctx, recapPath)
	if err != nil {
		return step.Outcome{}, err
	}

	score := alignmentScore(cuts, floatsArtifact(xchg, ArtifactNarrationBeats))
	r.logger.Info("recap rendered",
		logging.String(logging.FieldJobID, xchg.JobID),
		logging.Int("cuts", len(cuts)),
		logging.Int("scenes", len(scenes)),
		logging.Float64("duration_sec", recapDur),
		logging.Float64("alignment", score))

	return step.Outcome{
		Score: &score,
		Artifacts: map[string]any{
			ArtifactRecapPath:      recapPath,
			ArtifactCutCount:       len(cuts),
			ArtifactAlignmentScore: score,
		},
	}, nil
}

// planCuts selects source intervals totaling roughly targetSeconds. The
// source is divided into equal windows, skipping the opening and the
// credits; each window contributes one segment starting at the scene change
// nearest its center, or at the window start when no scene lands inside.
func planCuts(scenes []float64, sourceDur, targetSeconds float64) []ffmpegx.Cut {
	if targetSeconds <= 0 || sourceDur <= 0 {
		return nil
	}
	count := int(targetSeconds/targetSegmentSeconds) + 1
	if count < minCuts {
		count = minCuts
	}
	if count > maxCuts {
		count = maxCuts
	}

	usableStart := sourceDur * introSkipFraction
	usableEnd := sourceDur * (1 - creditsSkipFraction)
	if usableEnd-usableStart < targetSeconds {
		usableStart, usableEnd = 0, sourceDur
	}
	span := usableEnd - usableStart
	if span <= 0 {
		return nil
	}

	windowWidth := span / float64(count)
	segLen := targetSeconds / float64(count)
	if segLen > windowWidth {
		segLen = windowWidth
	}

	cuts := make([]ffmpegx.Cut, 0, count)
	for i := 0; i < count; i++ {
		windowStart := usableStart + float64(i)*windowWidth
		windowEnd := windowStart + windowWidth
		latestStart := windowEnd - segLen

		start := nearestScene(scenes, windowStart+windowWidth/2, windowStart, latestStart)
		end := start + segLen
		if end > usableEnd {
			end = usableEnd
		}
		if end-start < 0.5 {
			continue
		}
		cuts = append(cuts, ffmpegx.Cut{StartSec: start, EndSec: end})
	}
	return cuts
}

// nearestScene picks the scene timestamp closest to the anchor within
// [low, high], or low when no scene qualifies.
func nearestScene(scenes []float64, anchor, low, high float64) float64 {
	best := low
	bestDist := math.Inf(1)
	for _, scene := range scenes {
		if scene < low || scene > high {
			continue
		}
		if dist := math.Abs(scene - anchor); dist < bestDist {
			best = scene
			bestDist = dist
		}
	}
	return best
}

// alignmentScore measures how closely cut boundaries in the recap timeline
// track the narration beats: max(0, 1 - avgDistance/alignmentWindow).
func alignmentScore(cuts []ffmpegx.Cut, beats []float64) float64 {
	if len(cuts) == 0 || len(beats) == 0 {
		return 0
	}
	boundaries := make([]float64, 0, len(cuts))
	elapsed := 0.0
	for _, cut := range cuts {
		elapsed += cut.EndSec - cut.StartSec
		boundaries = append(boundaries, elapsed)
	}
	total := boundaries[len(boundaries)-1]

	sum := 0.0
	counted := 0
	for _, beat := range beats {
		if beat > total {
			break
		}
		nearest := math.Inf(1)
		for _, boundary := range boundaries {
			if dist := math.Abs(boundary - beat); dist < nearest {
				nearest = dist
			}
		}
		sum += nearest
		counted++
	}
	if counted == 0 {
		return 0
	}
	avg := sum / float64(counted)
	score := 1 - avg/alignmentWindow
	if score < 0 {
		return 0
	}
	return score
}
