package steps

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/ffmpegx"
	"recast/internal/step"
)

const (
	defaultTargetLUFS = -14.0
	defaultRate       = "-5%"
	defaultPitch      = "-10%"

	// clippingCeiling is the volumedetect peak above which narration counts
	// as clipped.
	clippingCeiling = -0.1
	// silenceNoiseDB and silenceMinSeconds parameterize the dead-air check;
	// more than maxSilences long gaps costs score.
	silenceNoiseDB    = -50.0
	silenceMinSeconds = 3.0
	maxSilences       = 2
)

// Synthesizer renders narration text to audio. *speech.Client satisfies it.
type Synthesizer interface {
	SynthesizeWith(ctx context.Context, text, rate, pitch string) ([]byte, error)
}

// AudioProcessor covers the ffmpeg work the voice step needs.
// *ffmpegx.Client satisfies it.
type AudioProcessor interface {
	Concat(ctx context.Context, parts []string, output string) error
	ProcessNarration(ctx context.Context, input, output string) error
	MeasureLoudness(ctx context.Context, path string, target float64) (ffmpegx.Loudness, error)
	Normalize(ctx context.Context, input, output string, target float64, measured *ffmpegx.Loudness) error
	MaxVolume(ctx context.Context, path string) (float64, error)
	CountSilences(ctx context.Context, path string, noiseDB, minSeconds float64) (int, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// VoiceConfig carries narration synthesis settings.
type VoiceConfig struct {
	Rate       string
	Pitch      string
	TargetLUFS float64
}

// Voice synthesizes the narration per script beat, assembles and cleans the
// audio, normalizes loudness, and scores the result: distance from the
// loudness target, clipping, and dead air all cost points.
type Voice struct {
	tts    Synthesizer
	audio  AudioProcessor
	cfg    VoiceConfig
	logger *slog.Logger
}

// NewVoice builds the voice step.
func NewVoice(tts Synthesizer, audio AudioProcessor, cfg VoiceConfig, logger *slog.Logger) *Voice {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Rate == "" {
		cfg.Rate = defaultRate
	}
	if cfg.Pitch == "" {
		cfg.Pitch = defaultPitch
	}
	if cfg.TargetLUFS == 0 {
		cfg.TargetLUFS = defaultTargetLUFS
	}
	return &Voice{tts: tts, audio: audio, cfg: cfg, logger: logger}
}

func (v *Voice) Name() string { return jobs.StepVoice }

func (v *Voice) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	script, err := scriptArtifact(xchg)
	if err != nil {
		return step.Outcome{}, err
	}
	parts := script.Parts()
	if len(parts) == 0 {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepVoice, "load script",
			"script has no narration beats", nil)
	}

	voiceDir := filepath.Join(xchg.WorkDir, "voice")
	if err := os.MkdirAll(voiceDir, 0o755); err != nil {
		return step.Outcome{}, services.Wrap(services.ErrExternalTool, jobs.StepVoice, "prepare workspace",
			"create voice directory", err)
	}

	rate := shiftPercent(v.cfg.Rate, xchg.Tuning.RatePercent)
	pitch := shiftPercent(v.cfg.Pitch, xchg.Tuning.PitchPercent)

	partPaths := make([]string, 0, len(parts))
	beats := make([]float64, 0, len(parts))
	elapsed := 0.0
	for index, text := range parts {
		audio, err := v.tts.SynthesizeWith(ctx, text, rate, pitch)
		if err != nil {
			return step.Outcome{}, err
		}
		partPath := filepath.Join(voiceDir, fmt.Sprintf("part_%03d.wav", index))
		if err := os.WriteFile(partPath, audio, 0o644); err != nil {
			return step.Outcome{}, services.Wrap(services.ErrExternalTool, jobs.StepVoice, "synthesize",
				"write narration part", err)
		}
		partPaths = append(partPaths, partPath)

		partDuration, err := v.audio.Duration(ctx, partPath)
		if err != nil {
			return step.Outcome{}, err
		}
		elapsed += partDuration
		beats = append(beats, elapsed)
	}

	rawPath := filepath.Join(voiceDir, "narration_raw.wav")
	if err := v.audio.Concat(ctx, partPaths, rawPath); err != nil {
		return step.Outcome{}, err
	}
	processedPath := filepath.Join(voiceDir, "narration_processed.wav")
	if err := v.audio.ProcessNarration(ctx, rawPath, processedPath); err != nil {
		return step.Outcome{}, err
	}

	measured, err := v.audio.MeasureLoudness(ctx, processedPath, v.cfg.TargetLUFS)
	if err != nil {
		return step.Outcome{}, err
	}
	finalPath := filepath.Join(voiceDir, "narration.wav")
	if err := v.audio.Normalize(ctx, processedPath, finalPath, v.cfg.TargetLUFS, &measured); err != nil {
		return step.Outcome{}, err
	}

	achieved, err := v.audio.MeasureLoudness(ctx, finalPath, v.cfg.TargetLUFS)
	if err != nil {
		return step.Outcome{}, err
	}
	peak, err := v.audio.MaxVolume(ctx, finalPath)
	if err != nil {
		return step.Outcome{}, err
	}
	silences, err := v.audio.CountSilences(ctx, finalPath, silenceNoiseDB, silenceMinSeconds)
	if err != nil {
		return step.Outcome{}, err
	}
	duration, err := v.audio.Duration(ctx, finalPath)
	if err != nil {
		return step.Outcome{}, err
	}

	score := narrationScore(achieved.InputI, v.cfg.TargetLUFS, peak, silences)
	v.logger.Info("narration assembled",
		logging.String(logging.FieldJobID, xchg.JobID),
		logging.Int("beats", len(parts)),
		logging.Float64("duration_sec", duration),
		logging.Float64("lufs", achieved.InputI),
		logging.Float64("peak_db", peak),
		logging.Int("silences", silences),
		logging.Float64("score", score))

	return step.Outcome{
		Score: &score,
		Artifacts: map[string]any{
			ArtifactNarrationPath:     finalPath,
			ArtifactNarrationDuration: duration,
			ArtifactNarrationBeats:    beats,
			ArtifactMeasuredLUFS:      achieved.InputI,
			ArtifactNarrationPeakDB:   peak,
			ArtifactSilenceCount:      silences,
		},
	}, nil
}

// narrationScore starts from 100 and deducts for loudness distance from the
// target (10 points per LUFS, capped at 50), clipping, and dead air.
func narrationScore(lufs, target, peak float64, silences int) float64 {
	score := 100.0
	score -= math.Min(50, math.Abs(lufs-target)*10)
	if peak >= clippingCeiling {
		score -= 30
	}
	if silences > maxSilences {
		score -= 20
	}
	if score < 0 {
		return 0
	}
	return score
}

// shiftPercent applies a tuning delta to a prosody percentage, so "-5%"
// shifted by -2 becomes "-7%".
func shiftPercent(base string, delta int) string {
	value, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(base), "%"))
	if err != nil {
		value = 0
	}
	return fmt.Sprintf("%+d%%", value+delta)
}
