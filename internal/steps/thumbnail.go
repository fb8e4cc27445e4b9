package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/zthumb"
	"recast/internal/step"
)

// framePointFraction is where in the source the fallback frame grab lands,
// far enough in to miss intros.
const framePointFraction = 0.25

// ThumbnailService generates thumbnail candidates. *zthumb.Client satisfies
// it.
type ThumbnailService interface {
	Enabled() bool
	Generate(ctx context.Context, prompt string) (zthumb.Result, error)
}

// FrameGrabber extracts a still from the source video. *ffmpegx.Client
// satisfies it.
type FrameGrabber interface {
	ExtractFrame(ctx context.Context, input string, atSec float64, output string) error
}

// Thumbnail produces the upload thumbnail: a generated image when the
// thumbnail service is up, otherwise a frame grabbed from the source.
type Thumbnail struct {
	generator ThumbnailService
	frames    FrameGrabber
	logger    *slog.Logger
}

// NewThumbnail builds the thumbnail step. generator may be nil to always
// use the frame fallback.
func NewThumbnail(generator ThumbnailService, frames FrameGrabber, logger *slog.Logger) *Thumbnail {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Thumbnail{generator: generator, frames: frames, logger: logger}
}

func (t *Thumbnail) Name() string { return jobs.StepThumbnail }

func (t *Thumbnail) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	thumbDir := filepath.Join(xchg.WorkDir, "thumbnail")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return step.Outcome{}, services.Wrap(services.ErrExternalTool, jobs.StepThumbnail, "prepare workspace",
			"create thumbnail directory", err)
	}
	outPath := filepath.Join(thumbDir, "thumbnail.png")

	if t.generator != nil && t.generator.Enabled() {
		err := t.generate(ctx, xchg, outPath)
		if err == nil {
			return step.Outcome{Artifacts: map[string]any{
				ArtifactThumbnailPath:   outPath,
				ArtifactThumbnailSource: "generated",
			}}, nil
		}
		t.logger.Warn("thumbnail generation failed, falling back to frame grab",
			logging.String(logging.FieldJobID, xchg.JobID),
			logging.Error(err))
	}

	if err := t.frameGrab(ctx, xchg, outPath); err != nil {
		return step.Outcome{}, err
	}
	return step.Outcome{Artifacts: map[string]any{
		ArtifactThumbnailPath:   outPath,
		ArtifactThumbnailSource: "frame",
	}}, nil
}

func (t *Thumbnail) generate(ctx context.Context, xchg *step.Exchange, outPath string) error {
	result, err := t.generator.Generate(ctx, thumbnailPrompt(xchg))
	if err != nil {
		return err
	}
	image, err := zthumb.DecodeImage(result.Images[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, jobs.StepThumbnail, "generate", "write thumbnail", err)
	}
	for _, warning := range result.Warnings {
		t.logger.Warn("thumbnail service warning",
			logging.String(logging.FieldJobID, xchg.JobID),
			logging.String("warning", warning))
	}
	return nil
}

func (t *Thumbnail) frameGrab(ctx context.Context, xchg *step.Exchange, outPath string) error {
	sourcePath := xchg.StringArtifact(ArtifactSourcePath)
	if sourcePath == "" {
		return services.Wrap(services.ErrValidation, jobs.StepThumbnail, "frame grab",
			"no source artifact on exchange", nil)
	}
	atSec := 30.0
	if duration, ok := xchg.FloatArtifact(ArtifactSourceDurationSec); ok && duration > 0 {
		atSec = duration * framePointFraction
	}
	return t.frames.ExtractFrame(ctx, sourcePath, atSec, outPath)
}

// thumbnailPrompt builds the generation prompt from the best title context
// available.
func thumbnailPrompt(xchg *step.Exchange) string {
	title := xchg.StringArtifact(ArtifactVideoTitle)
	if title == "" {
		title = xchg.StringArtifact(ArtifactSourceTitle)
	}
	if title == "" {
		title = xchg.Request.Subject
	}
	return fmt.Sprintf("cinematic YouTube thumbnail for a movie recap titled %q, "+
		"dramatic lighting, expressive character close-up, bold colors, high contrast, no text", title)
}
