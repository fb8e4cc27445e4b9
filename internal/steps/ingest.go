package steps

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/youtube"
	"recast/internal/services/ytdlp"
	"recast/internal/step"
)

// Downloader fetches source video and captions. *ytdlp.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, videoID, destDir string) (string, error)
	FetchSubtitles(ctx context.Context, videoID, destDir string) (*ytdlp.Transcript, error)
}

// MediaProber reads media durations. *ffmpegx.Client satisfies it.
type MediaProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// TranscriptCleaner tidies raw captions. *gemini.Client satisfies it.
type TranscriptCleaner interface {
	IsConfigured() bool
	CleanTranscript(ctx context.Context, raw string) (string, error)
}

// VideoLookup resolves title context for pinned subjects. *youtube.Client
// satisfies it.
type VideoLookup interface {
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
}

// Ingest downloads the subject video and prepares its transcript. A subject
// without captions cannot be recapped and is rejected so auto mode can move
// to the next candidate.
type Ingest struct {
	downloader Downloader
	prober     MediaProber
	cleaner    TranscriptCleaner
	lookup     VideoLookup
	logger     *slog.Logger
}

// NewIngest builds the ingest step. cleaner and lookup may be nil.
func NewIngest(downloader Downloader, prober MediaProber, cleaner TranscriptCleaner, lookup VideoLookup, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingest{downloader: downloader, prober: prober, cleaner: cleaner, lookup: lookup, logger: logger}
}

func (i *Ingest) Name() string { return jobs.StepIngest }

func (i *Ingest) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	subject := xchg.SubjectID()
	if subject == "" {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepIngest, "resolve subject",
			"no subject video on exchange", nil)
	}

	destDir := filepath.Join(xchg.WorkDir, "source")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return step.Outcome{}, services.Wrap(services.ErrExternalTool, jobs.StepIngest, "prepare workspace",
			"create source directory", err)
	}

	sourcePath, err := i.downloader.Download(ctx, subject, destDir)
	if err != nil {
		return step.Outcome{}, err
	}

	transcript, err := i.downloader.FetchSubtitles(ctx, subject, destDir)
	if err != nil {
		return step.Outcome{}, err
	}
	if transcript == nil {
		return step.Outcome{}, services.Wrap(services.ErrCandidateRejected, jobs.StepIngest, "fetch subtitles",
			"no transcript available", nil)
	}

	duration, err := i.prober.Duration(ctx, sourcePath)
	if err != nil {
		return step.Outcome{}, err
	}

	text := transcript.FullText()
	if i.cleaner != nil && i.cleaner.IsConfigured() {
		cleaned, err := i.cleaner.CleanTranscript(ctx, text)
		if err != nil {
			i.logger.Warn("transcript cleanup failed, using raw captions",
				logging.String(logging.FieldJobID, xchg.JobID),
				logging.Error(err))
		} else {
			text = cleaned
		}
	}

	title, channel := i.subjectContext(ctx, xchg, subject)

	return step.Outcome{Artifacts: map[string]any{
		ArtifactSourcePath:        sourcePath,
		ArtifactSourceDurationSec: duration,
		ArtifactTranscript:        text,
		ArtifactSourceTitle:       title,
		ArtifactSourceChannel:     channel,
	}}, nil
}

// subjectContext resolves the source title and channel: from the selected
// candidate in auto mode, from a metadata lookup for pinned subjects. The
// lookup is context for prompts, so failures degrade instead of erroring.
func (i *Ingest) subjectContext(ctx context.Context, xchg *step.Exchange, subject string) (title, channel string) {
	if xchg.Candidate != nil {
		return xchg.Candidate.Title, xchg.Candidate.ChannelTitle
	}
	if i.lookup == nil {
		return "", ""
	}
	video, err := i.lookup.GetVideo(ctx, subject)
	if err != nil {
		i.logger.Warn("subject metadata lookup failed",
			logging.String(logging.FieldJobID, xchg.JobID),
			logging.String("video_id", subject),
			logging.Error(err))
		return "", ""
	}
	return video.Title, video.ChannelTitle
}
