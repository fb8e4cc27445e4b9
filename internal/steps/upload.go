package steps

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"recast/internal/fileutil"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/youtube"
	"recast/internal/step"
	"recast/internal/textutil"
)

// VideoPublisher uploads the finished recap. *youtube.Client satisfies it.
type VideoPublisher interface {
	CanUpload() bool
	UploadVideo(ctx context.Context, params youtube.UploadParams) (string, error)
	SetThumbnail(ctx context.Context, videoID, imagePath string) error
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// UploadConfig carries publication settings.
type UploadConfig struct {
	CategoryID     string
	DefaultPrivacy string
	// DefaultLanguage is the snippet language, the base subtag of the
	// narration locale.
	DefaultLanguage string
	PlaylistID      string
	// OutputDir receives a copy of the finished recap before upload so the
	// artifact survives workspace cleanup. Empty disables the copy.
	OutputDir string
}

// Upload publishes the recap to YouTube with the generated metadata. Dry-run
// jobs stop short of the network and record a stub result. Thumbnail and
// playlist placement are best-effort once the video itself is up.
type Upload struct {
	publisher VideoPublisher
	cfg       UploadConfig
	logger    *slog.Logger
}

// NewUpload builds the upload step.
func NewUpload(publisher VideoPublisher, cfg UploadConfig, logger *slog.Logger) *Upload {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.DefaultPrivacy == "" {
		cfg.DefaultPrivacy = "private"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "am"
	}
	return &Upload{publisher: publisher, cfg: cfg, logger: logger}
}

func (u *Upload) Name() string { return jobs.StepUpload }

func (u *Upload) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	recapPath := xchg.StringArtifact(ArtifactRecapPath)
	if recapPath == "" {
		return step.Outcome{}, services.Wrap(services.ErrValidation, jobs.StepUpload, "load artifacts",
			"no recap artifact on exchange", nil)
	}

	artifacts := map[string]any{}
	if outputPath := u.copyToOutput(xchg, recapPath); outputPath != "" {
		artifacts[ArtifactOutputPath] = outputPath
	}

	if xchg.Request.DryRun {
		u.logger.Info("dry run, skipping upload", logging.String(logging.FieldJobID, xchg.JobID))
		artifacts[ArtifactYouTubeVideoID] = "dry-run"
		return step.Outcome{Artifacts: artifacts}, nil
	}
	if !u.publisher.CanUpload() {
		return step.Outcome{}, services.Wrap(services.ErrConfiguration, jobs.StepUpload, "upload",
			"upload credentials not configured", nil)
	}

	privacy := xchg.Request.Privacy
	if privacy == "" {
		privacy = u.cfg.DefaultPrivacy
	}
	videoID, err := u.publisher.UploadVideo(ctx, youtube.UploadParams{
		FilePath:        recapPath,
		Title:           uploadTitle(xchg),
		Description:     xchg.StringArtifact(ArtifactVideoDescription),
		Tags:            stringsArtifact(xchg, ArtifactVideoTags),
		CategoryID:      u.cfg.CategoryID,
		PrivacyStatus:   privacy,
		DefaultLanguage: u.cfg.DefaultLanguage,
	})
	if err != nil {
		return step.Outcome{}, err
	}
	u.logger.Info("video uploaded",
		logging.String(logging.FieldJobID, xchg.JobID),
		logging.String("youtube_id", videoID),
		logging.String("privacy", privacy))

	// The video exists from here on; decoration failures must not undo it.
	if thumbnail := xchg.StringArtifact(ArtifactThumbnailPath); thumbnail != "" {
		if err := u.publisher.SetThumbnail(ctx, videoID, thumbnail); err != nil {
			u.logger.Warn("set thumbnail failed",
				logging.String(logging.FieldJobID, xchg.JobID),
				logging.String("youtube_id", videoID),
				logging.Error(err))
		}
	}
	if u.cfg.PlaylistID != "" {
		if err := u.publisher.AddToPlaylist(ctx, u.cfg.PlaylistID, videoID); err != nil {
			u.logger.Warn("playlist insert failed",
				logging.String(logging.FieldJobID, xchg.JobID),
				logging.String("playlist_id", u.cfg.PlaylistID),
				logging.Error(err))
		}
	}

	artifacts[ArtifactYouTubeVideoID] = videoID
	artifacts[ArtifactYouTubeURL] = "https://www.youtube.com/watch?v=" + videoID
	return step.Outcome{Artifacts: artifacts}, nil
}

// uploadTitle picks the best available title: the generated metadata first,
// then the source title, then the subject hint. The mechanical fallbacks
// are title-cased; the generated title is used verbatim.
func uploadTitle(xchg *step.Exchange) string {
	if title := xchg.StringArtifact(ArtifactVideoTitle); title != "" {
		return title
	}
	caser := cases.Title(language.Und)
	if source := xchg.StringArtifact(ArtifactSourceTitle); source != "" {
		return fmt.Sprintf("%s (Amharic Recap)", caser.String(source))
	}
	if subject := strings.TrimSpace(xchg.Request.Subject); subject != "" {
		return fmt.Sprintf("%s (Amharic Recap)", caser.String(subject))
	}
	return "Amharic Movie Recap"
}

// copyToOutput places the finished recap, and its thumbnail when one was
// generated, in the output directory. Neither copy is worth failing the job
// over when the upload itself can proceed.
func (u *Upload) copyToOutput(xchg *step.Exchange, recapPath string) string {
	if u.cfg.OutputDir == "" {
		return ""
	}
	outputPath := filepath.Join(u.cfg.OutputDir, outputName(xchg))
	if err := fileutil.CopyVerified(recapPath, outputPath); err != nil {
		u.logger.Warn("output copy failed",
			logging.String(logging.FieldJobID, xchg.JobID),
			logging.String("path", outputPath),
			logging.Error(err))
		return ""
	}
	if thumbnail := xchg.StringArtifact(ArtifactThumbnailPath); thumbnail != "" {
		thumbPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + filepath.Ext(thumbnail)
		if err := fileutil.Copy(thumbnail, thumbPath); err != nil {
			u.logger.Warn("thumbnail copy failed",
				logging.String(logging.FieldJobID, xchg.JobID),
				logging.String("path", thumbPath),
				logging.Error(err))
		}
	}
	return outputPath
}

// outputName derives the published file name from the source title when one
// exists, then the subject video ID, then the job ID.
func outputName(xchg *step.Exchange) string {
	if title := textutil.SanitizeFileName(xchg.StringArtifact(ArtifactSourceTitle)); title != "" {
		return fmt.Sprintf("%s-recap.mp4", title)
	}
	if id := xchg.SubjectID(); id != "" {
		return fmt.Sprintf("%s-recap.mp4", id)
	}
	return fmt.Sprintf("%s-recap.mp4", xchg.JobID)
}
