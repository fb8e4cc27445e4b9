package steps

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services/youtube"
	"recast/internal/step"
)

// Messenger posts channel announcements. *telegram.Client satisfies it.
type Messenger interface {
	IsConfigured() bool
	SendMessage(ctx context.Context, chatID, text string) error
}

// StatsReader fetches early view counts. *youtube.Client satisfies it.
type StatsReader interface {
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
}

// DistributeConfig carries announcement settings.
type DistributeConfig struct {
	TelegramChannelID string
}

// Distribute announces the published recap on the configured channels and
// records the first metrics snapshot. With nothing configured the step is a
// no-op that succeeds, so single-platform setups work without ceremony.
type Distribute struct {
	messenger Messenger
	stats     StatsReader
	cfg       DistributeConfig
	logger    *slog.Logger
}

// NewDistribute builds the distribute step. messenger and stats may be nil.
func NewDistribute(messenger Messenger, stats StatsReader, cfg DistributeConfig, logger *slog.Logger) *Distribute {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Distribute{messenger: messenger, stats: stats, cfg: cfg, logger: logger}
}

func (d *Distribute) Name() string { return jobs.StepDistribute }

func (d *Distribute) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	platforms := []string{}
	artifacts := map[string]any{ArtifactPlatforms: platforms}

	if xchg.Request.DryRun {
		d.logger.Info("dry run, skipping distribution", logging.String(logging.FieldJobID, xchg.JobID))
		return step.Outcome{Artifacts: artifacts}, nil
	}

	videoID := xchg.StringArtifact(ArtifactYouTubeVideoID)
	url := xchg.StringArtifact(ArtifactYouTubeURL)

	if d.messenger != nil && d.messenger.IsConfigured() && d.cfg.TelegramChannelID != "" && url != "" {
		if err := d.messenger.SendMessage(ctx, d.cfg.TelegramChannelID, announcement(xchg, url)); err != nil {
			return step.Outcome{}, err
		}
		platforms = append(platforms, "telegram")
		d.logger.Info("recap announced",
			logging.String(logging.FieldJobID, xchg.JobID),
			logging.String("channel", d.cfg.TelegramChannelID))
	}
	artifacts[ArtifactPlatforms] = platforms

	if d.stats != nil && videoID != "" {
		video, err := d.stats.GetVideo(ctx, videoID)
		if err != nil {
			d.logger.Warn("early metrics fetch failed",
				logging.String(logging.FieldJobID, xchg.JobID),
				logging.Error(err))
		} else {
			artifacts[ArtifactInitialViews] = video.Views
		}
	}

	return step.Outcome{Artifacts: artifacts}, nil
}

// announcement formats the channel post: bold title above the watch link.
func announcement(xchg *step.Exchange, url string) string {
	title := xchg.StringArtifact(ArtifactVideoTitle)
	if title == "" {
		title = uploadTitle(xchg)
	}
	return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), url)
}
