package daemon

import (
	"fmt"
	"log/slog"

	"recast/internal/candidates"
	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/language"
	"recast/internal/pipeline"
	"recast/internal/preflight"
	"recast/internal/services/ffmpegx"
	"recast/internal/services/gemini"
	"recast/internal/services/speech"
	"recast/internal/services/telegram"
	"recast/internal/services/youtube"
	"recast/internal/services/ytdlp"
	"recast/internal/services/zthumb"
	"recast/internal/steps"
)

// clients bundles the external service clients the daemon builds once and
// shares between the step executors and the preflight checks.
type clients struct {
	gemini   *gemini.Client
	speech   *speech.Client
	youtube  *youtube.Client
	zthumb   *zthumb.Client
	telegram *telegram.Client
	ytdlp    *ytdlp.Client
	ffmpeg   *ffmpegx.Client
}

func buildClients(cfg *config.Config, logger *slog.Logger) (*clients, error) {
	yt, err := youtube.New(youtube.Config{
		APIKey:         cfg.YouTube.APIKey,
		UploadToken:    cfg.YouTube.UploadToken,
		BaseURL:        cfg.YouTube.BaseURL,
		UploadBaseURL:  cfg.YouTube.UploadBaseURL,
		TimeoutSeconds: cfg.YouTube.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}

	zthumbCfg := zthumb.Config{
		BaseURL:        cfg.ZThumb.URL,
		Batch:          cfg.ZThumb.Batch,
		Steps:          cfg.ZThumb.Steps,
		CFG:            cfg.ZThumb.CFG,
		TimeoutSeconds: cfg.ZThumb.TimeoutSeconds,
	}
	if !cfg.ZThumb.Enabled {
		// An unset base URL keeps the client disabled so the thumbnail step
		// falls back to frame extraction.
		zthumbCfg.BaseURL = ""
	}

	return &clients{
		gemini: gemini.New(gemini.Config{
			APIKey:         cfg.Gemini.APIKey,
			BaseURL:        cfg.Gemini.BaseURL,
			Model:          cfg.Gemini.Model,
			Language:       cfg.Gemini.Language,
			TargetMinutes:  cfg.Gemini.TargetMinutes,
			TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		}),
		speech: speech.New(speech.Config{
			APIKey:         cfg.Speech.APIKey,
			Region:         cfg.Speech.Region,
			Locale:         cfg.Speech.Locale,
			Voice:          cfg.Speech.Voice,
			Rate:           cfg.Speech.Rate,
			Pitch:          cfg.Speech.Pitch,
			OutputFormat:   cfg.Speech.OutputFormat,
			TimeoutSeconds: cfg.Speech.TimeoutSeconds,
		}),
		youtube: yt,
		zthumb:  zthumb.New(zthumbCfg),
		telegram: telegram.New(telegram.Config{
			BotToken:       cfg.Telegram.BotToken,
			TimeoutSeconds: cfg.Telegram.TimeoutSeconds,
		}),
		ytdlp: ytdlp.New(
			ytdlp.WithBinary(cfg.YtDlpBinary()),
			ytdlp.WithLogger(logger),
		),
		ffmpeg: ffmpegx.New(
			ffmpegx.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
			ffmpegx.WithLogger(logger),
		),
	}, nil
}

// buildSteps assembles the concrete step executors over the shared clients.
func buildSteps(cfg *config.Config, store *jobs.Store, c *clients, logger *slog.Logger) pipeline.StepSet {
	selector := candidates.NewYouTubeSelector(c.youtube,
		candidates.WithLogger(logger),
		candidates.WithExcluder(store.HasSucceededForVideo),
	)

	return pipeline.StepSet{
		Discover: steps.NewDiscover(selector, steps.DiscoverConfig{
			ProfilesDir:    cfg.Discovery.ProfilesDir,
			DefaultProfile: cfg.Discovery.DefaultProfile,
			MaxCandidates:  cfg.Discovery.MaxCandidates,
		}, logger),
		Ingest: steps.NewIngest(c.ytdlp, c.ffmpeg, c.gemini, c.youtube, logger),
		Script: steps.NewScript(c.gemini, logger),
		Voice: steps.NewVoice(c.speech, c.ffmpeg, steps.VoiceConfig{
			Rate:       cfg.Speech.Rate,
			Pitch:      cfg.Speech.Pitch,
			TargetLUFS: cfg.Speech.TargetLUFS,
		}, logger),
		Render:    steps.NewRender(c.ffmpeg, steps.RenderConfig{}, logger),
		Thumbnail: steps.NewThumbnail(c.zthumb, c.ffmpeg, logger),
		Upload: steps.NewUpload(c.youtube, steps.UploadConfig{
			CategoryID:      cfg.YouTube.CategoryID,
			DefaultPrivacy:  cfg.YouTube.PrivacyStatus,
			DefaultLanguage: language.Base(cfg.Speech.Locale),
			PlaylistID:      cfg.YouTube.PlaylistID,
			OutputDir:       cfg.Paths.OutputDir,
		}, logger),
		Distribute: steps.NewDistribute(c.telegram, c.youtube, steps.DistributeConfig{
			TelegramChannelID: cfg.Telegram.ChannelID,
		}, logger),
	}
}

// preflightDeps exposes the shared clients to the preflight checks so probes
// exercise the same instances the steps will use.
func preflightDeps(store *jobs.Store, c *clients) preflight.Deps {
	return preflight.Deps{
		Store:    store,
		Gemini:   c.gemini,
		Speech:   c.speech,
		YouTube:  c.youtube,
		ZThumb:   c.zthumb,
		Telegram: c.telegram,
	}
}
