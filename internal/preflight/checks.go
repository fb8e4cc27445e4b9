package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"recast/internal/config"
	"recast/internal/deps"
	"recast/internal/jobs"
	"recast/internal/language"
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/services/httpx"
	"recast/internal/services/speech"
	"recast/internal/services/telegram"
	"recast/internal/services/youtube"
	"recast/internal/services/zthumb"
)

// checkTimeout bounds each remote probe. Probes run a single attempt with no
// retries; a slow service should fail the check, not stall it.
const checkTimeout = 15 * time.Second

// CheckConfig re-validates the loaded configuration.
func CheckConfig(cfg *config.Config) Check {
	const name = "configuration"
	if err := cfg.Validate(); err != nil {
		return Check{Name: name, Detail: err.Error()}
	}
	return Check{Name: name, Passed: true, Detail: "valid"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStore verifies the job database opens, has its schema, and passes an
// integrity check. A nil store opens (and closes) one from the config.
func CheckStore(ctx context.Context, cfg *config.Config, store *jobs.Store) Check {
	const name = "job store"
	if store == nil {
		opened, err := jobs.Open(cfg)
		if err != nil {
			return Check{Name: name, Detail: fmt.Sprintf("open: %v", err)}
		}
		defer opened.Close()
		store = opened
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Check{Name: name, Detail: err.Error()}
	}
	if health.Error != "" {
		return Check{Name: name, Detail: health.Error}
	}
	if !health.DatabaseExists {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", health.DBPath)}
	}
	if !health.TableExists {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: jobs table missing)", health.DBPath)}
	}
	if !health.IntegrityCheck {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: integrity check failed)", health.DBPath)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d jobs)", health.DBPath, health.TotalJobs)}
}

// CheckBinaries reports the external tools the pipeline shells out to.
// Available binaries show their probed version as detail.
func CheckBinaries(ctx context.Context, cfg *config.Config) []Check {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "yt-dlp", Command: cfg.YtDlpBinary(), Description: "source video and caption download"},
		{Name: "ffmpeg", Command: cfg.FFmpegBinary(), Description: "narration processing and recap assembly"},
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "media inspection"},
	})

	checks := make([]Check, 0, len(statuses))
	for _, status := range statuses {
		check := Check{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			check.Detail = status.Command
			if version := deps.Version(ctx, status.Command, versionArgs(status.Name)...); version != "" {
				check.Detail = version
			}
		}
		checks = append(checks, check)
	}
	return checks
}

func versionArgs(name string) []string {
	if name == "yt-dlp" {
		return []string{"--version"}
	}
	return []string{"-version"}
}

// CheckGemini verifies the script model is reachable with the configured key.
func CheckGemini(ctx context.Context, cfg *config.Config, client *gemini.Client) Check {
	const name = "gemini"
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return Check{Name: name, Detail: "api key missing"}
	}
	if client == nil {
		client = gemini.New(gemini.Config{
			APIKey:         cfg.Gemini.APIKey,
			BaseURL:        cfg.Gemini.BaseURL,
			Model:          cfg.Gemini.Model,
			TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		}, gemini.WithHTTPOptions(httpx.WithRetryMaxAttempts(1)))
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Check{Name: name, Detail: summarizeError(err)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("model %s reachable", client.Model())}
}

// CheckSpeech verifies the synthesis key works and the configured narration
// voice exists in the region's voice list.
func CheckSpeech(ctx context.Context, cfg *config.Config, client *speech.Client) Check {
	const name = "speech synthesis"
	if strings.TrimSpace(cfg.Speech.APIKey) == "" {
		return Check{Name: name, Detail: "api key missing"}
	}
	if client == nil {
		client = speech.New(speech.Config{
			APIKey:         cfg.Speech.APIKey,
			Region:         cfg.Speech.Region,
			Locale:         cfg.Speech.Locale,
			Voice:          cfg.Speech.Voice,
			TimeoutSeconds: cfg.Speech.TimeoutSeconds,
		}, speech.WithHTTPOptions(httpx.WithRetryMaxAttempts(1)))
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Check{Name: name, Detail: summarizeError(err)}
	}
	if lang := language.DisplayName(cfg.Speech.Locale); lang != "" {
		return Check{Name: name, Passed: true, Detail: fmt.Sprintf("voice %s (%s) available", client.Voice(), lang)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("voice %s available", client.Voice())}
}

// CheckZThumb verifies the thumbnail server reports a ready backend.
func CheckZThumb(ctx context.Context, cfg *config.Config, client *zthumb.Client) Check {
	const name = "thumbnail server"
	if client == nil {
		client = zthumb.New(zthumb.Config{
			BaseURL:        cfg.ZThumb.URL,
			TimeoutSeconds: cfg.ZThumb.TimeoutSeconds,
		}, zthumb.WithHTTPOptions(httpx.WithRetryMaxAttempts(1)))
	}
	if !client.Enabled() {
		return Check{Name: name, Detail: "url missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	health, err := client.HealthCheck(checkCtx)
	if err != nil {
		return Check{Name: name, Detail: summarizeError(err)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("ready (backend %s)", health.Backend)}
}

// CheckYouTube verifies the Data API key works. The detail notes whether an
// upload token is present; discovery-only setups run without one.
func CheckYouTube(ctx context.Context, cfg *config.Config, client *youtube.Client) Check {
	const name = "youtube"
	if strings.TrimSpace(cfg.YouTube.APIKey) == "" {
		return Check{Name: name, Detail: "api key missing"}
	}
	if client == nil {
		built, err := youtube.New(youtube.Config{
			APIKey:         cfg.YouTube.APIKey,
			UploadToken:    cfg.YouTube.UploadToken,
			BaseURL:        cfg.YouTube.BaseURL,
			UploadBaseURL:  cfg.YouTube.UploadBaseURL,
			TimeoutSeconds: cfg.YouTube.TimeoutSeconds,
		}, youtube.WithHTTPOptions(httpx.WithRetryMaxAttempts(1)))
		if err != nil {
			return Check{Name: name, Detail: err.Error()}
		}
		client = built
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Check{Name: name, Detail: summarizeError(err)}
	}
	if !client.CanUpload() {
		return Check{Name: name, Passed: true, Detail: "api reachable (upload token missing, uploads disabled)"}
	}
	return Check{Name: name, Passed: true, Detail: "api reachable, uploads enabled"}
}

// CheckTelegram verifies the bot token authenticates.
func CheckTelegram(ctx context.Context, cfg *config.Config, client *telegram.Client) Check {
	const name = "telegram"
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return Check{Name: name, Detail: "bot token missing"}
	}
	if client == nil {
		client = telegram.New(telegram.Config{
			BotToken:       cfg.Telegram.BotToken,
			TimeoutSeconds: cfg.Telegram.TimeoutSeconds,
		}, telegram.WithHTTPOptions(httpx.WithRetryMaxAttempts(1)))
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Check{Name: name, Detail: summarizeError(err)}
	}
	return Check{Name: name, Passed: true, Detail: "bot authenticated"}
}

// summarizeError produces a human-readable summary for probe failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return services.Message(err)
}
