package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"recast/internal/api"
	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/pipeline"
	"recast/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Version  string
}

// Run starts the recast daemon runtime loop and blocks until SIGINT or
// SIGTERM (or the passed context) shuts it down.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("recast-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update recast.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "recast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	serviceClients, err := buildClients(cfg, logger)
	if err != nil {
		return err
	}
	checkDeps := preflightDeps(store, serviceClients)

	manager := pipeline.New(cfg, store, logger,
		pipeline.WithPreflight(preflight.AsFunc(cfg, checkDeps)))
	manager.ConfigureSteps(buildSteps(cfg, store, serviceClients, logger))

	svc := api.New(api.Options{
		Store:   store,
		Manager: manager,
		Preflight: func(ctx context.Context) []preflight.Check {
			return preflight.Run(ctx, cfg, checkDeps)
		},
		Version: opts.Version,
		Token:   cfg.API.Token,
		Logger:  logger,
	})

	d, err := New(cfg, store, logger, manager, newAPIServer(cfg, svc, logger))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("recast daemon shutting down")
	return nil
}

// ensureCurrentLogPointer keeps <logdir>/recast.log pointing at the current
// run's log file.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "recast.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ytdlpBin := cfg.YtDlpBinary()
	ffmpegBin := cfg.FFmpegBinary()
	ffprobeBin := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.Bool("gemini_key_present", strings.TrimSpace(cfg.Gemini.APIKey) != ""),
		logging.Bool("speech_key_present", strings.TrimSpace(cfg.Speech.APIKey) != ""),
		logging.Bool("youtube_key_present", strings.TrimSpace(cfg.YouTube.APIKey) != ""),
		logging.Bool("upload_token_present", strings.TrimSpace(cfg.YouTube.UploadToken) != ""),
		logging.Bool("ytdlp_available", binaryAvailable(ytdlpBin)),
		logging.String("ytdlp_binary", ytdlpBin),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpegBin)),
		logging.String("ffmpeg_binary", ffmpegBin),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobeBin)),
		logging.String("ffprobe_binary", ffprobeBin),
		logging.Bool("zthumb_enabled", cfg.ZThumb.Enabled),
		logging.Bool("telegram_configured", strings.TrimSpace(cfg.Telegram.BotToken) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
