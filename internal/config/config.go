package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// API contains configuration for the daemon HTTP surface.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Pipeline contains orchestration settings.
type Pipeline struct {
	MaxConcurrentJobs   int    `toml:"max_concurrent_jobs"`
	StepRetries         int    `toml:"step_retries"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds"`
	PointOfNoRecovery   string `toml:"point_of_no_recovery"`
	KeepWorkspaces      bool   `toml:"keep_workspaces"`
}

// GateSettings holds one quality gate's threshold and attempt budget.
type GateSettings struct {
	Threshold   float64 `toml:"threshold"`
	MaxAttempts int     `toml:"max_attempts"`
}

// Gates contains the per-step quality gate settings.
type Gates struct {
	Script GateSettings `toml:"script"`
	Voice  GateSettings `toml:"voice"`
	Render GateSettings `toml:"render"`
}

// Steps contains per-step execution timeouts in seconds.
type Steps struct {
	DiscoverTimeout   int `toml:"discover_timeout"`
	IngestTimeout     int `toml:"ingest_timeout"`
	ScriptTimeout     int `toml:"script_timeout"`
	VoiceTimeout      int `toml:"voice_timeout"`
	RenderTimeout     int `toml:"render_timeout"`
	ThumbnailTimeout  int `toml:"thumbnail_timeout"`
	UploadTimeout     int `toml:"upload_timeout"`
	DistributeTimeout int `toml:"distribute_timeout"`
}

// Discovery contains candidate discovery settings. Ranking weights and search
// queries live in YAML profile files under ProfilesDir.
type Discovery struct {
	ProfilesDir    string `toml:"profiles_dir"`
	DefaultProfile string `toml:"default_profile"`
	MaxCandidates  int    `toml:"max_candidates"`
}

// YouTube contains configuration for the YouTube Data API and uploads.
type YouTube struct {
	APIKey         string `toml:"api_key"`
	UploadToken    string `toml:"upload_token"`
	BaseURL        string `toml:"base_url"`
	UploadBaseURL  string `toml:"upload_base_url"`
	CategoryID     string `toml:"category_id"`
	PrivacyStatus  string `toml:"privacy_status"`
	PlaylistID     string `toml:"playlist_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gemini contains configuration for script generation and critique.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TargetMinutes  int    `toml:"target_minutes"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech contains configuration for narration synthesis.
type Speech struct {
	APIKey         string  `toml:"api_key"`
	Region         string  `toml:"region"`
	Locale         string  `toml:"locale"`
	Voice          string  `toml:"voice"`
	Rate           string  `toml:"rate"`
	Pitch          string  `toml:"pitch"`
	OutputFormat   string  `toml:"output_format"`
	TargetLUFS     float64 `toml:"target_lufs"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// ZThumb contains configuration for the thumbnail generation server.
type ZThumb struct {
	Enabled        bool    `toml:"enabled"`
	URL            string  `toml:"url"`
	Steps          int     `toml:"steps"`
	CFG            float64 `toml:"cfg"`
	Batch          int     `toml:"batch"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Telegram contains bot credentials for distribution and notifications.
// ChannelID receives published links; OpsChatID receives lifecycle
// notifications. Either may be empty to disable that use.
type Telegram struct {
	BotToken       string `toml:"bot_token"`
	ChannelID      string `toml:"channel_id"`
	OpsChatID      string `toml:"ops_chat_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config encapsulates all configuration values for Recast.
//
// Configuration sections by subsystem:
//   - Paths: state, working, output, and log directories
//   - API: daemon bind address and optional bearer token
//   - Logging: log format and level
//   - Pipeline: concurrency, retry budget, candidate fallback cutoff
//   - Gates: quality gate thresholds and attempt budgets
//   - Steps: per-step execution timeouts
//   - Discovery: candidate discovery profiles and limits
//   - YouTube: Data API key and upload credentials
//   - Gemini: script generation settings
//   - Speech: narration synthesis settings
//   - ZThumb: thumbnail generation server
//   - Telegram: distribution channel and ops notifications
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Logging   Logging   `toml:"logging"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Gates     Gates     `toml:"gates"`
	Steps     Steps     `toml:"steps"`
	Discovery Discovery `toml:"discovery"`
	YouTube   YouTube   `toml:"youtube"`
	Gemini    Gemini    `toml:"gemini"`
	Speech    Speech    `toml:"speech"`
	ZThumb    ZThumb    `toml:"zthumb"`
	Telegram  Telegram  `toml:"telegram"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("RECAST_CONFIG")
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// DatabasePath returns the job store location inside the state directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "recast.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "recast.lock")
}

// JobWorkDir returns the workspace directory for one job.
func (c *Config) JobWorkDir(jobID string) string {
	return filepath.Join(c.Paths.WorkDir, jobID)
}

// YtDlpBinary returns the downloader executable name.
func (c *Config) YtDlpBinary() string {
	return "yt-dlp"
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
