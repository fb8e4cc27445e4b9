package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDiscovery(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeServices()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiscovery() error {
	var err error
	if strings.TrimSpace(c.Discovery.ProfilesDir) == "" {
		c.Discovery.ProfilesDir = defaultProfilesDir
	}
	if c.Discovery.ProfilesDir, err = expandPath(c.Discovery.ProfilesDir); err != nil {
		return fmt.Errorf("discovery.profiles_dir: %w", err)
	}
	if strings.TrimSpace(c.Discovery.DefaultProfile) == "" {
		c.Discovery.DefaultProfile = defaultProfile
	}
	if c.Discovery.MaxCandidates <= 0 {
		c.Discovery.MaxCandidates = defaultMaxCandidates
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeServices() {
	c.Pipeline.PointOfNoRecovery = strings.ToLower(strings.TrimSpace(c.Pipeline.PointOfNoRecovery))
	if c.Pipeline.PointOfNoRecovery == "" {
		c.Pipeline.PointOfNoRecovery = defaultPointOfNoRecovery
	}

	c.YouTube.APIKey = fallbackEnv(c.YouTube.APIKey, "YOUTUBE_API_KEY")
	c.YouTube.UploadToken = fallbackEnv(c.YouTube.UploadToken, "YOUTUBE_UPLOAD_TOKEN")
	c.YouTube.BaseURL = strings.TrimRight(strings.TrimSpace(c.YouTube.BaseURL), "/")
	c.YouTube.UploadBaseURL = strings.TrimRight(strings.TrimSpace(c.YouTube.UploadBaseURL), "/")
	c.YouTube.PrivacyStatus = strings.ToLower(strings.TrimSpace(c.YouTube.PrivacyStatus))
	if c.YouTube.BaseURL == "" {
		c.YouTube.BaseURL = defaultYouTubeBaseURL
	}
	if c.YouTube.UploadBaseURL == "" {
		c.YouTube.UploadBaseURL = defaultUploadBaseURL
	}
	if c.YouTube.CategoryID == "" {
		c.YouTube.CategoryID = defaultCategoryID
	}
	if c.YouTube.PrivacyStatus == "" {
		c.YouTube.PrivacyStatus = defaultPrivacyStatus
	}

	c.Gemini.APIKey = fallbackEnv(c.Gemini.APIKey, "GEMINI_API_KEY")
	c.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gemini.BaseURL), "/")
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = defaultGeminiBaseURL
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	if strings.TrimSpace(c.Gemini.Language) == "" {
		c.Gemini.Language = defaultScriptLanguage
	}
	if c.Gemini.TargetMinutes <= 0 {
		c.Gemini.TargetMinutes = defaultTargetMinutes
	}

	c.Speech.APIKey = fallbackEnv(c.Speech.APIKey, "AZURE_SPEECH_KEY")
	c.Speech.Region = fallbackEnv(c.Speech.Region, "AZURE_SPEECH_REGION")
	c.Speech.Locale = strings.TrimSpace(c.Speech.Locale)
	c.Speech.Voice = strings.TrimSpace(c.Speech.Voice)
	if c.Speech.Region == "" {
		c.Speech.Region = defaultSpeechRegion
	}
	if c.Speech.Locale == "" {
		c.Speech.Locale = defaultSpeechLocale
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = defaultSpeechVoice
	}
	if c.Speech.OutputFormat == "" {
		c.Speech.OutputFormat = defaultSpeechOutputFormat
	}
	if c.Speech.TargetLUFS == 0 {
		c.Speech.TargetLUFS = defaultTargetLUFS
	}

	c.ZThumb.URL = strings.TrimRight(strings.TrimSpace(c.ZThumb.URL), "/")
	if c.ZThumb.URL == "" {
		c.ZThumb.URL = defaultZThumbURL
	}
	if c.ZThumb.Steps <= 0 {
		c.ZThumb.Steps = defaultZThumbSteps
	}
	if c.ZThumb.CFG <= 0 {
		c.ZThumb.CFG = defaultZThumbCFG
	}
	if c.ZThumb.Batch <= 0 {
		c.ZThumb.Batch = defaultZThumbBatch
	}

	c.Telegram.BotToken = fallbackEnv(c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	c.Telegram.ChannelID = fallbackEnv(c.Telegram.ChannelID, "TELEGRAM_CHANNEL_ID")
	c.Telegram.OpsChatID = strings.TrimSpace(c.Telegram.OpsChatID)
	if c.Telegram.TimeoutSeconds <= 0 {
		c.Telegram.TimeoutSeconds = 10
	}
}

func fallbackEnv(value, env string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv(env))
}
