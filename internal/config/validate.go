package config

import (
	"errors"
	"fmt"
	"sort"

	"recast/internal/language"
)

var knownSteps = map[string]struct{}{
	"discover":   {},
	"ingest":     {},
	"script":     {},
	"voice":      {},
	"render":     {},
	"thumbnail":  {},
	"upload":     {},
	"distribute": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateGates(); err != nil {
		return err
	}
	if err := c.validateSteps(); err != nil {
		return err
	}
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCredentials() error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/recast/config.toml"
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required. Edit %s (create with 'recast config init')", defaultPath)
	}
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube.api_key is required. Edit %s (create with 'recast config init')", defaultPath)
	}
	if c.Speech.APIKey == "" {
		return fmt.Errorf("speech.api_key is required. Edit %s (create with 'recast config init')", defaultPath)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return errors.New("pipeline.max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.StepRetries < 0 {
		return errors.New("pipeline.step_retries must not be negative")
	}
	if c.Pipeline.RetryBackoffSeconds <= 0 {
		return errors.New("pipeline.retry_backoff_seconds must be positive")
	}
	if _, ok := knownSteps[c.Pipeline.PointOfNoRecovery]; !ok {
		return fmt.Errorf("pipeline.point_of_no_recovery: unknown step %q", c.Pipeline.PointOfNoRecovery)
	}
	return nil
}

func (c *Config) validateGates() error {
	if c.Gates.Script.Threshold < 0 || c.Gates.Script.Threshold > 100 {
		return errors.New("gates.script.threshold must be between 0 and 100")
	}
	if c.Gates.Voice.Threshold < 0 || c.Gates.Voice.Threshold > 100 {
		return errors.New("gates.voice.threshold must be between 0 and 100")
	}
	if c.Gates.Render.Threshold < 0 || c.Gates.Render.Threshold > 1 {
		return errors.New("gates.render.threshold must be between 0 and 1")
	}
	for name, attempts := range map[string]int{
		"gates.script.max_attempts": c.Gates.Script.MaxAttempts,
		"gates.voice.max_attempts":  c.Gates.Voice.MaxAttempts,
		"gates.render.max_attempts": c.Gates.Render.MaxAttempts,
	} {
		if attempts < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	return nil
}

func (c *Config) validateSteps() error {
	return ensurePositiveMap(map[string]int{
		"steps.discover_timeout":   c.Steps.DiscoverTimeout,
		"steps.ingest_timeout":     c.Steps.IngestTimeout,
		"steps.script_timeout":     c.Steps.ScriptTimeout,
		"steps.voice_timeout":      c.Steps.VoiceTimeout,
		"steps.render_timeout":     c.Steps.RenderTimeout,
		"steps.thumbnail_timeout":  c.Steps.ThumbnailTimeout,
		"steps.upload_timeout":     c.Steps.UploadTimeout,
		"steps.distribute_timeout": c.Steps.DistributeTimeout,
	})
}

func (c *Config) validateYouTube() error {
	switch c.YouTube.PrivacyStatus {
	case "public", "unlisted", "private":
		return nil
	default:
		return fmt.Errorf("youtube.privacy_status must be public, unlisted, or private (got %q)", c.YouTube.PrivacyStatus)
	}
}

func (c *Config) validateSpeech() error {
	if _, err := language.ParseTag(c.Speech.Locale); err != nil {
		return fmt.Errorf("speech.locale: %v", err)
	}
	if voice := c.Speech.Voice; voice != "" && !language.VoiceMatches(c.Speech.Locale, voice) {
		return fmt.Errorf("speech.voice %q does not match speech.locale %q", voice, c.Speech.Locale)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
