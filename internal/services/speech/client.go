// Package speech synthesizes narration through the Azure Cognitive Services
// TTS REST API. Amharic neural voices (am-ET-AmehaNeural, am-ET-MekdesNeural)
// are the reason Azure is the provider here; the common alternatives do not
// ship am-ET voices.
package speech

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"recast/internal/services"
	"recast/internal/services/httpx"
)

const (
	defaultRegion       = "eastus"
	defaultLocale       = "am-ET"
	defaultVoice        = "am-ET-AmehaNeural"
	defaultRate         = "-5%"
	defaultPitch        = "-10%"
	defaultOutputFormat = "riff-24khz-16bit-mono-pcm"
	pauseMarker         = "[PAUSE]"
	pauseBreak          = `<break time="500ms"/>`
	userAgent           = "recast"
)

// Config carries the synthesis settings.
type Config struct {
	APIKey         string
	Region         string
	Locale         string
	Voice          string
	Rate           string
	Pitch          string
	OutputFormat   string
	BaseURL        string
	TimeoutSeconds int
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPOptions forwards options to the underlying retrying HTTP client.
func WithHTTPOptions(opts ...httpx.Option) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, opts...)
	}
}

// Client is an Azure TTS REST client.
type Client struct {
	cfg      Config
	http     *httpx.Client
	httpOpts []httpx.Option
}

// New builds a client, deriving the regional endpoint when no BaseURL
// override is given.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.Rate == "" {
		cfg.Rate = defaultRate
	}
	if cfg.Pitch == "" {
		cfg.Pitch = defaultPitch
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultOutputFormat
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.http = httpx.New(timeout, client.httpOpts...)
	return client
}

// IsConfigured reports whether a subscription key is present.
func (c *Client) IsConfigured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Voice reports the configured voice short name.
func (c *Client) Voice() string {
	return c.cfg.Voice
}

// Synthesize renders one narration part to audio bytes with the configured
// prosody. [PAUSE] markers in the text become SSML breaks.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return c.SynthesizeWith(ctx, text, c.cfg.Rate, c.cfg.Pitch)
}

// SynthesizeWith renders one narration part with explicit prosody values,
// used when quality gate tuning shifts rate or pitch between attempts.
func (c *Client) SynthesizeWith(ctx context.Context, text, rate, pitch string) ([]byte, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrValidation, "voice", "synthesize", "empty narration text", nil)
	}
	if rate == "" {
		rate = c.cfg.Rate
	}
	if pitch == "" {
		pitch = c.cfg.Pitch
	}

	ssml := c.buildSSML(text, rate, pitch)
	endpoint := c.cfg.BaseURL + "/cognitiveservices/v1"

	audio, err := c.http.Do(ctx, "synthesize speech", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ssml))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/ssml+xml")
		req.Header.Set("X-Microsoft-OutputFormat", c.cfg.OutputFormat)
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return nil, services.Wrap(httpx.Marker(err), "voice", "synthesize", "tts request failed", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "voice", "synthesize", "empty audio response", nil)
	}
	return audio, nil
}

// SynthesizeToFile renders one narration part straight to disk.
func (c *Client) SynthesizeToFile(ctx context.Context, text, path string) error {
	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "voice", "synthesize", "write audio file", err)
	}
	return nil
}

// VoiceInfo is one entry of the voices list.
type VoiceInfo struct {
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
	Gender    string `json:"Gender"`
}

// ListVoices fetches the available voices for the configured region.
func (c *Client) ListVoices(ctx context.Context) ([]VoiceInfo, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	endpoint := c.cfg.BaseURL + "/cognitiveservices/voices/list"

	var voices []VoiceInfo
	err := c.http.DoJSON(ctx, "list voices", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}, &voices)
	if err != nil {
		return nil, services.Wrap(httpx.Marker(err), "voice", "list voices", "voices list failed", err)
	}
	return voices, nil
}

// HealthCheck verifies the key works and the configured voice exists in the
// region.
func (c *Client) HealthCheck(ctx context.Context) error {
	voices, err := c.ListVoices(ctx)
	if err != nil {
		return err
	}
	for _, voice := range voices {
		if strings.EqualFold(voice.ShortName, c.cfg.Voice) {
			return nil
		}
	}
	return services.Wrap(services.ErrConfiguration, "voice", "health check",
		fmt.Sprintf("voice %q not available in region %s", c.cfg.Voice, c.cfg.Region), nil)
}

// buildSSML wraps text in the voice and prosody envelope. Text is XML
// escaped part by part so [PAUSE] markers survive as break elements.
func (c *Client) buildSSML(text, rate, pitch string) string {
	var body strings.Builder
	for i, segment := range strings.Split(text, pauseMarker) {
		if i > 0 {
			body.WriteString(pauseBreak)
		}
		body.WriteString(escapeXML(strings.TrimSpace(segment)))
	}

	return fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`+
		`<voice name="%s"><prosody rate="%s" pitch="%s">%s</prosody></voice></speak>`,
		c.cfg.Locale, c.cfg.Voice, rate, pitch, body.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

func (c *Client) requireKey() error {
	if !c.IsConfigured() {
		return services.Wrap(services.ErrConfiguration, "voice", "speech", "subscription key not configured", nil)
	}
	return nil
}
