// Package gemini talks to the Gemini generateContent REST API for recap
// script writing, critique scoring, and transcript cleanup.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recast/internal/services"
	"recast/internal/services/httpx"
)

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-2.0-flash"
	defaultLanguage = "am"
	defaultMinutes  = 8

	scriptTemperature   = 0.7
	critiqueTemperature = 0.2
)

// Config carries the generation settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TargetMinutes  int
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

// Client is a Gemini REST API client.
type Client struct {
	cfg      Config
	http     *httpx.Client
	httpOpts []httpx.Option
}

// New builds a client. The API key may be empty; calls then fail with
// ErrConfiguration so preflight can report the gap.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.TargetMinutes <= 0 {
		cfg.TargetMinutes = defaultMinutes
	}
	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client.http = httpx.New(timeout, client.httpOpts...)
	return client
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// HealthCheck verifies the key can read the configured model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/models/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Model))
	var meta struct {
		Name string `json:"name"`
	}
	err := c.http.DoJSON(ctx, "gemini health check", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?key="+url.QueryEscape(c.cfg.APIKey), nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}, &meta)
	if err != nil {
		return services.Wrap(httpx.Marker(err), "script", "health check", "model lookup failed", err)
	}
	if meta.Name == "" {
		return services.Wrap(services.ErrExternalTool, "script", "health check", "model metadata missing", nil)
	}
	return nil
}

type generateOptions struct {
	system      string
	temperature float64
	jsonOutput  bool
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// generate issues one generateContent call and returns the model text. The
// step name tags errors so failures land on the right pipeline step.
func (c *Client) generate(ctx context.Context, step, op, prompt string, genOpts generateOptions) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature: genOpts.temperature,
		},
	}
	if genOpts.system != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: genOpts.system}}}
	}
	if genOpts.jsonOutput {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, step, op, "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))

	var decoded generateResponse
	err = c.http.DoJSON(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &decoded)
	if err != nil {
		return "", services.Wrap(httpx.Marker(err), step, op, "generate content", err)
	}

	if decoded.PromptFeedback.BlockReason != "" {
		return "", services.Wrap(services.ErrValidation, step, op,
			fmt.Sprintf("prompt blocked: %s", decoded.PromptFeedback.BlockReason), nil)
	}
	text := firstText(decoded)
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrTransient, step, op, "empty model response", nil)
	}
	return text, nil
}

func firstText(resp generateResponse) string {
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			out.WriteString(p.Text)
		}
		if out.Len() > 0 {
			break
		}
	}
	return out.String()
}

func (c *Client) requireKey() error {
	if !c.IsConfigured() {
		return services.Wrap(services.ErrConfiguration, "script", "gemini", "api key not configured", nil)
	}
	return nil
}
