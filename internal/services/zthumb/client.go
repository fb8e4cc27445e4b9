// Package zthumb talks to a self-hosted thumbnail generation service that
// fronts a diffusion model. The service is optional; when it is not
// configured the thumbnail step falls back to a frame grab.
package zthumb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"recast/internal/services"
	"recast/internal/services/httpx"
)

const (
	defaultNegativePrompt = "text, watermark, logo, blurry, low quality"
	defaultWidth          = 1280
	defaultHeight         = 720
	defaultSteps          = 35
	defaultCFG            = 4.0
	defaultSampler        = "euler"
	defaultBatch          = 4
)

// Config carries the generation settings.
type Config struct {
	BaseURL        string
	Batch          int
	Steps          int
	CFG            float64
	Upscale        bool
	FaceDetail     bool
	SafeMode       bool
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

// Client is a thumbnail service client.
type Client struct {
	cfg      Config
	http     *httpx.Client
	httpOpts []httpx.Option
}

// New builds a client. Generation runs a diffusion model, so the default
// timeout is generous.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	if cfg.Steps <= 0 {
		cfg.Steps = defaultSteps
	}
	if cfg.CFG <= 0 {
		cfg.CFG = defaultCFG
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	client.http = httpx.New(timeout, client.httpOpts...)
	return client
}

// Enabled reports whether a service endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != ""
}

// Health is the service health report.
type Health struct {
	Status          string `json:"status"`
	Backend         string `json:"backend"`
	GPU             string `json:"gpu"`
	VRAMMB          int    `json:"vram_mb"`
	CUDAAvailable   bool   `json:"cuda_available"`
	ModelsAvailable bool   `json:"models_available"`
}

// HealthCheck verifies the service is reachable and has its models loaded.
func (c *Client) HealthCheck(ctx context.Context) (Health, error) {
	if !c.Enabled() {
		return Health{}, services.Wrap(services.ErrConfiguration, "thumbnail", "health check", "service url not configured", nil)
	}
	var health Health
	err := c.http.DoJSON(ctx, "thumbnail health", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	}, &health)
	if err != nil {
		return Health{}, services.Wrap(httpx.Marker(err), "thumbnail", "health check", "service unreachable", err)
	}
	if !strings.EqualFold(health.Status, "ok") || !health.ModelsAvailable {
		return health, services.Wrap(services.ErrExternalTool, "thumbnail", "health check",
			fmt.Sprintf("service not ready: status=%s models_available=%t", health.Status, health.ModelsAvailable), nil)
	}
	return health, nil
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFG            float64 `json:"cfg"`
	Sampler        string  `json:"sampler"`
	Variant        string  `json:"variant"`
	Batch          int     `json:"batch"`
	OutputFormat   string  `json:"output_format"`
	Upscale        bool    `json:"upscale"`
	FaceDetail     bool    `json:"face_detail"`
	SafeMode       bool    `json:"safe_mode"`
}

// Result is one generation batch.
type Result struct {
	Images   []string `json:"images"`
	Warnings []string `json:"warnings"`
	Meta     struct {
		Seed    int64  `json:"seed"`
		Backend string `json:"backend"`
	} `json:"meta"`
}

// Generate produces a batch of candidate thumbnails for the prompt. Images
// come back either as base64 payloads or file:// paths local to the service
// host; DecodeImage handles both.
func (c *Client) Generate(ctx context.Context, prompt string) (Result, error) {
	if !c.Enabled() {
		return Result{}, services.Wrap(services.ErrConfiguration, "thumbnail", "generate", "service url not configured", nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "thumbnail", "generate", "empty prompt", nil)
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:         prompt,
		NegativePrompt: defaultNegativePrompt,
		Width:          defaultWidth,
		Height:         defaultHeight,
		Steps:          c.cfg.Steps,
		CFG:            c.cfg.CFG,
		Sampler:        defaultSampler,
		Variant:        "auto",
		Batch:          c.cfg.Batch,
		OutputFormat:   "png",
		Upscale:        c.cfg.Upscale,
		FaceDetail:     c.cfg.FaceDetail,
		SafeMode:       c.cfg.SafeMode,
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "thumbnail", "generate", "encode request", err)
	}

	var result Result
	err = c.http.DoJSON(ctx, "generate thumbnail", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/generate", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &result)
	if err != nil {
		return Result{}, services.Wrap(httpx.Marker(err), "thumbnail", "generate", "generation failed", err)
	}
	if len(result.Images) == 0 {
		return Result{}, services.Wrap(services.ErrTransient, "thumbnail", "generate", "no images in response", nil)
	}
	return result, nil
}

// DecodeImage materializes one entry of Result.Images as raw image bytes.
func DecodeImage(image string) ([]byte, error) {
	if path, ok := strings.CutPrefix(image, "file://"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "thumbnail", "decode image", "read shared image file", err)
		}
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "thumbnail", "decode image", "decode base64 image", err)
	}
	return data, nil
}
