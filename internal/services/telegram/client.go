// Package telegram posts messages through the Telegram Bot API. It serves
// both distribution (channel announcements for published recaps) and
// operator notifications.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"recast/internal/services"
	"recast/internal/services/httpx"
)

const defaultBaseURL = "https://api.telegram.org"

// Config carries bot credentials.
type Config struct {
	BotToken       string
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

// Client is a Telegram Bot API client.
type Client struct {
	cfg      Config
	http     *httpx.Client
	httpOpts []httpx.Option
}

// New builds a client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.http = httpx.New(timeout, client.httpOpts...)
	return client
}

// IsConfigured reports whether a bot token is present.
func (c *Client) IsConfigured() bool {
	return strings.TrimSpace(c.cfg.BotToken) != ""
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts an HTML-formatted message to a chat or channel.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	return c.send(ctx, chatID, text, false)
}

// SendQuietMessage posts without triggering a client notification, used for
// routine operator updates.
func (c *Client) SendQuietMessage(ctx context.Context, chatID, text string) error {
	return c.send(ctx, chatID, text, true)
}

func (c *Client) send(ctx context.Context, chatID, text string, silent bool) error {
	if !c.IsConfigured() {
		return services.Wrap(services.ErrConfiguration, "distribute", "send message", "bot token not configured", nil)
	}
	if chatID == "" {
		return services.Wrap(services.ErrConfiguration, "distribute", "send message", "chat id not configured", nil)
	}
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, "distribute", "send message", "empty message text", nil)
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:              chatID,
		Text:                text,
		ParseMode:           "HTML",
		DisableNotification: silent,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "distribute", "send message", "encode request", err)
	}

	endpoint := c.cfg.BaseURL + "/bot" + c.cfg.BotToken + "/sendMessage"
	var resp apiResponse
	err = c.http.DoJSON(ctx, "telegram send", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return services.Wrap(httpx.Marker(err), "distribute", "send message", "telegram request failed", err)
	}
	if !resp.OK {
		return services.Wrap(services.ErrExternalTool, "distribute", "send message", resp.Description, nil)
	}
	return nil
}

// HealthCheck validates the bot token via getMe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConfigured() {
		return services.Wrap(services.ErrConfiguration, "distribute", "health check", "bot token not configured", nil)
	}
	endpoint := c.cfg.BaseURL + "/bot" + c.cfg.BotToken + "/getMe"
	var resp apiResponse
	err := c.http.DoJSON(ctx, "telegram getMe", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return services.Wrap(httpx.Marker(err), "distribute", "health check", "getMe failed", err)
	}
	if !resp.OK {
		return services.Wrap(services.ErrConfiguration, "distribute", "health check", resp.Description, nil)
	}
	return nil
}
