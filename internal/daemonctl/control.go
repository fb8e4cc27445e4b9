// Package daemonctl implements the HTTP client CLI commands use to talk to
// a running recast daemon.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"recast/internal/api"
	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/report"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx response from the daemon, decoded from the error
// envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// JobStatus is set on cancel conflicts and reports the job's terminal
	// status.
	JobStatus jobs.Status
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return e.Message
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL overrides the config-derived API address.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// New builds a client for the daemon configured in cfg.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
	if cfg != nil {
		c.baseURL = baseURLFromBind(cfg.API.Bind)
		c.token = strings.TrimSpace(cfg.API.Token)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// baseURLFromBind turns a listen address into a dialable base URL. Wildcard
// hosts are reached over loopback.
func baseURLFromBind(bind string) string {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Submit posts a new job.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (*jobs.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// Job fetches one job document.
func (c *Client) Job(ctx context.Context, id string) (*jobs.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// Jobs lists jobs newest first, optionally filtered by status and capped at
// limit.
func (c *Client) Jobs(ctx context.Context, limit int, status string) ([]*jobs.Job, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if status = strings.TrimSpace(status); status != "" {
		query.Set("status", status)
	}
	path := "/api/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel requests cancellation of a job. Terminal jobs yield an *APIError
// with the job's current status.
func (c *Client) Cancel(ctx context.Context, id string) (*jobs.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// Status fetches scheduler state plus store counts.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DailyReport fetches the last-24h production summary.
func (c *Client) DailyReport(ctx context.Context) (*report.Daily, error) {
	var resp report.Daily
	if err := c.do(ctx, http.MethodGet, "/api/report/daily", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health probes daemon liveness.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthDetail fetches the daemon's current preflight results.
func (c *Client) HealthDetail(ctx context.Context) (*api.HealthDetailResponse, error) {
	var resp api.HealthDetailResponse
	if err := c.do(ctx, http.MethodGet, "/health/detail", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsSnapshot returns daemon status, falling back to a direct store read
// when the daemon is offline so `recast stats` works either way.
func (c *Client) StatsSnapshot(ctx context.Context, cfg *config.Config) (*api.StatusResponse, error) {
	status, err := c.Status(ctx)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, openErr := jobs.Open(cfg)
	if openErr != nil {
		return nil, fmt.Errorf("daemon offline and store unavailable: %w", openErr)
	}
	defer store.Close()
	stats, statsErr := store.Stats(queryCtx)
	if statsErr != nil {
		return nil, fmt.Errorf("daemon offline and store unavailable: %w", statsErr)
	}

	offline := &api.StatusResponse{}
	offline.Stats = stats
	return offline, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return errors.New("daemon api is disabled: set api.bind in the config")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionRefused(err) {
			return fmt.Errorf("%w (start it with 'recast daemon run')", ErrDaemonNotRunning)
		}
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope api.ErrorResponse
		if decodeErr := json.Unmarshal(payload, &envelope); decodeErr == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.JobStatus = envelope.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
