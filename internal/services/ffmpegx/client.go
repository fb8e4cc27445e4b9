// Package ffmpegx wraps the ffmpeg and ffprobe binaries for the audio and
// video work in the pipeline: narration assembly, loudness handling, scene
// detection, and final recap rendering.
package ffmpegx

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/execx"
)

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
	errorTailLines = 8
)

// Option customizes the client.
type Option func(*Client)

// WithBinaries overrides the ffmpeg and ffprobe binary names or paths.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(c *Client) {
		if ffmpeg != "" {
			c.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			c.ffprobe = ffprobe
		}
	}
}

// WithExecutor substitutes the process executor, used by tests.
func WithExecutor(exec execx.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for tool output lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client shells out to ffmpeg and ffprobe.
type Client struct {
	ffmpeg  string
	ffprobe string
	exec    execx.Executor
	logger  *slog.Logger
}

// New builds a client with the real command executor.
func New(opts ...Option) *Client {
	client := &Client{
		ffmpeg:  defaultFFmpeg,
		ffprobe: defaultFFprobe,
		exec:    execx.CommandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Installed reports whether both binaries resolve on PATH.
func (c *Client) Installed() error {
	if err := execx.LookPath(c.ffmpeg); err != nil {
		return err
	}
	return execx.LookPath(c.ffprobe)
}

// Version returns the first line of ffmpeg -version.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, stderr, err := c.exec.Output(ctx, c.ffmpeg, []string{"-version"})
	if err != nil {
		return "", services.Wrap(execx.Marker(ctx, err), "media", "ffmpeg version",
			execx.Tail(stderr, errorTailLines), err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(stdout)), "\n")
	return strings.TrimSpace(line), nil
}

// Duration probes the container duration of a media file in seconds.
func (c *Client) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	stdout, stderr, err := c.exec.Output(ctx, c.ffprobe, args)
	if err != nil {
		return 0, services.Wrap(execx.Marker(ctx, err), "media", "probe duration",
			execx.Tail(stderr, errorTailLines), err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "probe duration",
			fmt.Sprintf("unparseable duration %q", strings.TrimSpace(string(stdout))), err)
	}
	return seconds, nil
}

// run executes a transforming ffmpeg invocation, streaming output lines to
// the debug log and keeping a tail for error messages.
func (c *Client) run(ctx context.Context, op string, args []string) error {
	full := append([]string{"-hide_banner"}, args...)
	var tail []string
	err := c.exec.Run(ctx, c.ffmpeg, full, func(line string) {
		c.logger.Debug("ffmpeg output", logging.String("line", line))
		tail = append(tail, line)
		if len(tail) > errorTailLines {
			tail = tail[1:]
		}
	})
	if err != nil {
		detail := strings.TrimSpace(strings.Join(tail, " | "))
		return services.Wrap(execx.Marker(ctx, err), "media", op, detail, err)
	}
	return nil
}

// analyze executes a null-sink ffmpeg invocation and returns the combined
// stderr, where ffmpeg filters report their findings.
func (c *Client) analyze(ctx context.Context, op string, args []string) (string, error) {
	full := append([]string{"-hide_banner"}, args...)
	_, stderr, err := c.exec.Output(ctx, c.ffmpeg, full)
	if err != nil {
		return "", services.Wrap(execx.Marker(ctx, err), "media", op,
			execx.Tail(stderr, errorTailLines), err)
	}
	return string(stderr), nil
}
