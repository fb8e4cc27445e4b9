// Package ytdlp wraps the yt-dlp binary for source video downloads and
// caption retrieval.
package ytdlp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/execx"
)

const (
	defaultBinary  = "yt-dlp"
	formatSelector = "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	subtitleLang   = "en"
	errorTailLines = 8
)

// mergedContainers lists the extensions yt-dlp may leave behind, in the
// order we prefer them.
var mergedContainers = []string{"mp4", "mkv", "webm"}

// Option customizes the client.
type Option func(*Client)

// WithBinary overrides the yt-dlp binary name or path.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
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

// Client shells out to yt-dlp.
type Client struct {
	binary string
	exec   execx.Executor
	logger *slog.Logger
}

// New builds a client with the real command executor.
func New(opts ...Option) *Client {
	client := &Client{
		binary: defaultBinary,
		exec:   execx.CommandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Installed reports whether the binary resolves on PATH.
func (c *Client) Installed() error {
	return execx.LookPath(c.binary)
}

// Version returns the yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, stderr, err := c.exec.Output(ctx, c.binary, []string{"--version"})
	if err != nil {
		return "", services.Wrap(execx.Marker(ctx, err), "ingest", "yt-dlp version",
			execx.Tail(stderr, errorTailLines), err)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Download fetches the source video capped at 1080p and merged into a single
// mp4 when possible. It returns the path of the downloaded file inside
// destDir.
func (c *Client) Download(ctx context.Context, videoID, destDir string) (string, error) {
	if videoID == "" {
		return "", services.Wrap(services.ErrValidation, "ingest", "download", "empty video id", nil)
	}
	args := []string{
		"-f", formatSelector,
		"--merge-output-format", "mp4",
		"-o", outputTemplate(destDir),
		"--no-playlist",
		watchURL(videoID),
	}
	if err := c.run(ctx, "download video", args); err != nil {
		return "", err
	}

	for _, ext := range mergedContainers {
		path := filepath.Join(destDir, videoID+"."+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", services.Wrap(services.ErrExternalTool, "ingest", "download",
		fmt.Sprintf("no downloaded file for %s in %s", videoID, destDir), nil)
}

// FetchSubtitles retrieves automatic English captions in json3 form and
// parses them into a transcript. A missing caption track is not an error;
// the transcript is nil and the caller decides what that means.
func (c *Client) FetchSubtitles(ctx context.Context, videoID, destDir string) (*Transcript, error) {
	if videoID == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "fetch subtitles", "empty video id", nil)
	}
	args := []string{
		"--write-auto-sub",
		"--sub-lang", subtitleLang,
		"--skip-download",
		"--sub-format", "json3",
		"-o", outputTemplate(destDir),
		"--no-playlist",
		watchURL(videoID),
	}
	if err := c.run(ctx, "fetch subtitles", args); err != nil {
		return nil, err
	}

	path, err := findSubtitleFile(destDir, videoID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "fetch subtitles", "scan subtitle files", err)
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "fetch subtitles", "read subtitle file", err)
	}
	transcript, err := parseJSON3(data)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "fetch subtitles", "parse json3 captions", err)
	}
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, nil
	}
	return transcript, nil
}

func (c *Client) run(ctx context.Context, op string, args []string) error {
	var tail []string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		c.logger.Debug("yt-dlp output", logging.String("line", line))
		tail = append(tail, line)
		if len(tail) > errorTailLines {
			tail = tail[1:]
		}
	})
	if err != nil {
		detail := strings.TrimSpace(strings.Join(tail, " | "))
		return services.Wrap(execx.Marker(ctx, err), "ingest", op, detail, err)
	}
	return nil
}

func outputTemplate(destDir string) string {
	return filepath.Join(destDir, "%(id)s.%(ext)s")
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// findSubtitleFile locates the caption track yt-dlp wrote for the video.
// Auto captions usually land as <id>.en.json3 but the language suffix can
// vary, so fall back to any json3 file for the id.
func findSubtitleFile(destDir, videoID string) (string, error) {
	exact := filepath.Join(destDir, videoID+"."+subtitleLang+".json3")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}
	matches, err := filepath.Glob(filepath.Join(destDir, videoID+".*.json3"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}
