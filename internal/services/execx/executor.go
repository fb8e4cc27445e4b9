package execx

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"recast/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	// Run streams merged stdout/stderr lines to onLine while the command runs.
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
	// Output captures stdout and stderr separately.
	Output(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)
}

// CommandExecutor runs real processes.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

func (CommandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Marker classifies a command failure onto the shared error taxonomy. The
// run context distinguishes a blown deadline from a tool failure.
func Marker(ctx context.Context, err error) error {
	if ctx != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.ErrTimeout
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return services.ErrCancelled
		}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.ErrConfiguration
	}
	return services.ErrExternalTool
}

// Tail returns the last lines of captured output for error messages.
func Tail(output []byte, lines int) string {
	text := strings.TrimSpace(string(output))
	if text == "" || lines <= 0 {
		return ""
	}
	parts := strings.Split(text, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, " | ")
}

// LookPath reports whether a binary resolves on PATH.
func LookPath(binary string) error {
	_, err := exec.LookPath(binary)
	return err
}
