package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Version runs a binary's version command and returns the first line of its
// output. Probe failures return an empty string; version strings are
// best-effort diagnostic detail, never a gate.
func Version(ctx context.Context, command string, args ...string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	if _, err := exec.LookPath(command); err != nil {
		return ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, command, args...).Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
