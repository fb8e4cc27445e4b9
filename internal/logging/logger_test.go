package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recast/internal/logging"
	"recast/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller", logging.String("job_id", "abc"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(string(content), "job_id=abc") {
		t.Fatalf("expected attribute in console output, got %q", content)
	}
	if !strings.Contains(string(content), "INFO") {
		t.Fatalf("expected level label, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerPromotesComponent(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "component.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "pipeline").Info("step started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "pipeline: step started") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if strings.Contains(string(content), "component=") {
		t.Fatalf("expected component key to be folded into prefix, got %q", content)
	}
}

func TestJSONLoggerEmitsParseableRecords(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "log.json")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("queue depth high", logging.Int("depth", 7))

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(raw))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", line, err)
	}
	if record["msg"] != "queue depth high" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestWithContextBindsIdentifiers(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "context.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithStep(ctx, "ingest")
	logging.WithContext(ctx, logger).Info("starting")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, fragment := range []string{"job_id=job-7", "step=ingest"} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %q in output, got %q", fragment, content)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
