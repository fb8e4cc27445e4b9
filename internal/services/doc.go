// Package services defines shared utilities consumed by the pipeline step
// adapters and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, step names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent classifications (retryable vs terminal, failure kinds).
//   - Thin abstractions that make command execution and HTTP calls to
//     external tools testable.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
