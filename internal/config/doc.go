// Package config loads, validates, and normalizes the TOML configuration
// that drives the daemon, the pipeline, and the external service adapters.
package config
