package preflight

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/services/speech"
	"recast/internal/services/telegram"
	"recast/internal/services/youtube"
	"recast/internal/services/zthumb"
)

// Check reports the outcome of a single preflight check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Deps carries pre-built collaborators into Run. Nil fields are constructed
// from configuration with a single-attempt policy, so the daemon can share
// its live clients and store while the CLI runs standalone.
type Deps struct {
	Store    *jobs.Store
	Gemini   *gemini.Client
	Speech   *speech.Client
	YouTube  *youtube.Client
	ZThumb   *zthumb.Client
	Telegram *telegram.Client
}

// Run executes all applicable checks for the given config in a stable order.
// Service checks only run when the corresponding feature is configured.
func Run(ctx context.Context, cfg *config.Config, d Deps) []Check {
	if cfg == nil {
		return nil
	}

	results := []Check{CheckConfig(cfg)}

	results = append(results,
		CheckDirectoryAccess("state directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("output directory", cfg.Paths.OutputDir),
		CheckStore(ctx, cfg, d.Store),
	)

	results = append(results, CheckBinaries(ctx, cfg)...)

	results = append(results,
		CheckGemini(ctx, cfg, d.Gemini),
		CheckSpeech(ctx, cfg, d.Speech),
	)
	if cfg.ZThumb.Enabled {
		results = append(results, CheckZThumb(ctx, cfg, d.ZThumb))
	}
	results = append(results, CheckYouTube(ctx, cfg, d.YouTube))
	if cfg.Telegram.ChannelID != "" || cfg.Telegram.OpsChatID != "" {
		results = append(results, CheckTelegram(ctx, cfg, d.Telegram))
	}

	return results
}

// Failed returns the subset of checks that did not pass.
func Failed(results []Check) []Check {
	var failed []Check
	for _, check := range results {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Err summarizes failed checks as a configuration error, or nil when every
// check passed.
func Err(results []Check) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, check := range failed {
		if check.Detail != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", check.Name, check.Detail))
		} else {
			parts = append(parts, check.Name)
		}
	}
	return services.Wrap(services.ErrConfiguration, "", "preflight", strings.Join(parts, "; "), nil)
}

// AsFunc adapts Run to the per-job hook signature the pipeline manager
// expects.
func AsFunc(cfg *config.Config, d Deps) func(context.Context) error {
	return func(ctx context.Context) error {
		return Err(Run(ctx, cfg, d))
	}
}
