// Package gate enforces quality thresholds on scored pipeline steps. A gated
// step reruns until its score clears the configured threshold or the attempt
// budget runs out; transient failures inside an attempt are retried by the
// step runner and do not consume gate attempts.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/step"
)

// Settings configure one quality gate.
type Settings struct {
	Threshold   float64
	MaxAttempts int
}

// Verdict describes a below-threshold attempt that the gate is about to
// retry. Attempt is the upcoming attempt number.
type Verdict struct {
	Score       float64
	Threshold   float64
	Attempt     int
	MaxAttempts int
	Outcome     step.Outcome
}

// Recorder persists a gate event on the job record.
type Recorder func(ctx context.Context, xchg *step.Exchange, message string)

// Option adjusts optional gate behavior.
type Option func(*Gate)

// WithRecorder wires the job event sink for regeneration notices.
func WithRecorder(record Recorder) Option {
	return func(g *Gate) {
		g.record = record
	}
}

// WithOnRetry observes each regeneration decision, typically to adjust the
// exchange tuning before the next attempt and to count attempts on the job.
func WithOnRetry(hook func(xchg *step.Exchange, verdict Verdict)) Option {
	return func(g *Gate) {
		g.onRetry = hook
	}
}

// WithLogger routes gate diagnostics to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate wraps a scored step executor with threshold enforcement.
type Gate struct {
	inner    step.Executor
	settings Settings
	record   Recorder
	onRetry  func(*step.Exchange, Verdict)
	logger   *slog.Logger
}

// New builds a gate around the executor. A non-positive MaxAttempts is
// treated as a single attempt.
func New(inner step.Executor, settings Settings, opts ...Option) *Gate {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	g := &Gate{
		inner:    inner,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name reports the wrapped step's name.
func (g *Gate) Name() string {
	return g.inner.Name()
}

// Run executes the gated step until an attempt clears the threshold. Each
// attempt goes through the step runner, so per-attempt timeouts and
// transient retry apply inside a single gate attempt. Hard failures from the
// step propagate immediately without consuming further attempts.
func (g *Gate) Run(ctx context.Context, xchg *step.Exchange, opts step.Options) (step.Outcome, error) {
	bestScore := 0.0
	scored := false

	for attempt := 1; attempt <= g.settings.MaxAttempts; attempt++ {
		outcome, err := step.Run(ctx, g.inner, xchg, opts)
		if err != nil {
			return step.Outcome{}, err
		}
		if outcome.Score == nil {
			return step.Outcome{}, services.Wrap(services.ErrValidation, g.inner.Name(), "quality gate",
				"gated step returned no score", nil)
		}

		score := *outcome.Score
		if score >= g.settings.Threshold {
			if attempt > 1 {
				g.logger.Info("quality gate passed after regeneration",
					logging.String(logging.FieldStep, g.inner.Name()),
					logging.Float64("score", score),
					logging.Int("attempt", attempt))
			}
			return outcome, nil
		}
		if !scored || score > bestScore {
			bestScore = score
			scored = true
		}

		// Failed attempt artifacts (critique text and the like) stay on the
		// exchange so the regeneration can react to them.
		xchg.Merge(outcome.Artifacts)

		if attempt == g.settings.MaxAttempts {
			break
		}

		next := attempt + 1
		message := fmt.Sprintf("score %.1f < threshold %.1f, regenerating, attempt %d/%d",
			score, g.settings.Threshold, next, g.settings.MaxAttempts)
		g.logger.Warn("quality gate below threshold",
			logging.String(logging.FieldStep, g.inner.Name()),
			logging.Float64("score", score),
			logging.Float64("threshold", g.settings.Threshold),
			logging.Int("next_attempt", next))
		if g.record != nil {
			g.record(ctx, xchg, message)
		}
		if g.onRetry != nil {
			g.onRetry(xchg, Verdict{
				Score:       score,
				Threshold:   g.settings.Threshold,
				Attempt:     next,
				MaxAttempts: g.settings.MaxAttempts,
				Outcome:     outcome,
			})
		}
	}

	return step.Outcome{}, services.Wrap(services.ErrGateExhausted, g.inner.Name(), "quality gate",
		fmt.Sprintf("best score %.1f below threshold %.1f after %d attempts",
			bestScore, g.settings.Threshold, g.settings.MaxAttempts), nil)
}
