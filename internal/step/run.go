package step

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recast/internal/logging"
	"recast/internal/services"
)

// Options controls one step invocation.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Run executes one step with the shared boundary semantics: a per-step
// deadline, panic containment, and bounded retries for transient failures.
// Non-retryable classifications and exhausted budgets return the last error
// unchanged so the caller can classify it.
func Run(ctx context.Context, exec Executor, xchg *Exchange, opts Options) (Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := opts.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome, err := invoke(ctx, exec, xchg, opts.Timeout)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt == attempts || ctx.Err() != nil {
			break
		}

		wait := backoffDelay(opts.Backoff, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, wait, err)
		}
		logger.Warn("step retrying",
			logging.String(logging.FieldStep, exec.Name()),
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Error(err))

		select {
		case <-ctx.Done():
			return Outcome{}, lastErr
		case <-time.After(wait):
		}
	}
	return Outcome{}, lastErr
}

// invoke runs a single attempt. Panics inside the executor surface as
// external tool errors; a blown per-step deadline surfaces as a timeout so
// the retry budget applies.
func invoke(ctx context.Context, exec Executor, xchg *Exchange, timeout time.Duration) (outcome Outcome, err error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{}
			err = services.Wrap(services.ErrExternalTool, exec.Name(), "execute", fmt.Sprintf("step panicked: %v", r), nil)
		}
	}()

	outcome, err = exec.Execute(runCtx, xchg)
	if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
		err = services.Wrap(services.ErrTimeout, exec.Name(), "execute", fmt.Sprintf("step exceeded %s", timeout), err)
	}
	return outcome, err
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= 10*base {
			return 10 * base
		}
	}
	return delay
}
