package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/pipeline"
)

// Daemon owns the background pipeline and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	manager *pipeline.Manager
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pipeline     pipeline.StatusSummary
	DBPath       string
	LockFilePath string
}

// New constructs a daemon around initialized dependencies. The API server is
// optional; a nil apiServer disables the HTTP surface.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, manager *pipeline.Manager, api *apiServer) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, and pipeline manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  manager,
		api:      api,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, finalizes jobs orphaned by a previous
// process, and launches the pipeline manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another recast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	swept, err := d.store.FailInterrupted(runCtx, "daemon restarted while job was in flight")
	if err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("sweep interrupted jobs: %w", err)
	}
	if swept > 0 {
		d.logger.Warn("finalized jobs interrupted by previous shutdown", logging.Int("count", swept))
	}

	if err := d.manager.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start pipeline: %w", err)
	}

	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("recast daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock. Running
// jobs finish their current step and park as interrupted work for the next
// start's sweep unless they complete first.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("recast daemon stopped")
}

// Close stops the daemon and releases the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports current runtime state. Store errors degrade to an empty
// summary so status stays usable while the database is unhappy.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.manager.Status(ctx)
	if err != nil {
		d.logger.Warn("pipeline status unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pipeline:     summary,
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
