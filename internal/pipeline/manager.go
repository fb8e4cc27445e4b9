package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/notify"
	"recast/internal/services"
)

// PreflightFunc verifies external prerequisites before a job's first step.
// A non-nil error finalizes the job as failed with a configuration failure
// and no step runs.
type PreflightFunc func(ctx context.Context) error

// Manager coordinates job execution. Submit creates a record and hands it to
// a runner goroutine; a bounded slot pool caps how many jobs execute at once
// while created jobs wait in the queued state.
type Manager struct {
	cfg       *config.Config
	store     *jobs.Store
	logger    *slog.Logger
	notifier  notify.Service
	preflight PreflightFunc

	slots chan struct{}

	mu      sync.Mutex
	steps   StepSet
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithNotifier replaces the config-derived lifecycle notifier.
func WithNotifier(notifier notify.Service) Option {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithPreflight installs the prerequisite check run before a job's first
// step. Nil disables preflight, which tests use to run with fake executors.
func WithPreflight(check PreflightFunc) Option {
	return func(m *Manager) {
		m.preflight = check
	}
}

// New constructs a manager. Steps are registered separately via
// ConfigureSteps so the daemon can assemble executors with the same logger.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxJobs := cfg.Pipeline.MaxConcurrentJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		notifier: notify.NewService(cfg),
		slots:    make(chan struct{}, maxJobs),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureSteps registers the concrete step executors the manager runs.
func (m *Manager) ConfigureSteps(set StepSet) {
	m.mu.Lock()
	m.steps = set
	m.mu.Unlock()
}

// Start begins background processing and adopts jobs still queued from a
// previous process. The store's interrupted-job sweep must run before Start.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if missing := m.steps.missing(); len(missing) > 0 {
		m.mu.Unlock()
		return fmt.Errorf("pipeline steps not configured: %s", strings.Join(missing, ", "))
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	queued, err := m.store.ListByStatus(ctx, jobs.StatusQueued)
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.runCtx = nil
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("adopt queued jobs: %w", err)
	}
	for _, job := range queued {
		m.spawn(job.ID)
	}

	m.logger.Info("pipeline started",
		logging.Int("max_concurrent_jobs", cap(m.slots)),
		logging.Int("adopted_jobs", len(queued)))
	return nil
}

// Stop cancels the run context and waits for all runners to return. Jobs
// interrupted mid-step are finalized as failed when possible and otherwise
// swept at the next startup.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.runCtx = nil
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

// Submit validates the request, creates the job record in the queued state,
// and hands it to a runner. When the manager is not running the job stays
// queued for adoption at the next Start.
func (m *Manager) Submit(ctx context.Context, jobType jobs.JobType, req jobs.Request) (*jobs.Job, error) {
	parsed, ok := jobs.ParseJobType(string(jobType))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "submit job",
			fmt.Sprintf("unknown job type %q", jobType), nil)
	}
	normalized, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	job, err := m.store.Create(ctx, parsed, normalized)
	if err != nil {
		return nil, err
	}
	if !m.spawn(job.ID) {
		m.logger.Debug("manager not running, job stays queued",
			logging.String(logging.FieldJobID, job.ID))
	}
	return job, nil
}

// spawn hands a job to a runner goroutine when the manager is running.
func (m *Manager) spawn(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.wg.Add(1)
	go m.runJob(m.runCtx, jobID)
	return true
}

// StatusSummary reports manager-level diagnostics for the status API.
type StatusSummary struct {
	Running    bool       `json:"running"`
	ActiveJobs int        `json:"active_jobs"`
	QueueDepth int        `json:"queue_depth"`
	Stats      jobs.Stats `json:"stats"`
}

// Status returns current scheduling diagnostics backed by store counts.
func (m *Manager) Status(ctx context.Context) (StatusSummary, error) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		return StatusSummary{Running: running}, err
	}
	return StatusSummary{
		Running:    running,
		ActiveJobs: stats.Counts[jobs.StatusRunning] + stats.Counts[jobs.StatusCancelRequested],
		QueueDepth: stats.Counts[jobs.StatusQueued],
		Stats:      stats,
	}, nil
}

// normalizeRequest trims request fields and rejects values the pipeline
// cannot honor before a record is created.
func normalizeRequest(req jobs.Request) (jobs.Request, error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Profile = strings.TrimSpace(req.Profile)
	req.Privacy = strings.ToLower(strings.TrimSpace(req.Privacy))

	switch req.Privacy {
	case "", "public", "unlisted", "private":
	default:
		return jobs.Request{}, services.Wrap(services.ErrValidation, "", "submit job",
			fmt.Sprintf("privacy must be public, unlisted, or private (got %q)", req.Privacy), nil)
	}
	return req, nil
}
