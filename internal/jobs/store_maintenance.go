package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"recast/internal/services"
)

// Stats returns job counts grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{Counts: make(map[Status]int)}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Counts[status] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// FailInterrupted finalizes jobs left running or cancel_requested by a
// previous process. Queued jobs are left untouched for re-adoption.
func (s *Store) FailInterrupted(ctx context.Context, reason string) (int, error) {
	orphans, err := s.ListByStatus(ctx, StatusRunning, StatusCancelRequested)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, orphan := range orphans {
		pendingCancel := orphan.Status == StatusCancelRequested
		_, err := s.Update(ctx, orphan.ID, func(job *Job) error {
			if pendingCancel {
				job.Status = StatusCanceled
				job.AppendEvent(EventInfo, job.CurrentStep, "pending cancellation applied: "+reason)
			} else {
				job.Status = StatusFailed
				job.Error = &Failure{
					Kind:    services.KindInterrupted,
					Step:    job.CurrentStep,
					Message: reason,
				}
				job.AppendEvent(EventError, job.CurrentStep, reason)
			}
			if step := job.Step(job.CurrentStep); step != nil && step.Status == StepRunning {
				step.Status = StepFailed
				step.Detail = reason
			}
			return nil
		})
		if err != nil {
			// Another writer may have finalized the row in the meantime.
			if errors.Is(err, ErrJobTerminal) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// ClearCompleted removes succeeded jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, string(StatusSucceeded))
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed and canceled jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, string(StatusFailed), string(StatusCanceled))
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all terminal jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		string(StatusSucceeded), string(StatusFailed), string(StatusCanceled))
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the job database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: fmt.Sprintf("%d", schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("job database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat job database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("job database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx = ensureContext(ctx)
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='jobs'",
	).Scan(&tableExists); err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.DatabaseReadable = true
	health.TableExists = tableExists > 0
	if !health.TableExists {
		return health, nil
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.IntegrityCheck = integrity == "ok"

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM jobs").Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, nil
	}

	return health, nil
}
