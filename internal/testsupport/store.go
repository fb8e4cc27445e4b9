package testsupport

import (
	"context"
	"testing"

	"recast/internal/config"
	"recast/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a full-pipeline job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, req jobs.Request) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobs.TypeFullPipeline, req)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// MustUpdate applies a mutation to a job and fails the test on error.
func MustUpdate(t testing.TB, store *jobs.Store, id string, mutate func(*jobs.Job) error) *jobs.Job {
	t.Helper()

	job, err := store.Update(context.Background(), id, mutate)
	if err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	return job
}
