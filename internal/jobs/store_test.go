package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, jobs.TypeFullPipeline, jobs.Request{Subject: "ethiopian tech"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Request.Subject != "ethiopian tech" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if len(fetched.Steps) != 8 {
		t.Fatalf("expected 8 planned steps, got %d", len(fetched.Steps))
	}
	for _, step := range fetched.Steps {
		if step.Status != jobs.StepPending {
			t.Fatalf("step %s: expected pending, got %s", step.Name, step.Status)
		}
	}
	if len(fetched.Events) != 1 || fetched.Events[0].Message != "job created" {
		t.Fatalf("expected creation event, got %#v", fetched.Events)
	}
	if fetched.Progress != 0 {
		t.Fatalf("expected zero progress, got %f", fetched.Progress)
	}
}

func TestCreatePinnedJobSkipsDiscover(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.Create(context.Background(), jobs.TypeFullPipeline, jobs.Request{VideoID: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("expected video ID recorded, got %q", job.VideoID)
	}
	discover := job.Step(jobs.StepDiscover)
	if discover == nil || discover.Status != jobs.StepSkipped {
		t.Fatalf("expected discover skipped for pinned job, got %#v", discover)
	}
	if discover.Detail != "subject pinned" {
		t.Fatalf("unexpected skip detail %q", discover.Detail)
	}
	if ingest := job.Step(jobs.StepIngest); ingest == nil || ingest.Status != jobs.StepPending {
		t.Fatalf("expected ingest pending, got %#v", ingest)
	}
}

func TestCreateDiscoverJobPlansSingleStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.Create(context.Background(), jobs.TypeDiscover, jobs.Request{Profile: "tech"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(job.Steps) != 1 || job.Steps[0].Name != jobs.StepDiscover {
		t.Fatalf("expected single discover step, got %#v", job.Steps)
	}
}

func TestGetMissingJobReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Get(context.Background(), "no-such-job")
	if err == nil {
		t.Fatal("expected error for missing job")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found marker, got %v", err)
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := store.Create(ctx, jobs.TypeFullPipeline, jobs.Request{Subject: fmt.Sprintf("subject-%d", i)})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	listed, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(listed))
	}
	if listed[0].ID != ids[2] || listed[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %s then %s", listed[0].ID, listed[1].ID)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all jobs without limit, got %d", len(all))
	}
}

func TestUpdatePersistsMutation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	updated, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.CurrentStep = jobs.StepDiscover
		step := j.Step(jobs.StepDiscover)
		step.Status = jobs.StepRunning
		step.Attempts = 1
		j.AppendEvent(jobs.EventInfo, jobs.StepDiscover, "step started")
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != jobs.StatusRunning || updated.CurrentStep != jobs.StepDiscover {
		t.Fatalf("unexpected updated job: status=%s step=%s", updated.Status, updated.CurrentStep)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != jobs.StatusRunning {
		t.Fatalf("expected running after reload, got %s", fetched.Status)
	}
	if step := fetched.Step(jobs.StepDiscover); step.Status != jobs.StepRunning || step.Attempts != 1 {
		t.Fatalf("step state not persisted: %#v", step)
	}
	if fetched.UpdatedAt.Before(fetched.CreatedAt) {
		t.Fatalf("updated_at may not precede created_at: created=%s updated=%s", fetched.CreatedAt, fetched.UpdatedAt)
	}
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusSucceeded
		return nil
	})
	if err == nil {
		t.Fatal("expected error for queued -> succeeded")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != jobs.StatusQueued {
		t.Fatalf("rejected update must not persist, got %s", fetched.Status)
	}
}

func TestUpdateRejectsTerminalJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	if _, _, err := store.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Result = map[string]any{"video_url": "https://example.com"}
		return nil
	})
	if err == nil {
		t.Fatal("expected terminal job to reject mutation")
	}
	if !errors.Is(err, jobs.ErrJobTerminal) {
		t.Fatalf("expected terminal marker, got %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Result != nil {
		t.Fatalf("terminal job must stay unchanged, got result %#v", fetched.Result)
	}
}

func TestUpdateClampsProgressRegression(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.Progress = 0.5
		return nil
	})

	updated := testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		j.Progress = 0.25
		return nil
	})
	if updated.Progress != 0.5 {
		t.Fatalf("expected progress clamped at 0.5, got %f", updated.Progress)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Progress != 0.5 {
		t.Fatalf("expected persisted progress 0.5, got %f", fetched.Progress)
	}
}

func TestUpdateBoundsEventLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	updated := testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		for i := 0; i < jobs.EventLimit+25; i++ {
			j.AppendEvent(jobs.EventInfo, "", fmt.Sprintf("event-%d", i))
		}
		return nil
	})
	if len(updated.Events) != jobs.EventLimit {
		t.Fatalf("expected event log bounded at %d, got %d", jobs.EventLimit, len(updated.Events))
	}
	newest := updated.Events[len(updated.Events)-1]
	if newest.Message != fmt.Sprintf("event-%d", jobs.EventLimit+24) {
		t.Fatalf("expected newest event retained, got %q", newest.Message)
	}
	oldest := updated.Events[0]
	if oldest.Message == "job created" {
		t.Fatal("expected oldest events evicted first")
	}
}

func TestRequestCancelQueuedFinalizesCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	canceled, applied, err := store.RequestCancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if !applied {
		t.Fatal("expected cancellation applied")
	}
	if canceled.Status != jobs.StatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}
	for _, step := range canceled.Steps {
		if step.Status == jobs.StepRunning || step.Status == jobs.StepOK {
			t.Fatalf("no step may run for a queued cancel, got %#v", step)
		}
	}
	last := canceled.Events[len(canceled.Events)-1]
	if last.Message != "cancel requested before start, job canceled" {
		t.Fatalf("unexpected cancel event %q", last.Message)
	}
}

func TestRequestCancelRunningMarksCancelRequested(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.CurrentStep = jobs.StepScript
		return nil
	})

	flagged, applied, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if !applied || flagged.Status != jobs.StatusCancelRequested {
		t.Fatalf("expected cancel_requested, got applied=%v status=%s", applied, flagged.Status)
	}
	last := flagged.Events[len(flagged.Events)-1]
	if last.Step != jobs.StepScript || last.Message != "cancel requested" {
		t.Fatalf("unexpected cancel event %#v", last)
	}

	again, applied, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("second RequestCancel failed: %v", err)
	}
	if !applied || again.Status != jobs.StatusCancelRequested {
		t.Fatalf("expected idempotent cancel, got applied=%v status=%s", applied, again.Status)
	}
	if len(again.Events) != len(flagged.Events) {
		t.Fatalf("repeat cancel must not append events: %d vs %d", len(again.Events), len(flagged.Events))
	}
}

func TestRequestCancelTerminalReturnsNotApplied(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, jobs.Request{Subject: "news"})

	ctx := context.Background()
	testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		return nil
	})
	testsupport.MustUpdate(t, store, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusSucceeded
		return nil
	})

	unchanged, applied, err := store.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if applied {
		t.Fatal("expected cancel not applied for terminal job")
	}
	if unchanged.Status != jobs.StatusSucceeded {
		t.Fatalf("terminal status must not change, got %s", unchanged.Status)
	}
}

func TestFailInterruptedFinalizesOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	running := testsupport.NewJob(t, store, jobs.Request{Subject: "running"})
	testsupport.MustUpdate(t, store, running.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.CurrentStep = jobs.StepIngest
		j.Step(jobs.StepIngest).Status = jobs.StepRunning
		return nil
	})

	canceling := testsupport.NewJob(t, store, jobs.Request{Subject: "canceling"})
	testsupport.MustUpdate(t, store, canceling.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.CurrentStep = jobs.StepVoice
		return nil
	})
	if _, _, err := store.RequestCancel(ctx, canceling.ID); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	queued := testsupport.NewJob(t, store, jobs.Request{Subject: "queued"})

	count, err := store.FailInterrupted(ctx, "daemon restarted")
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 jobs finalized, got %d", count)
	}

	failed, err := store.Get(ctx, running.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("expected running job failed, got %s", failed.Status)
	}
	if failed.Error == nil || failed.Error.Kind != services.KindInterrupted {
		t.Fatalf("expected interrupted failure, got %#v", failed.Error)
	}
	if step := failed.Step(jobs.StepIngest); step.Status != jobs.StepFailed {
		t.Fatalf("expected running step failed, got %s", step.Status)
	}

	swept, err := store.Get(ctx, canceling.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if swept.Status != jobs.StatusCanceled {
		t.Fatalf("expected pending cancel applied, got %s", swept.Status)
	}
	if swept.Error != nil {
		t.Fatalf("canceled job must not carry a failure, got %#v", swept.Error)
	}

	untouched, err := store.Get(ctx, queued.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if untouched.Status != jobs.StatusQueued {
		t.Fatalf("queued job must stay queued, got %s", untouched.Status)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, jobs.Request{Subject: "a"})
	testsupport.NewJob(t, store, jobs.Request{Subject: "b"})
	third := testsupport.NewJob(t, store, jobs.Request{Subject: "c"})
	if _, _, err := store.RequestCancel(ctx, third.ID); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected 3 total, got %d", stats.Total)
	}
	if stats.Counts[jobs.StatusQueued] != 2 || stats.Counts[jobs.StatusCanceled] != 1 {
		t.Fatalf("unexpected counts: %#v", stats.Counts)
	}
}

func TestClearRemovesTerminalJobsOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	kept := testsupport.NewJob(t, store, jobs.Request{Subject: "kept"})
	done := testsupport.NewJob(t, store, jobs.Request{Subject: "done"})
	testsupport.MustUpdate(t, store, done.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		return nil
	})
	testsupport.MustUpdate(t, store, done.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusSucceeded
		return nil
	})
	canceled := testsupport.NewJob(t, store, jobs.Request{Subject: "canceled"})
	if _, _, err := store.RequestCancel(ctx, canceled.ID); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 jobs cleared, got %d", removed)
	}

	remaining, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != kept.ID {
		t.Fatalf("expected only queued job to remain, got %#v", remaining)
	}
}

func TestHasSucceededForVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewJob(t, store, jobs.Request{VideoID: "vid-done"})
	testsupport.MustUpdate(t, store, done.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		return nil
	})
	testsupport.MustUpdate(t, store, done.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusSucceeded
		return nil
	})

	failed := testsupport.NewJob(t, store, jobs.Request{VideoID: "vid-failed"})
	testsupport.MustUpdate(t, store, failed.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		return nil
	})
	testsupport.MustUpdate(t, store, failed.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusFailed
		return nil
	})

	if ok, err := store.HasSucceededForVideo(ctx, "vid-done"); err != nil || !ok {
		t.Fatalf("expected vid-done to count as processed, got ok=%v err=%v", ok, err)
	}
	if ok, err := store.HasSucceededForVideo(ctx, "vid-failed"); err != nil || ok {
		t.Fatalf("failed job must not count as processed, got ok=%v err=%v", ok, err)
	}
	if ok, err := store.HasSucceededForVideo(ctx, "vid-unknown"); err != nil || ok {
		t.Fatalf("unknown video must not count as processed, got ok=%v err=%v", ok, err)
	}
	if ok, err := store.HasSucceededForVideo(ctx, ""); err != nil || ok {
		t.Fatalf("empty video id must report false, got ok=%v err=%v", ok, err)
	}
}

func TestCheckHealthReportsDatabaseState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, jobs.Request{Subject: "health"})

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %#v", health)
	}
	if !health.IntegrityCheck {
		t.Fatalf("expected integrity check to pass: %#v", health)
	}
	if health.TotalJobs != 1 {
		t.Fatalf("expected 1 job counted, got %d", health.TotalJobs)
	}
}
