package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"recast/internal/jobs"
	"recast/internal/services"
)

type stubLister struct {
	jobs []*jobs.Job
	err  error
}

func (s *stubLister) List(context.Context, int) ([]*jobs.Job, error) {
	return s.jobs, s.err
}

func succeededJob(id string, at time.Time, result map[string]any) *jobs.Job {
	return &jobs.Job{
		ID:        id,
		JobType:   jobs.TypeFullPipeline,
		Status:    jobs.StatusSucceeded,
		Result:    result,
		UpdatedAt: at,
	}
}

func failedJob(id string, at time.Time, kind string) *jobs.Job {
	return &jobs.Job{
		ID:        id,
		JobType:   jobs.TypeFullPipeline,
		Status:    jobs.StatusFailed,
		Error:     &jobs.Failure{Kind: kind, Message: "boom"},
		UpdatedAt: at,
	}
}

func TestBuildDaily(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	lister := &stubLister{jobs: []*jobs.Job{
		succeededJob("job-1", now.Add(-1*time.Hour), map[string]any{
			"youtube_video_id": "yt-111",
			"youtube_url":      "https://youtu.be/yt-111",
			"video_title":      "Weekly Recap",
		}),
		succeededJob("job-2", now.Add(-3*time.Hour), map[string]any{
			"youtube_video_id": "yt-222",
			"youtube_url":      "https://youtu.be/yt-222",
		}),
		// Dry run: succeeded but nothing published.
		succeededJob("job-3", now.Add(-2*time.Hour), map[string]any{
			"output_path": "/tmp/recap.mp4",
		}),
		failedJob("job-4", now.Add(-4*time.Hour), services.KindGateExhausted),
		failedJob("job-5", now.Add(-5*time.Hour), services.KindGateExhausted),
		failedJob("job-6", now.Add(-6*time.Hour), services.KindTransient),
		{ID: "job-7", Status: jobs.StatusRunning, UpdatedAt: now.Add(-time.Minute)},
		// Outside the window.
		succeededJob("job-old", now.Add(-30*time.Hour), map[string]any{
			"youtube_video_id": "yt-old",
		}),
	}}

	daily, err := BuildDaily(context.Background(), lister, now)
	if err != nil {
		t.Fatalf("build daily: %v", err)
	}

	if daily.Total != 7 {
		t.Fatalf("expected 7 jobs in window, got %d", daily.Total)
	}
	if daily.Counts["succeeded"] != 3 {
		t.Fatalf("expected 3 succeeded, got %d", daily.Counts["succeeded"])
	}
	if daily.Counts["failed"] != 3 {
		t.Fatalf("expected 3 failed, got %d", daily.Counts["failed"])
	}
	if daily.Counts["running"] != 1 {
		t.Fatalf("expected 1 running, got %d", daily.Counts["running"])
	}

	if len(daily.Uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(daily.Uploads))
	}
	if daily.Uploads[0].JobID != "job-1" || daily.Uploads[1].JobID != "job-2" {
		t.Fatalf("expected uploads newest first, got %s then %s",
			daily.Uploads[0].JobID, daily.Uploads[1].JobID)
	}
	if daily.Uploads[0].Title != "Weekly Recap" {
		t.Fatalf("unexpected upload title: %q", daily.Uploads[0].Title)
	}
	if daily.Uploads[0].URL != "https://youtu.be/yt-111" {
		t.Fatalf("unexpected upload url: %q", daily.Uploads[0].URL)
	}

	if len(daily.Failures) != 2 {
		t.Fatalf("expected 2 failure kinds, got %d", len(daily.Failures))
	}
	if daily.Failures[0].Kind != services.KindGateExhausted || daily.Failures[0].Count != 2 {
		t.Fatalf("expected gate_exhausted x2 first, got %+v", daily.Failures[0])
	}
	if daily.Failures[1].Kind != services.KindTransient || daily.Failures[1].Count != 1 {
		t.Fatalf("expected transient_exhausted x1 second, got %+v", daily.Failures[1])
	}
}

func TestBuildDailyEmptyWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	lister := &stubLister{jobs: []*jobs.Job{
		succeededJob("job-old", now.Add(-48*time.Hour), nil),
	}}

	daily, err := BuildDaily(context.Background(), lister, now)
	if err != nil {
		t.Fatalf("build daily: %v", err)
	}
	if daily.Total != 0 {
		t.Fatalf("expected empty window, got %d jobs", daily.Total)
	}
	if len(daily.Uploads) != 0 || len(daily.Failures) != 0 {
		t.Fatalf("expected no uploads or failures, got %+v", daily)
	}
}

func TestBuildDailyListError(t *testing.T) {
	lister := &stubLister{err: errors.New("db locked")}
	if _, err := BuildDaily(context.Background(), lister, time.Now()); err == nil {
		t.Fatal("expected list error to propagate")
	}
}

func TestBuildDailyMissingFailureKind(t *testing.T) {
	now := time.Now()
	lister := &stubLister{jobs: []*jobs.Job{
		{ID: "job-1", Status: jobs.StatusFailed, UpdatedAt: now.Add(-time.Hour)},
	}}

	daily, err := BuildDaily(context.Background(), lister, now)
	if err != nil {
		t.Fatalf("build daily: %v", err)
	}
	if len(daily.Failures) != 1 || daily.Failures[0].Kind != services.KindInternal {
		t.Fatalf("expected internal fallback kind, got %+v", daily.Failures)
	}
}
