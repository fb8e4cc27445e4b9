package jobs_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"recast/internal/jobs"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    jobs.Status
		to      jobs.Status
		allowed bool
	}{
		{jobs.StatusQueued, jobs.StatusRunning, true},
		{jobs.StatusQueued, jobs.StatusCanceled, true},
		{jobs.StatusQueued, jobs.StatusCancelRequested, true},
		{jobs.StatusQueued, jobs.StatusSucceeded, false},
		{jobs.StatusQueued, jobs.StatusFailed, false},
		{jobs.StatusRunning, jobs.StatusSucceeded, true},
		{jobs.StatusRunning, jobs.StatusFailed, true},
		{jobs.StatusRunning, jobs.StatusCanceled, true},
		{jobs.StatusRunning, jobs.StatusCancelRequested, true},
		{jobs.StatusRunning, jobs.StatusQueued, false},
		{jobs.StatusCancelRequested, jobs.StatusCanceled, true},
		{jobs.StatusCancelRequested, jobs.StatusFailed, true},
		{jobs.StatusCancelRequested, jobs.StatusSucceeded, false},
		{jobs.StatusCancelRequested, jobs.StatusRunning, false},
		{jobs.StatusSucceeded, jobs.StatusRunning, false},
		{jobs.StatusSucceeded, jobs.StatusFailed, false},
		{jobs.StatusFailed, jobs.StatusRunning, false},
		{jobs.StatusCanceled, jobs.StatusRunning, false},
		{jobs.StatusRunning, jobs.StatusRunning, true},
	}
	for _, tc := range cases {
		if got := jobs.CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	terminal := []jobs.Status{jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusCanceled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
		if status.IsActive() {
			t.Fatalf("%s should not be active", status)
		}
	}
	if jobs.StatusQueued.IsTerminal() || jobs.StatusRunning.IsTerminal() || jobs.StatusCancelRequested.IsTerminal() {
		t.Fatal("non-final statuses must not be terminal")
	}
	if !jobs.StatusRunning.IsActive() || !jobs.StatusCancelRequested.IsActive() {
		t.Fatal("running and cancel_requested own a runner")
	}
	if jobs.StatusQueued.IsActive() {
		t.Fatal("queued jobs have no runner yet")
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := jobs.ParseStatus(" Running ")
	if !ok || status != jobs.StatusRunning {
		t.Fatalf("expected running, got %q ok=%v", status, ok)
	}
	if _, ok := jobs.ParseStatus("paused"); ok {
		t.Fatal("unknown status must not parse")
	}
}

func TestParseJobType(t *testing.T) {
	jobType, ok := jobs.ParseJobType("")
	if !ok || jobType != jobs.TypeFullPipeline {
		t.Fatalf("expected empty to default to full pipeline, got %q ok=%v", jobType, ok)
	}
	jobType, ok = jobs.ParseJobType("discover")
	if !ok || jobType != jobs.TypeDiscover {
		t.Fatalf("expected discover, got %q ok=%v", jobType, ok)
	}
	if _, ok := jobs.ParseJobType("transcode"); ok {
		t.Fatal("unknown job type must not parse")
	}
}

func TestPlanStepsOrder(t *testing.T) {
	expected := []string{
		jobs.StepDiscover,
		jobs.StepIngest,
		jobs.StepScript,
		jobs.StepVoice,
		jobs.StepRender,
		jobs.StepThumbnail,
		jobs.StepUpload,
		jobs.StepDistribute,
	}
	plan := jobs.PlanSteps(jobs.TypeFullPipeline)
	if len(plan) != len(expected) {
		t.Fatalf("expected %d steps, got %d", len(expected), len(plan))
	}
	for i, name := range expected {
		if plan[i] != name {
			t.Fatalf("step %d: expected %s, got %s", i, name, plan[i])
		}
	}

	discoverPlan := jobs.PlanSteps(jobs.TypeDiscover)
	if len(discoverPlan) != 1 || discoverPlan[0] != jobs.StepDiscover {
		t.Fatalf("unexpected discover plan: %#v", discoverPlan)
	}
}

func TestAppendEventEvictsOldest(t *testing.T) {
	job := &jobs.Job{}
	for i := 0; i < jobs.EventLimit+10; i++ {
		job.AppendEvent(jobs.EventInfo, "", fmt.Sprintf("event-%d", i))
	}
	if len(job.Events) != jobs.EventLimit {
		t.Fatalf("expected %d events, got %d", jobs.EventLimit, len(job.Events))
	}
	if job.Events[0].Message != "event-10" {
		t.Fatalf("expected oldest evicted, first is %q", job.Events[0].Message)
	}
	if job.Events[len(job.Events)-1].Message != fmt.Sprintf("event-%d", jobs.EventLimit+9) {
		t.Fatalf("expected newest retained, last is %q", job.Events[len(job.Events)-1].Message)
	}
}

func TestResetStepsClearsState(t *testing.T) {
	score := 87.5
	now := time.Now().UTC()
	job := &jobs.Job{
		Steps: []jobs.Step{
			{Name: jobs.StepIngest, Status: jobs.StepOK, Attempts: 1, StartedAt: &now, FinishedAt: &now},
			{Name: jobs.StepScript, Status: jobs.StepOK, Attempts: 2, Score: &score, Detail: "accepted", StartedAt: &now, FinishedAt: &now},
		},
	}

	job.ResetSteps(jobs.StepScript)

	if step := job.Step(jobs.StepIngest); step.Status != jobs.StepOK {
		t.Fatalf("untouched step must keep state, got %#v", step)
	}
	reset := job.Step(jobs.StepScript)
	if reset.Status != jobs.StepPending || reset.Attempts != 0 || reset.Score != nil {
		t.Fatalf("expected script reset, got %#v", reset)
	}
	if reset.Detail != "" || reset.StartedAt != nil || reset.FinishedAt != nil {
		t.Fatalf("expected script details cleared, got %#v", reset)
	}
}

func TestRecomputeProgressCountsSkipped(t *testing.T) {
	job := &jobs.Job{
		Steps: []jobs.Step{
			{Name: jobs.StepDiscover, Status: jobs.StepSkipped},
			{Name: jobs.StepIngest, Status: jobs.StepOK},
			{Name: jobs.StepScript, Status: jobs.StepRunning},
			{Name: jobs.StepVoice, Status: jobs.StepPending},
		},
	}
	job.RecomputeProgress()
	if job.Progress != 0.5 {
		t.Fatalf("expected progress 0.5, got %f", job.Progress)
	}

	empty := &jobs.Job{Progress: 0.25}
	empty.RecomputeProgress()
	if empty.Progress != 0.25 {
		t.Fatalf("empty plan must not change progress, got %f", empty.Progress)
	}
}

func TestJobJSONRoundTrip(t *testing.T) {
	score := 92.0
	started := time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)
	job := &jobs.Job{
		ID:          "7b0d9c9e-ffda-4f6e-9f41-0f5ad3f1f001",
		JobType:     jobs.TypeFullPipeline,
		Status:      jobs.StatusFailed,
		VideoID:     "abc123",
		CurrentStep: jobs.StepRender,
		Progress:    0.5,
		Request:     jobs.Request{VideoID: "abc123", Privacy: "unlisted", DryRun: true},
		Steps: []jobs.Step{
			{Name: jobs.StepScript, Status: jobs.StepOK, Attempts: 2, Score: &score, StartedAt: &started},
		},
		Error: &jobs.Failure{
			Kind:                "transient_exhausted",
			Step:                jobs.StepRender,
			Message:             "ffmpeg exited with status 1",
			Attempts:            3,
			CancellationPending: true,
		},
		Events: []jobs.Event{
			{At: started, Level: jobs.EventError, Step: jobs.StepRender, Message: "render failed"},
		},
		CreatedAt: started,
		UpdatedAt: started.Add(time.Minute),
	}

	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded jobs.Job
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Status != jobs.StatusFailed || decoded.CurrentStep != jobs.StepRender {
		t.Fatalf("lifecycle fields lost: %#v", decoded)
	}
	if decoded.Error == nil || !decoded.Error.CancellationPending {
		t.Fatalf("failure record lost: %#v", decoded.Error)
	}
	if len(decoded.Steps) != 1 || decoded.Steps[0].Score == nil || *decoded.Steps[0].Score != 92.0 {
		t.Fatalf("step score lost: %#v", decoded.Steps)
	}
	if !decoded.Request.DryRun || decoded.Request.Privacy != "unlisted" {
		t.Fatalf("request lost: %#v", decoded.Request)
	}
}
