package steps

import (
	"context"
	"errors"
	"testing"

	"recast/internal/candidates"
	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/step"
)

type fakeSelector struct {
	lastProfile *candidates.Profile
	stream      *candidates.Stream
	err         error
}

func (f *fakeSelector) Select(_ context.Context, profile candidates.Profile) (*candidates.Stream, error) {
	f.lastProfile = &profile
	return f.stream, f.err
}

func TestDiscoverSelectsFirstCandidate(t *testing.T) {
	stream := candidates.NewStream([]candidates.Candidate{
		{VideoID: "vid-1", Title: "Best Recap", ChannelTitle: "Recap Central", Score: 120000},
		{VideoID: "vid-2", Title: "Second", Score: 9000},
	})
	selector := &fakeSelector{stream: stream}
	discover := NewDiscover(selector, DiscoverConfig{MaxCandidates: 5}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	outcome, err := discover.Execute(context.Background(), xchg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if xchg.Candidate == nil || xchg.Candidate.VideoID != "vid-1" {
		t.Fatalf("candidate = %+v, want vid-1", xchg.Candidate)
	}
	if xchg.Stream != stream {
		t.Error("stream not attached to exchange")
	}
	if got := outcome.Artifacts["candidate_video_id"]; got != "vid-1" {
		t.Errorf("candidate artifact = %v", got)
	}
	if selector.lastProfile == nil || selector.lastProfile.Limits.MaxCandidates != 5 {
		t.Errorf("profile limit override not applied: %+v", selector.lastProfile)
	}
}

func TestDiscoverUsesRequestProfileName(t *testing.T) {
	stream := candidates.NewStream([]candidates.Candidate{{VideoID: "vid-1"}})
	selector := &fakeSelector{stream: stream}
	discover := NewDiscover(selector, DiscoverConfig{}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{Profile: "missing-profile"}, t.TempDir())
	_, err := discover.Execute(context.Background(), xchg)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration for unknown profile", err)
	}
}

func TestDiscoverFailsWhenStreamEmpty(t *testing.T) {
	selector := &fakeSelector{stream: candidates.NewStream(nil)}
	discover := NewDiscover(selector, DiscoverConfig{}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	_, err := discover.Execute(context.Background(), xchg)
	if !errors.Is(err, services.ErrNoViableCandidate) {
		t.Fatalf("error = %v, want ErrNoViableCandidate", err)
	}
}
