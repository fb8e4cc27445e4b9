package candidates

import (
	"context"
	"errors"
	"testing"
	"time"

	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/youtube"
)

// fakeSource scripts the YouTube API surface the selector consumes.
type fakeSource struct {
	channelsByQuery map[string][]youtube.ChannelRef
	stats           map[string]youtube.ChannelStats
	uploadTimes     map[string][]time.Time
	videoIDs        map[string][]string // keyed by channelID + "/" + order
	videos          map[string]youtube.Video
	searchErr       error
}

func (f *fakeSource) SearchChannels(_ context.Context, query string, limit int) ([]youtube.ChannelRef, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	refs := f.channelsByQuery[query]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (f *fakeSource) GetChannelStats(_ context.Context, ids []string) ([]youtube.ChannelStats, error) {
	out := make([]youtube.ChannelStats, 0, len(ids))
	for _, id := range ids {
		if stats, ok := f.stats[id]; ok {
			out = append(out, stats)
		}
	}
	return out, nil
}

func (f *fakeSource) GetUploadTimes(_ context.Context, playlistID string, limit int) ([]time.Time, error) {
	times := f.uploadTimes[playlistID]
	if len(times) > limit {
		times = times[:limit]
	}
	return times, nil
}

func (f *fakeSource) SearchVideoIDs(_ context.Context, channelID, order string, _ time.Time, limit int) ([]string, error) {
	ids := f.videoIDs[channelID+"/"+order]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeSource) GetVideos(_ context.Context, ids []string) ([]youtube.Video, error) {
	out := make([]youtube.Video, 0, len(ids))
	for _, id := range ids {
		if video, ok := f.videos[id]; ok {
			out = append(out, video)
		}
	}
	return out, nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// newRankedSource scripts two channels where chan-big dominates every
// composite metric, and gives each channel two videos with distinct
// velocities.
func newRankedSource() *fakeSource {
	weekly := make([]time.Time, 0, 5)
	for i := 0; i < 5; i++ {
		weekly = append(weekly, testNow.AddDate(0, 0, -7*i))
	}
	return &fakeSource{
		channelsByQuery: map[string][]youtube.ChannelRef{
			"movie recap": {{ID: "chan-big"}, {ID: "chan-small"}},
			"story recap": {{ID: "chan-small"}},
		},
		stats: map[string]youtube.ChannelStats{
			"chan-big": {
				ID: "chan-big", Title: "Big Recaps",
				Subscribers: 2_000_000, VideoCount: 100, TotalViews: 50_000_000,
				UploadsPlaylistID: "uploads-big",
			},
			"chan-small": {
				ID: "chan-small", Title: "Small Recaps",
				Subscribers: 10_000, VideoCount: 40, TotalViews: 400_000,
				UploadsPlaylistID: "uploads-small",
			},
		},
		uploadTimes: map[string][]time.Time{
			"uploads-big":   weekly,
			"uploads-small": {testNow.AddDate(0, 0, -10), testNow.AddDate(0, 0, -80)},
		},
		videoIDs: map[string][]string{
			"chan-big/date":        {"big-new"},
			"chan-small/date":      {},
			"chan-big/viewCount":   {"big-old", "big-new"},
			"chan-small/viewCount": {"small-1"},
		},
		videos: map[string]youtube.Video{
			"big-new": {
				ID: "big-new", Title: "Fresh Recap", ChannelID: "chan-big", ChannelTitle: "Big Recaps",
				Views: 500_000, DurationSec: 900, PublishedAt: testNow.AddDate(0, 0, -5),
			},
			"big-old": {
				ID: "big-old", Title: "Slow Recap", ChannelID: "chan-big", ChannelTitle: "Big Recaps",
				Views: 1_000_000, DurationSec: 1200, PublishedAt: testNow.AddDate(0, 0, -100),
			},
			"small-1": {
				ID: "small-1", Title: "Quiet Recap", ChannelID: "chan-small", ChannelTitle: "Small Recaps",
				Views: 20_000, DurationSec: 600, PublishedAt: testNow.AddDate(0, 0, -20),
			},
		},
	}
}

func newTestSelector(source Source, opts ...SelectorOption) *YouTubeSelector {
	base := []SelectorOption{
		WithLogger(logging.NewNop()),
		WithClock(func() time.Time { return testNow }),
	}
	return NewYouTubeSelector(source, append(base, opts...)...)
}

func TestSelectRanksByVelocity(t *testing.T) {
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap", "story recap"}

	stream, err := newTestSelector(newRankedSource()).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if stream.Size() != 3 {
		t.Fatalf("expected 3 candidates, got %d", stream.Size())
	}

	// big-new: 500000 views / 5 days = 100000/day
	// big-old: 1000000 views / 100 days = 10000/day
	// small-1: 20000 views / 20 days = 1000/day
	wantOrder := []string{"big-new", "big-old", "small-1"}
	for i, want := range wantOrder {
		candidate, err := stream.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d returned error: %v", i, err)
		}
		if candidate.VideoID != want {
			t.Fatalf("candidate %d = %s, want %s", i, candidate.VideoID, want)
		}
	}
}

func TestSelectComputesVelocityScore(t *testing.T) {
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap"}

	stream, err := newTestSelector(newRankedSource()).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	candidate, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if candidate.VideoID != "big-new" {
		t.Fatalf("top candidate = %s, want big-new", candidate.VideoID)
	}
	if candidate.Score != 100_000 {
		t.Fatalf("velocity = %.1f, want 100000", candidate.Score)
	}
	if candidate.ChannelTitle != "Big Recaps" {
		t.Fatalf("channel title = %q", candidate.ChannelTitle)
	}
}

func TestSelectPrefersStrongerChannel(t *testing.T) {
	source := newRankedSource()
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap", "story recap"}
	profile.Limits.TopChannels = 1

	stream, err := newTestSelector(source).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	for {
		candidate, err := stream.Next(context.Background())
		if err != nil {
			break
		}
		if candidate.ChannelID != "chan-big" {
			t.Fatalf("candidate %s comes from %s, want only chan-big", candidate.VideoID, candidate.ChannelID)
		}
	}
	if stream.Size() != 2 {
		t.Fatalf("expected 2 candidates from the top channel, got %d", stream.Size())
	}
}

func TestSelectAppliesDurationBounds(t *testing.T) {
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap"}
	profile.MinDurationSec = 850
	profile.MaxDurationSec = 1000

	stream, err := newTestSelector(newRankedSource()).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if stream.Size() != 1 {
		t.Fatalf("expected 1 candidate inside duration bounds, got %d", stream.Size())
	}
	candidate, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if candidate.VideoID != "big-new" {
		t.Fatalf("candidate = %s, want big-new", candidate.VideoID)
	}
}

func TestSelectSkipsExcludedVideos(t *testing.T) {
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap", "story recap"}

	exclude := func(_ context.Context, videoID string) (bool, error) {
		return videoID == "big-new", nil
	}
	stream, err := newTestSelector(newRankedSource(), WithExcluder(exclude)).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	for {
		candidate, err := stream.Next(context.Background())
		if err != nil {
			break
		}
		if candidate.VideoID == "big-new" {
			t.Fatal("excluded candidate surfaced in stream")
		}
	}
}

func TestSelectTruncatesToMaxCandidates(t *testing.T) {
	profile := DefaultProfile()
	profile.Queries = []string{"movie recap", "story recap"}
	profile.Limits.MaxCandidates = 1

	stream, err := newTestSelector(newRankedSource()).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if stream.Size() != 1 {
		t.Fatalf("expected 1 candidate, got %d", stream.Size())
	}
	candidate, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if candidate.VideoID != "big-new" {
		t.Fatalf("kept candidate = %s, want the fastest one", candidate.VideoID)
	}
}

func TestSelectFailsWhenAllQueriesFail(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("quota exceeded")}
	profile := DefaultProfile()

	_, err := newTestSelector(source).Select(context.Background(), profile)
	if err == nil {
		t.Fatal("expected error when every query fails")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
}

func TestSelectReturnsEmptyStreamWhenNothingMatches(t *testing.T) {
	source := &fakeSource{channelsByQuery: map[string][]youtube.ChannelRef{}}
	profile := DefaultProfile()

	stream, err := newTestSelector(source).Select(context.Background(), profile)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if stream.Size() != 0 {
		t.Fatalf("expected empty stream, got %d candidates", stream.Size())
	}
	_, err = stream.Next(context.Background())
	if !errors.Is(err, services.ErrNoViableCandidate) {
		t.Fatalf("Next on empty stream = %v, want ErrNoViableCandidate", err)
	}
}

func TestUploadConsistencyRewardsWeeklyCadence(t *testing.T) {
	source := newRankedSource()
	selector := newTestSelector(source)

	weekly := selector.uploadConsistency(context.Background(), source.stats["chan-big"])
	if weekly != 1.0 {
		t.Fatalf("weekly cadence consistency = %.2f, want 1.0", weekly)
	}
	sparse := selector.uploadConsistency(context.Background(), source.stats["chan-small"])
	if sparse >= weekly {
		t.Fatalf("sparse cadence %.2f should score below weekly %.2f", sparse, weekly)
	}
	none := selector.uploadConsistency(context.Background(), youtube.ChannelStats{ID: "chan-none"})
	if none != 0 {
		t.Fatalf("missing uploads playlist consistency = %.2f, want 0", none)
	}
}

func TestStreamNeverRevisits(t *testing.T) {
	stream := NewStream([]Candidate{
		{VideoID: "a", Score: 3},
		{VideoID: "b", Score: 2},
		{VideoID: "a", Score: 1}, // duplicate dropped
	})
	if stream.Size() != 2 {
		t.Fatalf("stream size = %d, want 2", stream.Size())
	}
	seen := map[string]int{}
	for {
		candidate, err := stream.Next(context.Background())
		if err != nil {
			if !errors.Is(err, services.ErrNoViableCandidate) {
				t.Fatalf("exhaustion error = %v", err)
			}
			break
		}
		seen[candidate.VideoID]++
	}
	if seen["a"] != 1 || seen["b"] != 1 {
		t.Fatalf("candidates yielded more than once: %v", seen)
	}
	if stream.Remaining() != 0 {
		t.Fatalf("remaining = %d after exhaustion", stream.Remaining())
	}
}

func TestStreamHonorsContext(t *testing.T) {
	stream := NewStream([]Candidate{{VideoID: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stream.Next(ctx)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("Next with canceled context = %v, want ErrCancelled", err)
	}
}
