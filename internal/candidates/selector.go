package candidates

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/services/youtube"
)

const (
	subscriberScale = 1_000_000
	avgViewScale    = 100_000
	growthViewScale = 1_000_000
	growthWindow    = 30 * 24 * time.Hour
	uploadSample    = 20
	growthSample    = 10
)

// Selector produces a ranked candidate stream for a discovery profile.
type Selector interface {
	Select(ctx context.Context, profile Profile) (*Stream, error)
}

// Source is the slice of the YouTube Data API that discovery needs.
// *youtube.Client satisfies it.
type Source interface {
	SearchChannels(ctx context.Context, query string, limit int) ([]youtube.ChannelRef, error)
	GetChannelStats(ctx context.Context, ids []string) ([]youtube.ChannelStats, error)
	GetUploadTimes(ctx context.Context, playlistID string, limit int) ([]time.Time, error)
	SearchVideoIDs(ctx context.Context, channelID, order string, publishedAfter time.Time, limit int) ([]string, error)
	GetVideos(ctx context.Context, ids []string) ([]youtube.Video, error)
}

// Excluder reports whether a video was already recapped and must be skipped.
type Excluder func(ctx context.Context, videoID string) (bool, error)

// YouTubeSelector ranks channels by a weighted composite of audience metrics
// and their videos by views velocity.
type YouTubeSelector struct {
	source  Source
	logger  *slog.Logger
	exclude Excluder
	now     func() time.Time
}

// SelectorOption adjusts optional selector behavior.
type SelectorOption func(*YouTubeSelector)

// WithLogger routes selector diagnostics to the given logger.
func WithLogger(logger *slog.Logger) SelectorOption {
	return func(s *YouTubeSelector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExcluder filters out videos the excluder reports as already processed.
func WithExcluder(exclude Excluder) SelectorOption {
	return func(s *YouTubeSelector) {
		s.exclude = exclude
	}
}

// WithClock overrides the time source used for velocity and recency math.
func WithClock(now func() time.Time) SelectorOption {
	return func(s *YouTubeSelector) {
		if now != nil {
			s.now = now
		}
	}
}

// NewYouTubeSelector builds a selector over the given API source.
func NewYouTubeSelector(source Source, opts ...SelectorOption) *YouTubeSelector {
	selector := &YouTubeSelector{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(selector)
	}
	return selector
}

type scoredChannel struct {
	stats youtube.ChannelStats
	score float64
}

// Select runs the full discovery pass: find channels for every profile
// query, score them, then rank the top channels' videos by views velocity.
func (s *YouTubeSelector) Select(ctx context.Context, profile Profile) (*Stream, error) {
	channels, err := s.collectChannels(ctx, profile)
	if err != nil {
		return nil, err
	}
	scored := s.scoreChannels(ctx, profile, channels)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > profile.Limits.TopChannels {
		scored = scored[:profile.Limits.TopChannels]
	}

	pool := make([]Candidate, 0, profile.Limits.TopChannels*profile.Limits.VideosPerChannel)
	for _, channel := range scored {
		videos, err := s.channelCandidates(ctx, profile, channel.stats)
		if err != nil {
			s.logger.Warn("channel video lookup failed",
				logging.String("channel", channel.stats.ID),
				logging.Error(err))
			continue
		}
		pool = append(pool, videos...)
	}

	pool, err = s.filterExcluded(ctx, pool)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	if len(pool) > profile.Limits.MaxCandidates {
		pool = pool[:profile.Limits.MaxCandidates]
	}
	s.logger.Info("discovery ranked candidates",
		logging.String("profile", profile.Name),
		logging.Int("channels", len(scored)),
		logging.Int("candidates", len(pool)))
	return NewStream(pool), nil
}

// collectChannels merges channel search results across all profile queries,
// deduplicating by channel ID. Individual query failures are tolerated as
// long as at least one query succeeds.
func (s *YouTubeSelector) collectChannels(ctx context.Context, profile Profile) ([]youtube.ChannelStats, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(profile.Queries)*profile.Limits.ChannelsPerQuery)
	var lastErr error
	for _, query := range profile.Queries {
		refs, err := s.source.SearchChannels(ctx, query, profile.Limits.ChannelsPerQuery)
		if err != nil {
			lastErr = err
			s.logger.Warn("channel search failed",
				logging.String("query", query),
				logging.Error(err))
			continue
		}
		for _, ref := range refs {
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			seen[ref.ID] = struct{}{}
			ids = append(ids, ref.ID)
		}
	}
	if len(ids) == 0 {
		if lastErr != nil {
			return nil, services.Wrap(services.ErrExternalTool, "discover", "search channels", "all profile queries failed", lastErr)
		}
		return nil, nil
	}

	stats := make([]youtube.ChannelStats, 0, len(ids))
	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := s.source.GetChannelStats(ctx, ids[start:end])
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "discover", "channel stats", "stats lookup failed", err)
		}
		stats = append(stats, batch...)
	}
	return stats, nil
}

func (s *YouTubeSelector) scoreChannels(ctx context.Context, profile Profile, channels []youtube.ChannelStats) []scoredChannel {
	scored := make([]scoredChannel, 0, len(channels))
	for _, stats := range channels {
		composite := s.compositeScore(ctx, profile.Weights, stats)
		scored = append(scored, scoredChannel{stats: stats, score: composite})
	}
	return scored
}

// compositeScore blends the four audience metrics. Metrics that cannot be
// fetched contribute zero rather than failing the whole channel.
func (s *YouTubeSelector) compositeScore(ctx context.Context, weights Weights, stats youtube.ChannelStats) float64 {
	subsNorm := clampUnit(float64(stats.Subscribers) / subscriberScale)

	avgViews := 0.0
	if stats.VideoCount > 0 {
		avgViews = float64(stats.TotalViews) / float64(stats.VideoCount)
	}
	viewsNorm := clampUnit(avgViews / avgViewScale)

	consistency := s.uploadConsistency(ctx, stats)
	growth := s.growthProxy(ctx, stats)

	return weights.Subscribers*subsNorm +
		weights.AvgViews*viewsNorm +
		weights.UploadConsistency*consistency +
		weights.GrowthProxy*growth
}

// uploadConsistency rewards channels that publish about weekly or faster:
// min(1, 7 / avg days between the latest uploads).
func (s *YouTubeSelector) uploadConsistency(ctx context.Context, stats youtube.ChannelStats) float64 {
	if stats.UploadsPlaylistID == "" {
		return 0
	}
	times, err := s.source.GetUploadTimes(ctx, stats.UploadsPlaylistID, uploadSample)
	if err != nil {
		s.logger.Debug("upload history unavailable",
			logging.String("channel", stats.ID),
			logging.Error(err))
		return 0
	}
	if len(times) < 2 {
		return 0
	}
	var totalGap time.Duration
	for i := 1; i < len(times); i++ {
		totalGap += times[i-1].Sub(times[i])
	}
	avgGapDays := totalGap.Hours() / 24 / float64(len(times)-1)
	if avgGapDays < 1 {
		avgGapDays = 1
	}
	return clampUnit(7.0 / avgGapDays)
}

// growthProxy estimates momentum from views gathered in the last 30 days.
func (s *YouTubeSelector) growthProxy(ctx context.Context, stats youtube.ChannelStats) float64 {
	cutoff := s.now().Add(-growthWindow)
	ids, err := s.source.SearchVideoIDs(ctx, stats.ID, "date", cutoff, growthSample)
	if err != nil || len(ids) == 0 {
		if err != nil {
			s.logger.Debug("recent uploads unavailable",
				logging.String("channel", stats.ID),
				logging.Error(err))
		}
		return 0
	}
	videos, err := s.source.GetVideos(ctx, ids)
	if err != nil {
		s.logger.Debug("recent upload stats unavailable",
			logging.String("channel", stats.ID),
			logging.Error(err))
		return 0
	}
	var recentViews int64
	for _, video := range videos {
		recentViews += video.Views
	}
	return clampUnit(float64(recentViews) / growthViewScale)
}

// channelCandidates pulls a channel's top videos and ranks them by views
// velocity. Twice the per-channel quota is fetched so duration and recency
// filters do not starve the ranking.
func (s *YouTubeSelector) channelCandidates(ctx context.Context, profile Profile, stats youtube.ChannelStats) ([]Candidate, error) {
	var publishedAfter time.Time
	if profile.RecencyDays > 0 {
		publishedAfter = s.now().AddDate(0, 0, -profile.RecencyDays)
	}
	ids, err := s.source.SearchVideoIDs(ctx, stats.ID, "viewCount", publishedAfter, profile.Limits.VideosPerChannel*2)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	videos, err := s.source.GetVideos(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(videos))
	for _, video := range videos {
		if !s.durationAllowed(profile, video.DurationSec) {
			continue
		}
		candidates = append(candidates, Candidate{
			VideoID:      video.ID,
			Title:        video.Title,
			ChannelID:    video.ChannelID,
			ChannelTitle: video.ChannelTitle,
			PublishedAt:  video.PublishedAt,
			Views:        video.Views,
			DurationSec:  video.DurationSec,
			Score:        s.velocity(video),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > profile.Limits.VideosPerChannel {
		candidates = candidates[:profile.Limits.VideosPerChannel]
	}
	return candidates, nil
}

// velocity is views per day since publication, with a one-day floor so
// fresh uploads do not divide by zero.
func (s *YouTubeSelector) velocity(video youtube.Video) float64 {
	days := int(s.now().Sub(video.PublishedAt).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return float64(video.Views) / float64(days)
}

func (s *YouTubeSelector) durationAllowed(profile Profile, seconds int) bool {
	if profile.MinDurationSec > 0 && seconds < profile.MinDurationSec {
		return false
	}
	if profile.MaxDurationSec > 0 && seconds > profile.MaxDurationSec {
		return false
	}
	return true
}

func (s *YouTubeSelector) filterExcluded(ctx context.Context, pool []Candidate) ([]Candidate, error) {
	if s.exclude == nil {
		return pool, nil
	}
	kept := pool[:0]
	for _, candidate := range pool {
		skip, err := s.exclude(ctx, candidate.VideoID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "discover", "exclusion check", candidate.VideoID, err)
		}
		if skip {
			s.logger.Debug("candidate already processed",
				logging.String("video", candidate.VideoID))
			continue
		}
		kept = append(kept, candidate)
	}
	return kept, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
