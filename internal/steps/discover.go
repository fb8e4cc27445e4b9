package steps

import (
	"context"
	"log/slog"

	"recast/internal/candidates"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/step"
)

// DiscoverConfig carries the discovery settings from configuration.
type DiscoverConfig struct {
	ProfilesDir    string
	DefaultProfile string
	// MaxCandidates overrides the profile limit when positive.
	MaxCandidates int
}

// Discover resolves the candidate stream and selects the first subject.
// Pinned jobs never reach this step; the runner records it as skipped.
type Discover struct {
	selector candidates.Selector
	cfg      DiscoverConfig
	logger   *slog.Logger
}

// NewDiscover builds the discovery step.
func NewDiscover(selector candidates.Selector, cfg DiscoverConfig, logger *slog.Logger) *Discover {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = "default"
	}
	return &Discover{selector: selector, cfg: cfg, logger: logger}
}

func (d *Discover) Name() string { return jobs.StepDiscover }

func (d *Discover) Execute(ctx context.Context, xchg *step.Exchange) (step.Outcome, error) {
	profileName := xchg.Request.Profile
	if profileName == "" {
		profileName = d.cfg.DefaultProfile
	}
	profile, err := candidates.LoadNamed(d.cfg.ProfilesDir, profileName)
	if err != nil {
		return step.Outcome{}, err
	}
	if d.cfg.MaxCandidates > 0 {
		profile.Limits.MaxCandidates = d.cfg.MaxCandidates
	}

	stream, err := d.selector.Select(ctx, profile)
	if err != nil {
		return step.Outcome{}, err
	}
	candidate, err := stream.Next(ctx)
	if err != nil {
		return step.Outcome{}, err
	}

	xchg.Stream = stream
	xchg.Candidate = candidate
	d.logger.Info("candidate selected",
		logging.String(logging.FieldJobID, xchg.JobID),
		logging.String("video_id", candidate.VideoID),
		logging.String("title", candidate.Title),
		logging.Float64("score", candidate.Score),
		logging.Int("remaining", stream.Remaining()))

	return step.Outcome{Artifacts: map[string]any{
		"candidate_video_id": candidate.VideoID,
		"candidate_title":    candidate.Title,
		"candidate_channel":  candidate.ChannelTitle,
		"candidate_score":    candidate.Score,
		"candidates_ranked":  stream.Size(),
	}}, nil
}
