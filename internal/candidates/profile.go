package candidates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"recast/internal/services"
)

// Weights control the channel composite score. They are normalized against
// fixed scales (1M subscribers, 100K average views) rather than the cohort,
// so scores stay comparable across discovery runs.
type Weights struct {
	Subscribers       float64 `yaml:"subscribers"`
	AvgViews          float64 `yaml:"avg_views"`
	UploadConsistency float64 `yaml:"upload_consistency"`
	GrowthProxy       float64 `yaml:"growth_proxy"`
}

// Limits bound how much of the search space discovery explores.
type Limits struct {
	ChannelsPerQuery int `yaml:"channels_per_query"`
	TopChannels      int `yaml:"top_channels"`
	VideosPerChannel int `yaml:"videos_per_channel"`
	MaxCandidates    int `yaml:"max_candidates"`
}

// Profile is one named discovery configuration. Profiles live as YAML files
// under the configured profiles directory; the built-in default applies when
// no file exists.
type Profile struct {
	Name           string   `yaml:"name"`
	Queries        []string `yaml:"queries"`
	Weights        Weights  `yaml:"weights"`
	Limits         Limits   `yaml:"limits"`
	RecencyDays    int      `yaml:"recency_days"`
	MinDurationSec int      `yaml:"min_duration_seconds"`
	MaxDurationSec int      `yaml:"max_duration_seconds"`
}

// DefaultProfile returns the built-in recap discovery profile.
func DefaultProfile() Profile {
	return Profile{
		Name: "default",
		Queries: []string{
			"movie recap",
			"story recap",
			"ending explained recap",
			"recap explained",
		},
		Weights: Weights{
			Subscribers:       0.2,
			AvgViews:          0.4,
			UploadConsistency: 0.2,
			GrowthProxy:       0.2,
		},
		Limits: Limits{
			ChannelsPerQuery: 25,
			TopChannels:      10,
			VideosPerChannel: 5,
			MaxCandidates:    10,
		},
	}
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, services.Wrap(services.ErrConfiguration, "discover", "load profile", path, err)
	}
	profile := Profile{}
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return Profile{}, services.Wrap(services.ErrConfiguration, "discover", "parse profile", path, err)
	}
	if profile.Name == "" {
		base := filepath.Base(path)
		profile.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	profile.normalize()
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// LoadNamed resolves a profile by name from the profiles directory. A
// missing file for the name "default" falls back to the built-in profile.
func LoadNamed(dir, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	if filepath.Base(name) != name {
		return Profile{}, services.Wrap(services.ErrValidation, "discover", "load profile", fmt.Sprintf("profile name %q must not contain path separators", name), nil)
	}
	path := filepath.Join(dir, name+".yaml")
	profile, err := LoadProfile(path)
	if err != nil {
		var pathErr *fs.PathError
		if name == "default" && (errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist)) {
			return DefaultProfile(), nil
		}
		return Profile{}, err
	}
	return profile, nil
}

func (p *Profile) normalize() {
	def := DefaultProfile()
	if len(p.Queries) == 0 {
		p.Queries = def.Queries
	}
	if p.Weights == (Weights{}) {
		p.Weights = def.Weights
	}
	if p.Limits.ChannelsPerQuery <= 0 {
		p.Limits.ChannelsPerQuery = def.Limits.ChannelsPerQuery
	}
	if p.Limits.TopChannels <= 0 {
		p.Limits.TopChannels = def.Limits.TopChannels
	}
	if p.Limits.VideosPerChannel <= 0 {
		p.Limits.VideosPerChannel = def.Limits.VideosPerChannel
	}
	if p.Limits.MaxCandidates <= 0 {
		p.Limits.MaxCandidates = def.Limits.MaxCandidates
	}
}

// Validate rejects profiles that cannot drive a discovery run.
func (p Profile) Validate() error {
	for _, query := range p.Queries {
		if strings.TrimSpace(query) == "" {
			return services.Wrap(services.ErrConfiguration, "discover", "validate profile", fmt.Sprintf("profile %q has an empty query", p.Name), nil)
		}
	}
	weights := []float64{p.Weights.Subscribers, p.Weights.AvgViews, p.Weights.UploadConsistency, p.Weights.GrowthProxy}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return services.Wrap(services.ErrConfiguration, "discover", "validate profile", fmt.Sprintf("profile %q has a negative weight", p.Name), nil)
		}
		sum += w
	}
	if sum <= 0 {
		return services.Wrap(services.ErrConfiguration, "discover", "validate profile", fmt.Sprintf("profile %q has zero total weight", p.Name), nil)
	}
	if p.MinDurationSec < 0 || p.MaxDurationSec < 0 {
		return services.Wrap(services.ErrConfiguration, "discover", "validate profile", fmt.Sprintf("profile %q has a negative duration bound", p.Name), nil)
	}
	if p.MaxDurationSec > 0 && p.MinDurationSec > p.MaxDurationSec {
		return services.Wrap(services.ErrConfiguration, "discover", "validate profile", fmt.Sprintf("profile %q duration bounds are inverted", p.Name), nil)
	}
	return nil
}
