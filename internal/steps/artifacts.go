// Package steps contains the pipeline step adapters. Each adapter binds one
// service client to the step executor contract: it reads prior artifacts
// from the exchange, drives its collaborator, and returns new artifacts
// (plus a quality score on gated steps).
package steps

import (
	"recast/internal/services"
	"recast/internal/services/gemini"
	"recast/internal/step"
)

// Artifact keys shared between steps. A later step reads earlier keys from
// the exchange; the runner copies a subset into the job result.
const (
	ArtifactSourcePath        = "source_path"
	ArtifactSourceDurationSec = "source_duration_sec"
	ArtifactSourceTitle       = "source_title"
	ArtifactSourceChannel     = "source_channel"
	ArtifactTranscript        = "transcript"
	ArtifactScript            = "script"
	ArtifactScriptText        = "script_text"
	ArtifactCritique          = "critique"
	ArtifactVideoTitle        = "video_title"
	ArtifactVideoDescription  = "video_description"
	ArtifactVideoTags         = "video_tags"
	ArtifactNarrationPath     = "narration_path"
	ArtifactNarrationDuration = "narration_duration_sec"
	ArtifactNarrationBeats    = "narration_beats"
	ArtifactMeasuredLUFS      = "measured_lufs"
	ArtifactNarrationPeakDB   = "narration_peak_db"
	ArtifactSilenceCount      = "silence_count"
	ArtifactRecapPath         = "recap_path"
	ArtifactCutCount          = "cut_count"
	ArtifactAlignmentScore    = "alignment_score"
	ArtifactThumbnailPath     = "thumbnail_path"
	ArtifactThumbnailSource   = "thumbnail_source"
	ArtifactOutputPath        = "output_path"
	ArtifactYouTubeVideoID    = "youtube_video_id"
	ArtifactYouTubeURL        = "youtube_url"
	ArtifactPlatforms         = "platforms"
	ArtifactInitialViews      = "initial_views"
)

// scriptArtifact retrieves the generated script stored by the script step.
func scriptArtifact(xchg *step.Exchange) (*gemini.Script, error) {
	value, ok := xchg.Artifact(ArtifactScript)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "voice", "load script",
			"no script artifact on exchange", nil)
	}
	script, ok := value.(*gemini.Script)
	if !ok || script == nil {
		return nil, services.Wrap(services.ErrValidation, "voice", "load script",
			"script artifact has unexpected type", nil)
	}
	return script, nil
}

// stringsArtifact retrieves a string-slice artifact such as upload tags.
func stringsArtifact(xchg *step.Exchange, key string) []string {
	value, ok := xchg.Artifact(key)
	if !ok {
		return nil
	}
	slice, _ := value.([]string)
	return slice
}

// floatsArtifact retrieves a float-slice artifact such as narration beats.
func floatsArtifact(xchg *step.Exchange, key string) []float64 {
	value, ok := xchg.Artifact(key)
	if !ok {
		return nil
	}
	slice, _ := value.([]float64)
	return slice
}
