package ffmpegx

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"recast/internal/services"
)

const (
	recapWidth  = 1920
	recapHeight = 1080
)

// Cut is one source video interval included in the recap.
type Cut struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

var ptsTimePattern = regexp.MustCompile(`pts_time:([0-9.]+)`)

// DetectScenes returns the timestamps where the scene change score exceeds
// the threshold, in ascending order.
func (c *Client) DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error) {
	args := []string{
		"-i", path,
		"-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold),
		"-f", "null", "-",
	}
	stderr, err := c.analyze(ctx, "detect scenes", args)
	if err != nil {
		return nil, err
	}
	var stamps []float64
	for _, match := range ptsTimePattern.FindAllStringSubmatch(stderr, -1) {
		stamp, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		stamps = append(stamps, stamp)
	}
	return stamps, nil
}

// ExtractFrame grabs a single frame at the given offset, used as the
// thumbnail fallback when no generated image is available.
func (c *Client) ExtractFrame(ctx context.Context, input string, atSec float64, output string) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", atSec),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}
	return c.run(ctx, "extract frame", args)
}

// RenderRecap trims the source video to the given cuts, concatenates them at
// 1080p, and muxes the narration as the only audio track. Output ends with
// the shorter of the two streams.
func (c *Client) RenderRecap(ctx context.Context, videoPath, narrationPath, output string, cuts []Cut) error {
	if len(cuts) == 0 {
		return services.Wrap(services.ErrValidation, "media", "render recap", "no cuts to assemble", nil)
	}
	for i, cut := range cuts {
		if cut.EndSec <= cut.StartSec {
			return services.Wrap(services.ErrValidation, "media", "render recap",
				fmt.Sprintf("cut %d has end %.3f before start %.3f", i, cut.EndSec, cut.StartSec), nil)
		}
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", narrationPath,
		"-filter_complex", buildRecapFilter(cuts),
		"-map", "[vout]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		output,
	}
	return c.run(ctx, "render recap", args)
}

func buildRecapFilter(cuts []Cut) string {
	var filter strings.Builder
	for i, cut := range cuts {
		fmt.Fprintf(&filter, "[0:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS,scale=%d:%d,setsar=1[v%d];",
			cut.StartSec, cut.EndSec, recapWidth, recapHeight, i)
	}
	for i := range cuts {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[vout]", len(cuts))
	return filter.String()
}
