package ffmpegx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"recast/internal/services"
)

const (
	// narrationSampleRate and narrationChannels are what the TTS output is
	// conformed to before rendering.
	narrationSampleRate = 24000
	narrationChannels   = 1

	// transcriptionSampleRate is the mono PCM rate expected by speech
	// analysis tooling.
	transcriptionSampleRate = 16000

	// narrationFilter is the cleanup chain applied to raw TTS audio: rumble
	// removal, warmth lift, presence boost, sibilance dip, gentle
	// compression, then broadband denoise.
	narrationFilter = "highpass=f=80," +
		"lowshelf=g=3:f=200:t=s," +
		"equalizer=f=3000:t=q:w=1:g=2," +
		"equalizer=f=6000:t=q:w=1:g=-1," +
		"acompressor=threshold=-20dB:ratio=3:attack=5:release=50:makeup=2," +
		"afftdn=nf=-25"
)

// Loudness is the measurement block reported by the loudnorm filter.
type Loudness struct {
	InputI      float64
	InputTP     float64
	InputLRA    float64
	InputThresh float64
}

// ExtractAudio pulls the audio track of a video as 16 kHz mono PCM.
func (c *Client) ExtractAudio(ctx context.Context, input, output string) error {
	args := []string{
		"-y",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(transcriptionSampleRate),
		"-ac", "1",
		output,
	}
	return c.run(ctx, "extract audio", args)
}

// Concat joins audio parts losslessly via the concat demuxer. The parts must
// share codec and parameters, which holds for TTS output from one voice.
func (c *Client) Concat(ctx context.Context, parts []string, output string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "media", "concat audio", "no parts to join", nil)
	}
	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	var list strings.Builder
	for _, part := range parts {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(part, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "media", "concat audio", "write concat list", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}
	return c.run(ctx, "concat audio", args)
}

// ProcessNarration applies the narration cleanup chain to raw TTS audio.
func (c *Client) ProcessNarration(ctx context.Context, input, output string) error {
	args := []string{
		"-y",
		"-i", input,
		"-af", narrationFilter,
		output,
	}
	return c.run(ctx, "process narration", args)
}

// MeasureLoudness runs a loudnorm analysis pass and parses the JSON summary
// ffmpeg prints on stderr.
func (c *Client) MeasureLoudness(ctx context.Context, path string, target float64) (Loudness, error) {
	args := []string{
		"-i", path,
		"-af", fmt.Sprintf("loudnorm=I=%g:TP=-1.5:LRA=11:print_format=json", target),
		"-f", "null", "-",
	}
	stderr, err := c.analyze(ctx, "measure loudness", args)
	if err != nil {
		return Loudness{}, err
	}
	loudness, err := parseLoudness(stderr)
	if err != nil {
		return Loudness{}, services.Wrap(services.ErrExternalTool, "media", "measure loudness",
			"parse loudnorm report", err)
	}
	return loudness, nil
}

// Normalize applies loudness normalization toward the target LUFS and
// conforms the result to the narration sample format. Passing the
// measurement from a prior MeasureLoudness call selects the more accurate
// linear mode.
func (c *Client) Normalize(ctx context.Context, input, output string, target float64, measured *Loudness) error {
	filter := fmt.Sprintf("loudnorm=I=%g:TP=-1.5:LRA=11", target)
	if measured != nil {
		filter += fmt.Sprintf(":measured_I=%.2f:measured_TP=%.2f:measured_LRA=%.2f:measured_thresh=%.2f:linear=true",
			measured.InputI, measured.InputTP, measured.InputLRA, measured.InputThresh)
	}
	args := []string{
		"-y",
		"-i", input,
		"-af", filter,
		"-ar", strconv.Itoa(narrationSampleRate),
		"-ac", strconv.Itoa(narrationChannels),
		output,
	}
	return c.run(ctx, "normalize audio", args)
}

var maxVolumePattern = regexp.MustCompile(`max_volume:\s*(-?[0-9.]+)\s*dB`)

// MaxVolume reports the peak level of an audio file in dBFS.
func (c *Client) MaxVolume(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-i", path,
		"-af", "volumedetect",
		"-f", "null", "-",
	}
	stderr, err := c.analyze(ctx, "detect volume", args)
	if err != nil {
		return 0, err
	}
	match := maxVolumePattern.FindStringSubmatch(stderr)
	if match == nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "detect volume",
			"no max_volume in volumedetect report", nil)
	}
	peak, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "detect volume",
			fmt.Sprintf("unparseable max_volume %q", match[1]), err)
	}
	return peak, nil
}

// CountSilences counts gaps quieter than noiseDB lasting at least minSeconds.
func (c *Client) CountSilences(ctx context.Context, path string, noiseDB, minSeconds float64) (int, error) {
	args := []string{
		"-i", path,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=%g", noiseDB, minSeconds),
		"-f", "null", "-",
	}
	stderr, err := c.analyze(ctx, "detect silence", args)
	if err != nil {
		return 0, err
	}
	return strings.Count(stderr, "silence_end"), nil
}

// parseLoudness extracts the JSON block the loudnorm filter prints at the
// end of its analysis pass. The values arrive as quoted strings.
func parseLoudness(stderr string) (Loudness, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start == -1 || end == -1 || end < start {
		return Loudness{}, fmt.Errorf("no json block in loudnorm output")
	}
	var report struct {
		InputI      string `json:"input_i"`
		InputTP     string `json:"input_tp"`
		InputLRA    string `json:"input_lra"`
		InputThresh string `json:"input_thresh"`
	}
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &report); err != nil {
		return Loudness{}, fmt.Errorf("decode loudnorm json: %w", err)
	}
	var loudness Loudness
	for _, field := range []struct {
		raw  string
		dest *float64
	}{
		{report.InputI, &loudness.InputI},
		{report.InputTP, &loudness.InputTP},
		{report.InputLRA, &loudness.InputLRA},
		{report.InputThresh, &loudness.InputThresh},
	} {
		value, err := strconv.ParseFloat(strings.TrimSpace(field.raw), 64)
		if err != nil {
			return Loudness{}, fmt.Errorf("parse loudnorm value %q: %w", field.raw, err)
		}
		*field.dest = value
	}
	return loudness, nil
}
