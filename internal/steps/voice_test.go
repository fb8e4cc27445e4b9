package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/services/ffmpegx"
	"recast/internal/services/gemini"
	"recast/internal/step"
)

type fakeSynth struct {
	rates   []string
	pitches []string
	texts   []string
}

func (f *fakeSynth) SynthesizeWith(_ context.Context, text, rate, pitch string) ([]byte, error) {
	f.texts = append(f.texts, text)
	f.rates = append(f.rates, rate)
	f.pitches = append(f.pitches, pitch)
	return []byte("RIFF" + text), nil
}

type fakeAudio struct {
	concatParts   []string
	normalizedID  float64
	finalLUFS     float64
	peak          float64
	silences      int
	partDuration  float64
	finalDuration float64
}

func (f *fakeAudio) Concat(_ context.Context, parts []string, output string) error {
	f.concatParts = parts
	return os.WriteFile(output, []byte("joined"), 0o644)
}

func (f *fakeAudio) ProcessNarration(_ context.Context, _, output string) error {
	return os.WriteFile(output, []byte("processed"), 0o644)
}

func (f *fakeAudio) MeasureLoudness(_ context.Context, path string, _ float64) (ffmpegx.Loudness, error) {
	if filepath.Base(path) == "narration.wav" {
		return ffmpegx.Loudness{InputI: f.finalLUFS}, nil
	}
	return ffmpegx.Loudness{InputI: -23.47, InputTP: -4.1, InputLRA: 7.1, InputThresh: -34}, nil
}

func (f *fakeAudio) Normalize(_ context.Context, _, output string, _ float64, measured *ffmpegx.Loudness) error {
	if measured != nil {
		f.normalizedID = measured.InputI
	}
	return os.WriteFile(output, []byte("final"), 0o644)
}

func (f *fakeAudio) MaxVolume(_ context.Context, _ string) (float64, error) {
	return f.peak, nil
}

func (f *fakeAudio) CountSilences(_ context.Context, _ string, _, _ float64) (int, error) {
	return f.silences, nil
}

func (f *fakeAudio) Duration(_ context.Context, path string) (float64, error) {
	if filepath.Base(path) == "narration.wav" {
		return f.finalDuration, nil
	}
	return f.partDuration, nil
}

func voicedExchange(t *testing.T) *step.Exchange {
	t.Helper()
	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	xchg.Merge(map[string]any{
		ArtifactScript: &gemini.Script{
			Hook:     "ሰላም [PAUSE] ዛሬ",
			Segments: []gemini.Segment{{Text: "መጀመሪያ"}},
			Payoff:   "መጨረሻ",
		},
	})
	return xchg
}

func newVoiceFakes() (*fakeSynth, *fakeAudio) {
	return &fakeSynth{}, &fakeAudio{
		finalLUFS:     -14.2,
		peak:          -1.5,
		partDuration:  10,
		finalDuration: 30,
	}
}

func TestVoiceAssemblesNarration(t *testing.T) {
	synth, audio := newVoiceFakes()
	voice := NewVoice(synth, audio, VoiceConfig{}, nil)

	xchg := voicedExchange(t)
	outcome, err := voice.Execute(context.Background(), xchg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(synth.texts) != 3 {
		t.Fatalf("synthesized parts = %d, want 3", len(synth.texts))
	}
	if synth.rates[0] != "-5%" || synth.pitches[0] != "-10%" {
		t.Errorf("default prosody = %s/%s", synth.rates[0], synth.pitches[0])
	}
	if len(audio.concatParts) != 3 {
		t.Errorf("concat parts = %d", len(audio.concatParts))
	}
	if audio.normalizedID != -23.47 {
		t.Errorf("normalize measured input = %v, want measurement forwarded", audio.normalizedID)
	}
	if outcome.Score == nil || *outcome.Score != 98 {
		t.Fatalf("score = %v, want 98 (0.2 LUFS off target)", outcome.Score)
	}
	beats, _ := outcome.Artifacts[ArtifactNarrationBeats].([]float64)
	if len(beats) != 3 || beats[0] != 10 || beats[2] != 30 {
		t.Errorf("beats = %v", beats)
	}
	if got := outcome.Artifacts[ArtifactNarrationDuration]; got != 30.0 {
		t.Errorf("duration = %v", got)
	}
	path, _ := outcome.Artifacts[ArtifactNarrationPath].(string)
	if filepath.Base(path) != "narration.wav" {
		t.Errorf("narration path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("narration file missing: %v", err)
	}
}

func TestVoiceAppliesTuningShift(t *testing.T) {
	synth, audio := newVoiceFakes()
	voice := NewVoice(synth, audio, VoiceConfig{}, nil)

	xchg := voicedExchange(t)
	xchg.Tuning.RatePercent = -2
	xchg.Tuning.PitchPercent = 3
	if _, err := voice.Execute(context.Background(), xchg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if synth.rates[0] != "-7%" {
		t.Errorf("shifted rate = %s, want -7%%", synth.rates[0])
	}
	if synth.pitches[0] != "-7%" {
		t.Errorf("shifted pitch = %s, want -7%%", synth.pitches[0])
	}
}

func TestVoiceScorePenalizesClippingAndDeadAir(t *testing.T) {
	synth, audio := newVoiceFakes()
	audio.peak = 0
	audio.silences = 4
	voice := NewVoice(synth, audio, VoiceConfig{}, nil)

	outcome, err := voice.Execute(context.Background(), voicedExchange(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	// 100 - 2 (loudness) - 30 (clipping) - 20 (dead air)
	if outcome.Score == nil || *outcome.Score != 48 {
		t.Fatalf("score = %v, want 48", outcome.Score)
	}
}

func TestVoiceRequiresScript(t *testing.T) {
	synth, audio := newVoiceFakes()
	voice := NewVoice(synth, audio, VoiceConfig{}, nil)

	xchg := step.NewExchange("job-1", jobs.Request{}, t.TempDir())
	_, err := voice.Execute(context.Background(), xchg)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestShiftPercent(t *testing.T) {
	cases := []struct {
		base  string
		delta int
		want  string
	}{
		{"-5%", 0, "-5%"},
		{"-5%", -2, "-7%"},
		{"-10%", 3, "-7%"},
		{"+2%", 1, "+3%"},
		{"0%", -4, "-4%"},
		{"garbage", 2, "+2%"},
	}
	for _, tc := range cases {
		if got := shiftPercent(tc.base, tc.delta); got != tc.want {
			t.Errorf("shiftPercent(%q, %d) = %q, want %q", tc.base, tc.delta, got, tc.want)
		}
	}
}

func TestNarrationScoreClampsAtZero(t *testing.T) {
	if got := narrationScore(-25, -14, 0, 5); got != 0 {
		t.Fatalf("score = %v, want 0", got)
	}
	if got := narrationScore(-14, -14, -3, 0); got != 100 {
		t.Fatalf("perfect score = %v, want 100", got)
	}
}
