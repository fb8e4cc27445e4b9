package gemini

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/services"
)

// ScriptRequest describes the recap to generate.
type ScriptRequest struct {
	Subject      string
	VideoTitle   string
	ChannelTitle string
	Transcript   string

	// Revision and Critique drive regeneration after a failed quality gate:
	// revision 0 is the first draft.
	Revision int
	Critique string
}

// Segment is one narration beat of the recap.
type Segment struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// Script is a complete generated recap script with upload metadata.
type Script struct {
	Hook        string    `json:"hook"`
	Segments    []Segment `json:"segments"`
	Payoff      string    `json:"payoff"`
	CTA         string    `json:"cta"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
}

// Parts returns the narration beats in speaking order: hook, segments,
// payoff, call to action. Empty beats are dropped.
func (s *Script) Parts() []string {
	parts := make([]string, 0, len(s.Segments)+3)
	if s.Hook != "" {
		parts = append(parts, s.Hook)
	}
	for _, segment := range s.Segments {
		if segment.Text != "" {
			parts = append(parts, segment.Text)
		}
	}
	if s.Payoff != "" {
		parts = append(parts, s.Payoff)
	}
	if s.CTA != "" {
		parts = append(parts, s.CTA)
	}
	return parts
}

// FullText joins the narration parts in speaking order.
func (s *Script) FullText() string {
	return strings.Join(s.Parts(), "\n\n")
}

// Critique is the judge's verdict on a generated script.
type Critique struct {
	Score      float64  `json:"score"`
	Summary    string   `json:"summary"`
	Weaknesses []string `json:"weaknesses"`
}

const scriptSystem = `You are an expert scriptwriter for YouTube movie recap
videos narrated in Amharic (Ge'ez script). You write high-retention recaps,
never literal translations: short punchy sentences, clear stakes, cinematic
emotion. Insert [PAUSE] markers where a dramatic beat belongs.`

// GenerateScript writes a full recap script as structured JSON. Revisions
// receive the prior critique so the model can correct what the judge
// flagged.
func (c *Client) GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	transcript := req.Transcript
	if strings.TrimSpace(transcript) == "" {
		return nil, services.Wrap(services.ErrValidation, "script", "generate", "transcript is empty", nil)
	}
	const transcriptLimit = 24000
	if len(transcript) > transcriptLimit {
		transcript = transcript[:transcriptLimit]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a complete Amharic movie recap script of roughly %d minutes when narrated.\n\n", c.cfg.TargetMinutes)
	if req.VideoTitle != "" {
		fmt.Fprintf(&prompt, "Source video title: %s\n", req.VideoTitle)
	}
	if req.ChannelTitle != "" {
		fmt.Fprintf(&prompt, "Source channel: %s\n", req.ChannelTitle)
	}
	if req.Subject != "" {
		fmt.Fprintf(&prompt, "Subject hint: %s\n", req.Subject)
	}
	prompt.WriteString("\nReturn STRICT JSON with this shape:\n")
	prompt.WriteString(`{
  "hook": "2-3 sentence Amharic hook that creates stakes",
  "segments": [{"text": "Amharic narration beat", "emotion": "1-3 words"}],
  "payoff": "2-3 sentence dramatic Amharic ending",
  "cta": "short Amharic subscribe/like call to action",
  "title": "YouTube title in Amharic, under 95 characters",
  "description": "YouTube description in Amharic with a short chapter list",
  "tags": ["up to 30 short tags, Amharic and English mixed"]
}`)
	prompt.WriteString("\n\nRules: Ge'ez script only for narration fields, no")
	prompt.WriteString(" romanization. Keep the story accurate to the transcript.")
	if req.Revision > 0 && strings.TrimSpace(req.Critique) != "" {
		fmt.Fprintf(&prompt, "\n\nThis is revision %d. The previous draft was rejected. Judge critique to fix:\n%s",
			req.Revision, req.Critique)
	}
	fmt.Fprintf(&prompt, "\n\nSource transcript:\n%s", transcript)

	raw, err := c.generate(ctx, "script", "generate script", prompt.String(), generateOptions{
		system:      scriptSystem,
		temperature: scriptTemperature,
		jsonOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	script := &Script{}
	if err := DecodeModelJSON(raw, script); err != nil {
		return nil, services.Wrap(services.ErrTransient, "script", "generate", "undecodable script payload", err)
	}
	if strings.TrimSpace(script.Hook) == "" || len(script.Segments) == 0 {
		return nil, services.Wrap(services.ErrTransient, "script", "generate", "script missing hook or segments", nil)
	}
	if len(script.Tags) > 30 {
		script.Tags = script.Tags[:30]
	}
	return script, nil
}

// CritiqueScript scores a script 0-100 with the retention rubric: grammar,
// natural flow, engagement, and idiomatic Amharic each worth 25 points.
func (c *Client) CritiqueScript(ctx context.Context, script *Script) (*Critique, error) {
	if script == nil {
		return nil, services.Wrap(services.ErrValidation, "script", "critique", "no script to judge", nil)
	}
	text := script.FullText()
	const judgeLimit = 12000
	if len(text) > judgeLimit {
		text = text[:judgeLimit]
	}

	var prompt strings.Builder
	prompt.WriteString("You are an Amharic language and YouTube retention expert. ")
	prompt.WriteString("Rate this recap script 0-100:\n")
	prompt.WriteString("- grammar correctness (25 points)\n")
	prompt.WriteString("- natural flow and readability (25 points)\n")
	prompt.WriteString("- engagement and retention potential (25 points)\n")
	prompt.WriteString("- proper idiomatic Amharic expressions (25 points)\n\n")
	prompt.WriteString(`Return STRICT JSON: {"score": number, "summary": "one sentence", "weaknesses": ["specific fixable problems"]}`)
	fmt.Fprintf(&prompt, "\n\nScript:\n%s", text)

	raw, err := c.generate(ctx, "script", "critique script", prompt.String(), generateOptions{
		temperature: critiqueTemperature,
		jsonOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	critique := &Critique{}
	if err := DecodeModelJSON(raw, critique); err != nil {
		return nil, services.Wrap(services.ErrTransient, "script", "critique", "undecodable critique payload", err)
	}
	if critique.Score < 0 {
		critique.Score = 0
	}
	if critique.Score > 100 {
		critique.Score = 100
	}
	return critique, nil
}

// CleanTranscript rewrites a raw caption dump into clean prose, dropping
// filler and fixing punctuation while preserving meaning.
func (c *Client) CleanTranscript(ctx context.Context, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "ingest", "clean transcript", "transcript is empty", nil)
	}
	const cleanLimit = 30000
	if len(trimmed) > cleanLimit {
		trimmed = trimmed[:cleanLimit]
	}

	prompt := "Clean up this transcript: fix grammar and punctuation, remove filler" +
		" words and repetitions, break into sentences, keep the meaning exactly" +
		" the same. Return only the cleaned transcript.\n\n" + trimmed

	cleaned, err := c.generate(ctx, "ingest", "clean transcript", prompt, generateOptions{
		temperature: critiqueTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(cleaned), nil
}
