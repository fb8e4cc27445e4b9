package ytdlp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Segment is one caption cue with its start offset in the source video.
type Segment struct {
	StartSec float64 `json:"start_sec"`
	Text     string  `json:"text"`
}

// Transcript holds the caption track of a source video.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// FullText joins all cues into one block of prose.
func (t *Transcript) FullText() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// json3 is the caption format YouTube serves for automatic subtitles.
type json3Doc struct {
	Events []json3Event `json:"events"`
}

type json3Event struct {
	TStartMs int64      `json:"tStartMs"`
	Segs     []json3Seg `json:"segs"`
}

type json3Seg struct {
	UTF8 string `json:"utf8"`
}

func parseJSON3(data []byte) (*Transcript, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json3: %w", err)
	}
	transcript := &Transcript{Language: subtitleLang}
	for _, event := range doc.Events {
		if len(event.Segs) == 0 {
			continue
		}
		var cue strings.Builder
		for _, seg := range event.Segs {
			cue.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(strings.ReplaceAll(cue.String(), "\n", " "))
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, Segment{
			StartSec: float64(event.TStartMs) / 1000,
			Text:     text,
		})
	}
	return transcript, nil
}
