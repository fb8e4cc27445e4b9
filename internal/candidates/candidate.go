package candidates

import (
	"context"
	"fmt"
	"time"

	"recast/internal/services"
)

// Candidate is one source video discovery proposes for recap production.
// Score is the views velocity of the video at discovery time.
type Candidate struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	Views        int64     `json:"views"`
	DurationSec  int       `json:"duration_seconds"`
	Score        float64   `json:"score"`
}

// Stream hands out ranked candidates best-first. Every candidate is yielded
// at most once: a rejected candidate is never revisited within the same job.
type Stream struct {
	queue []Candidate
	pos   int
}

// NewStream builds a stream over an already-ranked slice, dropping duplicate
// video IDs while preserving rank order.
func NewStream(ranked []Candidate) *Stream {
	seen := make(map[string]struct{}, len(ranked))
	queue := make([]Candidate, 0, len(ranked))
	for _, candidate := range ranked {
		if _, dup := seen[candidate.VideoID]; dup {
			continue
		}
		seen[candidate.VideoID] = struct{}{}
		queue = append(queue, candidate)
	}
	return &Stream{queue: queue}
}

// Next returns the best remaining candidate. Once the stream is exhausted it
// reports services.ErrNoViableCandidate for every subsequent call.
func (s *Stream) Next(ctx context.Context) (*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "discover", "next candidate", "context done", err)
	}
	if s.pos >= len(s.queue) {
		return nil, services.Wrap(services.ErrNoViableCandidate, "discover", "next candidate",
			fmt.Sprintf("exhausted after %d candidates", len(s.queue)), nil)
	}
	candidate := s.queue[s.pos]
	s.pos++
	return &candidate, nil
}

// Remaining reports how many candidates have not been yielded yet.
func (s *Stream) Remaining() int {
	return len(s.queue) - s.pos
}

// Size reports the total number of candidates the stream started with.
func (s *Stream) Size() int {
	return len(s.queue)
}
