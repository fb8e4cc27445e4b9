// Package report aggregates job history into operator-facing summaries.
package report

import (
	"context"
	"sort"
	"time"

	"recast/internal/jobs"
	"recast/internal/services"
	"recast/internal/steps"
)

// Window is the period a daily report covers.
const Window = 24 * time.Hour

// Daily summarizes pipeline activity over the trailing window: job counts by
// status, recaps published with their links, and failure kinds.
type Daily struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Since       time.Time      `json:"since"`
	Total       int            `json:"total"`
	Counts      map[string]int `json:"counts"`
	Uploads     []Upload       `json:"uploads,omitempty"`
	Failures    []FailureCount `json:"failures,omitempty"`
}

// Upload is one recap published during the window.
type Upload struct {
	JobID   string    `json:"job_id"`
	VideoID string    `json:"video_id,omitempty"`
	Title   string    `json:"title,omitempty"`
	URL     string    `json:"url,omitempty"`
	At      time.Time `json:"at"`
}

// FailureCount tallies failed jobs by failure kind.
type FailureCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Lister is the slice of the job store the report needs.
type Lister interface {
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// BuildDaily assembles the summary for the 24 hours before now. Jobs are
// bucketed by their last update, so a job submitted yesterday that finished
// this morning counts toward today's report.
func BuildDaily(ctx context.Context, store Lister, now time.Time) (*Daily, error) {
	all, err := store.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	since := now.Add(-Window)
	daily := &Daily{
		GeneratedAt: now.UTC(),
		Since:       since.UTC(),
		Counts:      make(map[string]int),
	}
	failures := make(map[string]int)

	for _, job := range all {
		if job.UpdatedAt.Before(since) || job.UpdatedAt.After(now) {
			continue
		}
		daily.Total++
		daily.Counts[string(job.Status)]++

		switch job.Status {
		case jobs.StatusSucceeded:
			if upload, ok := uploadFromJob(job); ok {
				daily.Uploads = append(daily.Uploads, upload)
			}
		case jobs.StatusFailed:
			kind := services.KindInternal
			if job.Error != nil && job.Error.Kind != "" {
				kind = job.Error.Kind
			}
			failures[kind]++
		}
	}

	sort.Slice(daily.Uploads, func(i, j int) bool {
		return daily.Uploads[i].At.After(daily.Uploads[j].At)
	})

	for kind, count := range failures {
		daily.Failures = append(daily.Failures, FailureCount{Kind: kind, Count: count})
	}
	sort.Slice(daily.Failures, func(i, j int) bool {
		if daily.Failures[i].Count != daily.Failures[j].Count {
			return daily.Failures[i].Count > daily.Failures[j].Count
		}
		return daily.Failures[i].Kind < daily.Failures[j].Kind
	})

	return daily, nil
}

// uploadFromJob extracts the published-recap details from a succeeded job's
// result. Dry runs and discover jobs publish nothing and are skipped.
func uploadFromJob(job *jobs.Job) (Upload, bool) {
	videoID := resultString(job, steps.ArtifactYouTubeVideoID)
	url := resultString(job, steps.ArtifactYouTubeURL)
	if videoID == "" && url == "" {
		return Upload{}, false
	}
	return Upload{
		JobID:   job.ID,
		VideoID: videoID,
		Title:   resultString(job, steps.ArtifactVideoTitle),
		URL:     url,
		At:      job.UpdatedAt,
	}, true
}

func resultString(job *jobs.Job, key string) string {
	if job.Result == nil {
		return ""
	}
	value, _ := job.Result[key].(string)
	return value
}
