package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"recast/internal/jobs"
)

func buildJobRows(list []*jobs.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			string(job.JobType),
			formatStatusLabel(string(job.Status)),
			valueOrDash(job.CurrentStep),
			formatProgress(job.Progress),
			jobSource(job),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func buildStepRows(steps []jobs.Step) [][]string {
	rows := make([][]string, 0, len(steps))
	for _, step := range steps {
		rows = append(rows, []string{
			step.Name,
			formatStatusLabel(string(step.Status)),
			fmt.Sprintf("%d", step.Attempts),
			formatScore(step.Score),
			valueOrDash(step.Detail),
		})
	}
	return rows
}

func buildCountRows(counts map[jobs.Status]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range jobs.Statuses() {
		count, ok := counts[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func statusDisplayOrder() []string {
	statuses := jobs.Statuses()
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

// jobSource names what the job works on: the resolved video once one is
// locked in, otherwise the submitted pin or subject hint.
func jobSource(job *jobs.Job) string {
	if job.VideoID != "" {
		return "video " + job.VideoID
	}
	if job.Request.VideoID != "" {
		return "video " + job.Request.VideoID
	}
	if job.Request.Subject != "" {
		return job.Request.Subject
	}
	return "-"
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatProgress(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return fmt.Sprintf("%d%%", int(math.Round(progress*100)))
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatEventLine(event jobs.Event) string {
	line := fmt.Sprintf("%s %-5s", event.At.UTC().Format("2006-01-02 15:04:05"), strings.ToUpper(string(event.Level)))
	if event.Step != "" {
		line += fmt.Sprintf(" [%s]", event.Step)
	}
	if event.Message != "" {
		line += " " + event.Message
	}
	return line
}

func valueOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
