package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"recast/internal/jobs"
	"recast/internal/steps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var events int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job's steps and recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			printSection(out, "Job "+job.ID, colorize)
			fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), formatStatusLabel(string(job.Status)), colorize))
			writeDetail(out, "Type", string(job.JobType))
			writeDetail(out, "Progress", formatProgress(job.Progress))
			writeDetail(out, "Source", jobSource(job))
			writeDetail(out, "Profile", job.Request.Profile)
			writeDetail(out, "Privacy", job.Request.Privacy)
			if job.Request.DryRun {
				writeDetail(out, "Dry run", "yes")
			}
			writeDetail(out, "Created", formatDisplayTime(job.CreatedAt))
			writeDetail(out, "Updated", formatDisplayTime(job.UpdatedAt))
			if url, ok := job.Result[steps.ArtifactYouTubeURL].(string); ok && url != "" {
				writeDetail(out, "Published", url)
			}
			if job.Error != nil {
				detail := job.Error.Message
				if job.Error.Step != "" {
					detail = fmt.Sprintf("%s at %s: %s", job.Error.Kind, job.Error.Step, job.Error.Message)
				}
				fmt.Fprintln(out, renderStatusLine("Error", statusError, detail, colorize))
			}

			if len(job.Steps) > 0 {
				fmt.Fprintln(out)
				printSection(out, "Steps", colorize)
				fmt.Fprintln(out, renderTable(out,
					[]string{"Step", "Status", "Attempts", "Score", "Detail"},
					buildStepRows(job.Steps),
					3, 4,
				))
			}

			if len(job.Events) > 0 {
				fmt.Fprintln(out)
				printSection(out, "Recent Events", colorize)
				tail := job.Events
				if events > 0 && len(tail) > events {
					tail = tail[len(tail)-events:]
				}
				for _, event := range tail {
					fmt.Fprintln(out, formatEventLine(event))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&events, "events", 10, "Number of recent events to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full job document as JSON")
	return cmd
}

func jobStatusKind(status jobs.Status) statusKind {
	switch status {
	case jobs.StatusSucceeded:
		return statusOK
	case jobs.StatusFailed:
		return statusError
	case jobs.StatusCanceled, jobs.StatusCancelRequested:
		return statusWarn
	default:
		return statusInfo
	}
}

func writeDetail(out io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
}
