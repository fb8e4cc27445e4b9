package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"recast/internal/daemonctl"
	"recast/internal/jobs"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			job, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				var apiErr *daemonctl.APIError
				if errors.As(err, &apiErr) && apiErr.Code == "conflict" {
					fmt.Fprintf(out, "Job %s is already %s; nothing to cancel\n", args[0], apiErr.JobStatus)
					return nil
				}
				return err
			}

			switch job.Status {
			case jobs.StatusCanceled:
				fmt.Fprintf(out, "Job %s canceled\n", job.ID)
			case jobs.StatusCancelRequested:
				fmt.Fprintf(out, "Cancellation requested for job %s; the current step will stop shortly\n", job.ID)
			default:
				fmt.Fprintf(out, "Job %s is now %s\n", job.ID, job.Status)
			}
			return nil
		},
	}
}
