package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recast/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a new recap job",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued job %s (%s)\n", job.ID, job.JobType)
			if job.Request.DryRun {
				fmt.Fprintln(out, "Dry run: upload and distribute steps will be skipped")
			}
			fmt.Fprintf(out, "Track it with: recast status %s\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.JobType, "type", "", `Job type: "full_pipeline" (default) or "discover"`)
	cmd.Flags().StringVar(&req.VideoID, "video-id", "", "Pin the source video and skip discovery")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject hint for candidate discovery")
	cmd.Flags().StringVar(&req.Profile, "profile", "", "Discovery profile name")
	cmd.Flags().StringVar(&req.Privacy, "privacy", "", "Privacy for the published recap (public, unlisted, private)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "Run the pipeline without uploading or distributing")
	cmd.MarkFlagsMutuallyExclusive("video-id", "subject")

	return cmd
}
