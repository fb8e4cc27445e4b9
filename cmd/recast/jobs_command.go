package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := client.Jobs(cmd.Context(), limit, status)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, list)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"ID", "Type", "Status", "Step", "Progress", "Source", "Created"},
				buildJobRows(list),
				5,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list (0 for all)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by job status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
