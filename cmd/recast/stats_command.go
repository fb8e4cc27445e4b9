package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			snapshot, err := client.StatsSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snapshot)
			}

			out := cmd.OutOrStdout()
			if snapshot.Running {
				fmt.Fprintf(out, "Daemon: running (%d active, %d queued)\n", snapshot.ActiveJobs, snapshot.QueueDepth)
			} else {
				fmt.Fprintln(out, "Daemon: offline; reading the job store directly")
			}

			rows := buildCountRows(snapshot.Stats.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(out, []string{"Status", "Count"}, rows, 2))
			fmt.Fprintf(out, "Total: %d\n", snapshot.Stats.Total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
