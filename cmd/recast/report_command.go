package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recast/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Production summaries",
	}
	reportCmd.AddCommand(newReportDailyCommand(ctx))
	return reportCmd
}

func newReportDailyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Summarize the last 24 hours of pipeline activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			daily, err := client.DailyReport(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, daily)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			printSection(out, "Daily Report", colorize)
			writeDetail(out, "Window", fmt.Sprintf("%s to %s",
				formatDisplayTime(daily.Since), formatDisplayTime(daily.GeneratedAt)))
			writeDetail(out, "Jobs touched", fmt.Sprintf("%d", daily.Total))

			if len(daily.Counts) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(out, []string{"Status", "Count"}, buildReportCountRows(daily.Counts), 2))
			}

			fmt.Fprintln(out)
			printSection(out, "Published Recaps", colorize)
			if len(daily.Uploads) == 0 {
				fmt.Fprintln(out, "No recaps published in the window")
			} else {
				fmt.Fprintln(out, renderTable(out,
					[]string{"Job", "Video", "Title", "URL", "At"},
					buildUploadRows(daily.Uploads),
				))
			}

			if len(daily.Failures) > 0 {
				fmt.Fprintln(out)
				printSection(out, "Failures", colorize)
				rows := make([][]string, 0, len(daily.Failures))
				for _, failure := range daily.Failures {
					rows = append(rows, []string{failure.Kind, fmt.Sprintf("%d", failure.Count)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Kind", "Count"}, rows, 2))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of tables")
	return cmd
}

func buildReportCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range statusDisplayOrder() {
		if count := counts[status]; count > 0 {
			rows = append(rows, []string{formatStatusLabel(status), fmt.Sprintf("%d", count)})
		}
	}
	return rows
}

func buildUploadRows(uploads []report.Upload) [][]string {
	rows := make([][]string, 0, len(uploads))
	for _, upload := range uploads {
		rows = append(rows, []string{
			upload.JobID,
			valueOrDash(upload.VideoID),
			valueOrDash(upload.Title),
			valueOrDash(upload.URL),
			formatDisplayTime(upload.At),
		})
	}
	return rows
}
