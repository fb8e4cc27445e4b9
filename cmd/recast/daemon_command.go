package main

import (
	"github.com/spf13/cobra"

	"recast/internal/daemon"
	"recast/internal/version"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Run the recast daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemon.Run(cmd.Context(), cfg, daemon.Options{
				LogLevel: ctx.logLevel(),
				Version:  version.Value,
			})
		},
	}
}
