package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recast/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Run readiness checks against the local configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			checks := preflight.Run(cmd.Context(), cfg, preflight.Deps{})
			if asJSON {
				if err := writeJSON(cmd, checks); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := isTerminal(out)
				printSection(out, "Preflight", colorize)
				for _, check := range checks {
					kind := statusOK
					if !check.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
				}
			}

			if failed := preflight.Failed(checks); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(checks))
			}
			if !asJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "\nAll %d checks passed\n", len(checks))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of status lines")
	return cmd
}
