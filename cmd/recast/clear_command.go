package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"recast/internal/jobs"
)

func newClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal jobs from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := jobs.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case clearCompleted:
				removed, err := store.ClearCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d succeeded jobs\n", removed)
			case clearFailed:
				removed, err := store.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d failed and canceled jobs\n", removed)
			default:
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d terminal jobs\n", removed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only succeeded jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed and canceled jobs")
	return cmd
}
