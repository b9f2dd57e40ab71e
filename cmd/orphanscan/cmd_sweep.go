package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orphanscan/internal/logger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge Deleted records older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := logger.WithRun(cmd.Context(), "sweep")
	return withApp(ctx, func(a *app) error {
		n, err := a.sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records deleted (modified before %s)\n",
			n, a.sweeper.Cutoff().UTC().Format("2006-01-02 15:04:05"))
		return nil
	})
}
