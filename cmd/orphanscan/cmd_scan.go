package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orphanscan/internal/logger"
	"orphanscan/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan [table...]",
	Short: "Scan the named tables, or every declared table, for orphaned rows",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := logger.WithRun(cmd.Context(), "scan")
	return withApp(ctx, func(a *app) error {
		s, err := a.scanner(ctx)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			results, err := s.RunAll(ctx)
			for _, r := range results {
				switch {
				case r.Skipped != "":
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s skipped (%s)\n", r.Table, r.Skipped)
				case r.Err != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s FAILED after %d: %v\n", r.Table, r.Found, r.Err)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s %d\n", r.Table, r.Found)
				}
			}
			found, scanned, skipped, failed := scanner.Summary(results)
			fmt.Fprintf(cmd.OutOrStdout(), "%d new orphaned records in %d tables (%d skipped, %d failed)\n",
				found, scanned, skipped, failed)
			return err
		}

		failed := 0
		for _, table := range args {
			n, err := s.ScanTable(ctx, table)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s FAILED after %d: %v\n", table, n, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %d\n", table, n)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tables failed", failed, len(args))
		}
		return nil
	})
}
