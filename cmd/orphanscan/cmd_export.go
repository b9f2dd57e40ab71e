package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orphanscan/internal/orphans"
	"orphanscan/internal/report"
)

var (
	exportOut    string
	exportTable  string
	exportStatus string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write tracked records to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
)

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOut, "output", "o", "orphaned_records.xlsx", "workbook to write")
	f.StringVar(&exportTable, "table", "", "only records for this orphan table")
	f.StringVar(&exportStatus, "status", "", "only records in this status")
	rootCmd.AddCommand(exportCmd)
}

// exportFilter builds a record filter from a table name and a status name,
// either of which may be empty.
func exportFilter(table, status string) (orphans.Filter, error) {
	f := orphans.Filter{OrphanTable: table}
	if status != "" {
		st, err := orphans.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	return f, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	filter, err := exportFilter(exportTable, exportStatus)
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(a *app) error {
		out, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		n, err := report.WriteXLSX(cmd.Context(), a.store, filter, out)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records written to %s\n", n, exportOut)
		return nil
	})
}
