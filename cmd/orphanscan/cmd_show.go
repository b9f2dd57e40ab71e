package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"

	"orphanscan/internal/orphans"
	"orphanscan/internal/snapshot"
)

var showCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Print one tracked record and its saved row as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// recordView is the JSON shape of a record shown to operators. The saved row,
// when there is one, is decoded and keeps its column order.
func recordView(r orphans.Record) *orderedmap.OrderedMap {
	o := orderedmap.New()
	o.Set("id", r.ID)
	o.Set("orphan_table", r.OrphanTable)
	o.Set("orphan_id", r.OrphanID)
	o.Set("reason", r.Reason.String())
	o.Set("description", orphans.ReasonText(r.Reason, r.RefFields, r.RefTable))
	if r.RefTable != "" {
		o.Set("reffields", r.RefFields)
		o.Set("reftable", r.RefTable)
	}
	o.Set("status", r.Status.String())
	o.Set("time_created", r.TimeCreated.UTC().Format(time.RFC3339))
	o.Set("time_modified", r.TimeModified.UTC().Format(time.RFC3339))
	if r.OrphanRow != "" {
		if snap, err := snapshot.Decode(r.OrphanRow); err == nil {
			o.Set("orphan_row", snap.OrderedMap())
		} else {
			o.Set("orphan_row_error", err.Error())
		}
	}
	return o
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("record id %q: %w", args[0], err)
	}
	return withApp(cmd.Context(), func(a *app) error {
		r, err := a.store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recordView(r))
	})
}
