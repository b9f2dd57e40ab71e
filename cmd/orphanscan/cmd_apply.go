package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
)

var (
	actor string

	applyCmd = &cobra.Command{
		Use:   "apply <record-id> <ignore|delete|restore|pending>",
		Short: "Apply an action to one tracked record",
		Args:  cobra.ExactArgs(2),
		RunE:  runApply,
	}
)

func init() {
	applyCmd.Flags().StringVar(&actor, "actor", defaultActor(), "who is acting, recorded in the audit event")
	rootCmd.AddCommand(applyCmd)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func runApply(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("record id %q: %w", args[0], err)
	}
	action, err := orphans.ParseAction(args[1])
	if err != nil {
		return err
	}

	ctx := logger.WithRun(cmd.Context(), "apply")
	return withApp(ctx, func(a *app) error {
		res, err := a.engine.Apply(ctx, id, action, actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Record %d: %s (status %s)\n", id, res.Outcome, res.Record.Status)
		return nil
	})
}
