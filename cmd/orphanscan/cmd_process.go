package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
	"orphanscan/internal/reconcile"
)

var (
	procAction    string
	procOrphanID  int64
	procReason    string
	procTable     string
	procRefTable  string
	procRefFields string
	procDryRun    bool
	procYes       bool

	processCmd = &cobra.Command{
		Use:   "process",
		Short: "Apply an action to every tracked record matching a selection",
		Example: `  orphanscan process -a ignore -t assign_submission -r MissingModule
  orphanscan process -a delete -t enrol -r ForeignKey --reftable course --reffields courseid --dryrun=false`,
		RunE: runProcess,
	}
)

func init() {
	f := processCmd.Flags()
	f.StringVarP(&procAction, "action", "a", "", "action to take: ignore, delete, restore or pending")
	f.Int64VarP(&procOrphanID, "orphanid", "i", 0, "id of the orphaned row")
	f.StringVarP(&procReason, "reason", "r", "", "reason name or code")
	f.StringVarP(&procTable, "orphantable", "t", "", "table the orphaned rows live in")
	f.StringVar(&procRefTable, "reftable", "", "referenced table (foreign key reason only)")
	f.StringVar(&procRefFields, "reffields", "", "referencing field(s), joined by |")
	f.BoolVar(&procDryRun, "dryrun", true, "report what would be done without changing anything")
	f.BoolVarP(&procYes, "yes", "y", false, "do not ask for confirmation")
	f.StringVar(&actor, "actor", defaultActor(), "who is acting, recorded in the audit event")
	_ = processCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(processCmd)
}

// selection builds the bulk selection from the flags.
func selection(cmd *cobra.Command) (reconcile.Selection, error) {
	sel := reconcile.Selection{
		OrphanTable: procTable,
		RefFields:   procRefFields,
		RefTable:    procRefTable,
	}
	if cmd.Flags().Changed("orphanid") {
		id := procOrphanID
		sel.OrphanID = &id
	}
	if procReason != "" {
		r, err := orphans.ParseReason(procReason)
		if err != nil {
			return sel, err
		}
		sel.Reason = &r
	}
	return sel, sel.Validate()
}

// confirm asks a y/n question on in and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n)? ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func runProcess(cmd *cobra.Command, _ []string) error {
	action, err := orphans.ParseAction(procAction)
	if err != nil {
		return err
	}
	sel, err := selection(cmd)
	if err != nil {
		return err
	}

	ctx := logger.WithRun(cmd.Context(), "process")
	out := cmd.OutOrStdout()
	return withApp(ctx, func(a *app) error {
		p := reconcile.NewProcessor(a.engine)
		if procDryRun {
			fmt.Fprintln(out, "Dry run enabled")
		} else if !procYes {
			n, err := p.Count(ctx, sel, action)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(out, reconcile.ErrNothingSelected)
				return nil
			}
			q := fmt.Sprintf("Are you sure you would like attempt to %s %d record(s)", action, n)
			if !confirm(cmd.InOrStdin(), out, q) {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		sum, err := p.Run(ctx, sel, action, actor, procDryRun)
		if errors.Is(err, reconcile.ErrNothingSelected) {
			fmt.Fprintln(out, err)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, sum)
		if sum.Skipped > 0 {
			fmt.Fprintf(out, "%d records skipped: the original row already exists\n", sum.Skipped)
		}
		for _, e := range sum.Errors {
			fmt.Fprintln(out, e.Error())
		}
		return nil
	})
}
