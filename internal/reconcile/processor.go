package reconcile

import (
	"context"
	"errors"
	"fmt"

	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
)

var (
	ErrMissingTable     = errors.New("missing orphan table - required")
	ErrMissingSelection = errors.New("missing orphan id or reason - required")
	ErrNothingSelected  = errors.New("no orphaned record found")
)

// DefaultPageSize is how many records the processor loads at a time.
const DefaultPageSize = 500

// Selection picks the tracked records a bulk action applies to.
type Selection struct {
	OrphanTable string
	OrphanID    *int64
	Reason      *orphans.Reason
	RefFields   string
	RefTable    string
}

// Validate requires a table and at least one of orphan id or reason.
func (s Selection) Validate() error {
	if s.OrphanTable == "" {
		return ErrMissingTable
	}
	if s.OrphanID == nil && s.Reason == nil {
		return ErrMissingSelection
	}
	return nil
}

// filter excludes records already in the action's status.
func (s Selection) filter(action orphans.Action) orphans.Filter {
	target := action.Target()
	return orphans.Filter{
		OrphanTable:   s.OrphanTable,
		OrphanID:      s.OrphanID,
		Reason:        s.Reason,
		RefFields:     s.RefFields,
		RefTable:      s.RefTable,
		ExcludeStatus: &target,
	}
}

// RecordError is a per-record failure in a bulk run.
type RecordError struct {
	RecordID int64
	Err      error
}

func (e RecordError) Error() string {
	if errors.Is(e.Err, orphans.ErrCannotRestore) {
		return fmt.Sprintf("Record %d cannot be restored.", e.RecordID)
	}
	return fmt.Sprintf("Record %d: %v", e.RecordID, e.Err)
}

// Summary totals a bulk run.
type Summary struct {
	Action    orphans.Action
	DryRun    bool
	Possible  int64
	Processed int
	Skipped   int
	Errors    []RecordError
}

func (s Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("%d records out of a possible %d will be actioned once --dryrun is disabled (see below for errors)",
			s.Processed, s.Possible)
	}
	return fmt.Sprintf("%d records out of a possible %d actioned (see below for errors)", s.Processed, s.Possible)
}

// Processor applies one action to every record in a Selection.
type Processor struct {
	engine   *Engine
	PageSize int
}

func NewProcessor(e *Engine) *Processor {
	return &Processor{engine: e, PageSize: DefaultPageSize}
}

// Count returns how many records sel matches for action.
func (p *Processor) Count(ctx context.Context, sel Selection, action orphans.Action) (int64, error) {
	if err := sel.Validate(); err != nil {
		return 0, err
	}
	return p.engine.store.Count(ctx, sel.filter(action))
}

// Run applies action to the selection. With dryRun set nothing is changed
// but the summary reports what would have been processed. Failures on single
// records are collected in the summary and do not stop the run.
func (p *Processor) Run(ctx context.Context, sel Selection, action orphans.Action, actor string, dryRun bool) (Summary, error) {
	sum := Summary{Action: action, DryRun: dryRun}
	possible, err := p.Count(ctx, sel, action)
	if err != nil {
		return sum, err
	}
	if possible == 0 {
		return sum, ErrNothingSelected
	}
	sum.Possible = possible

	f := sel.filter(action)
	f.Limit = p.PageSize
	for {
		page, err := p.engine.store.Find(ctx, f)
		if err != nil {
			return sum, err
		}
		if len(page) == 0 {
			return sum, nil
		}
		f.AfterID = page[len(page)-1].ID

		for _, r := range page {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if action == orphans.ActionRestore && r.Status != orphans.StatusDeleted {
				sum.Errors = append(sum.Errors, RecordError{RecordID: r.ID, Err: orphans.ErrCannotRestore})
				continue
			}
			if dryRun {
				sum.Processed++
				continue
			}
			res, err := p.engine.Apply(ctx, r.ID, action, actor)
			if err != nil {
				logger.Errorf(ctx, "%s record %d: %v", action, r.ID, err)
				sum.Errors = append(sum.Errors, RecordError{RecordID: r.ID, Err: err})
				continue
			}
			if res.Outcome == OutcomeSkipped {
				sum.Skipped++
				continue
			}
			sum.Processed++
		}
	}
}
