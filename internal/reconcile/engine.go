// Package reconcile applies operator actions to tracked orphan records.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orphanscan/internal/events"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
	"orphanscan/internal/metrics"
	"orphanscan/internal/orphans"
	"orphanscan/internal/snapshot"
	"orphanscan/internal/store"
)

// Outcome says what Apply did.
type Outcome string

const (
	// OutcomeApplied means the record moved to the action's status.
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged means a delete or restore found the record already in
	// that status and did nothing.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped means a restore found a live row with the same id. The
	// record was re-stamped but keeps its status.
	OutcomeSkipped Outcome = "skipped"
)

// Result is the record as persisted after Apply.
type Result struct {
	Record  orphans.Record `json:"record"`
	Outcome Outcome        `json:"outcome"`
}

// Engine runs the record lifecycle. Concurrent actions on the same record
// are not serialised; the last write wins.
type Engine struct {
	store *store.Store
	sink  events.Sink
}

func NewEngine(st *store.Store, sink events.Sink) *Engine {
	return &Engine{store: st, sink: sink}
}

// Apply performs action on the record with the given id on behalf of actor.
// The original row and the record change in one transaction; the event is
// emitted after it commits.
func (e *Engine) Apply(ctx context.Context, id int64, action orphans.Action, actor string) (Result, error) {
	res, err := e.apply(ctx, id, action)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	metrics.RecordsReconciled.WithLabelValues(string(action), outcome).Inc()
	if err != nil {
		return res, err
	}

	if res.Outcome == OutcomeApplied {
		r := res.Record
		events.Publish(ctx, e.sink, events.Event{
			Kind:     events.ForStatus(r.Status),
			RecordID: r.ID,
			Actor:    actor,
			Reason:   orphans.ReasonText(r.Reason, r.RefFields, r.RefTable),
			Table:    r.OrphanTable,
			OrphanID: r.OrphanID,
			Time:     r.TimeModified,
		})
	}
	logger.Debugf(ctx, "record %d: %s %s", id, action, res.Outcome)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, id int64, action orphans.Action) (Result, error) {
	switch action {
	case orphans.ActionIgnore, orphans.ActionDelete, orphans.ActionRestore, orphans.ActionPending:
	default:
		return Result{}, fmt.Errorf("%w: %q", orphans.ErrInvalidAction, action)
	}

	tx, err := e.store.Conn().DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	st := e.store.WithTx(tx)

	r, err := st.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	target := action.Target()
	if r.Status == target && (action == orphans.ActionDelete || action == orphans.ActionRestore) {
		return Result{Record: r, Outcome: OutcomeUnchanged}, nil
	}

	outcome := OutcomeApplied
	switch action {
	case orphans.ActionDelete:
		if err := e.deleteOriginal(ctx, tx, &r); err != nil {
			return Result{Record: r}, err
		}
	case orphans.ActionRestore:
		restored, err := e.restoreOriginal(ctx, tx, r)
		if err != nil {
			return Result{Record: r}, err
		}
		if !restored {
			outcome = OutcomeSkipped
			target = r.Status
		}
	}

	r.Status = target
	if err := st.Update(ctx, &r); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit record %d: %w", id, err)
	}
	return Result{Record: r, Outcome: outcome}, nil
}

// deleteOriginal snapshots and removes the orphaned row. A row that is
// already gone leaves the existing snapshot in place.
func (e *Engine) deleteOriginal(ctx context.Context, tx *sql.Tx, r *orphans.Record) error {
	conn := e.store.Conn()
	cols, vals, found, err := conn.FetchRow(ctx, tx, r.OrphanTable, r.OrphanID)
	if err != nil {
		return err
	}
	if !found {
		logger.Warnf(ctx, "record %d: %s row %d is already gone", r.ID, r.OrphanTable, r.OrphanID)
		return nil
	}
	snap, err := snapshot.Capture(cols, vals)
	if err != nil {
		return err
	}
	enc, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	if err := conn.DeleteRow(ctx, tx, r.OrphanTable, r.OrphanID); err != nil {
		return err
	}
	r.OrphanRow = enc
	return nil
}

// restoreOriginal re-inserts the snapshot projected onto the live columns.
// It reports false when a row with the same id already exists.
func (e *Engine) restoreOriginal(ctx context.Context, tx *sql.Tx, r orphans.Record) (bool, error) {
	snap, err := snapshot.Decode(r.OrphanRow)
	if err != nil {
		return false, fmt.Errorf("record %d: %w: %v", r.ID, orphans.ErrDataIntegrity, err)
	}
	rowID := r.OrphanID
	if v, ok := snap.Get(introspect.IDColumn); ok && v.Kind == snapshot.Int {
		rowID = v.Int
	}

	conn := e.store.Conn()
	exists, err := conn.RowExists(ctx, tx, r.OrphanTable, rowID)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Warnf(ctx, "record %d: %s row %d already exists, not restoring", r.ID, r.OrphanTable, rowID)
		return false, nil
	}

	live, err := conn.Columns(ctx, tx, r.OrphanTable)
	if err != nil {
		return false, err
	}
	row := snap.Project(live)
	if _, ok := row.Get(introspect.IDColumn); !ok {
		return false, fmt.Errorf("record %d: %w: snapshot has no %s column", r.ID, orphans.ErrDataIntegrity, introspect.IDColumn)
	}
	if err := conn.InsertRow(ctx, tx, r.OrphanTable, row.Columns(), row.Values()); err != nil {
		return false, err
	}
	return true, nil
}

// IsClientError reports whether err was caused by the request rather than the database.
func IsClientError(err error) bool {
	return errors.Is(err, orphans.ErrNotFound) ||
		errors.Is(err, orphans.ErrInvalidAction) ||
		errors.Is(err, orphans.ErrDataIntegrity) ||
		errors.Is(err, orphans.ErrCannotRestore)
}
