// Package store persists tracked orphan records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"orphanscan/internal/db"
	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
)

const columns = "id, orphan_table, orphan_id, reason, reffields, reftable, status, orphan_row, time_created, time_modified"

// Store reads and writes the records table. A Store bound to a transaction
// with WithTx issues every statement inside it.
type Store struct {
	conn  *db.Conn
	table string
	tx    *sql.Tx
	now   func() time.Time
}

// New returns a Store over table, which is named without the prefix.
func New(conn *db.Conn, table string) *Store {
	return &Store{conn: conn, table: table, now: time.Now}
}

// WithClock replaces the time source used to stamp records.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// WithTx returns a copy of s bound to tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.tx = tx
	return &c
}

func (s *Store) Conn() *db.Conn { return s.conn }
func (s *Store) Table() string  { return s.table }

// Now is the store clock truncated to the stored resolution.
func (s *Store) Now() time.Time {
	return time.Unix(s.now().Unix(), 0)
}

func (s *Store) q() db.Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn.DB
}

func (s *Store) name() string {
	return s.conn.Table(s.table)
}

// EnsureTable creates the records table when it is not present.
func (s *Store) EnsureTable(ctx context.Context) error {
	names, err := s.conn.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, n := range names {
		if strings.EqualFold(n, s.table) {
			return nil
		}
	}
	logger.Info("Creating records table %s", s.name())
	for _, stmt := range s.conn.Dialect.RecordsTableDDL(s.name()) {
		if _, err := s.q().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", s.name(), err)
		}
	}
	return nil
}

// NewPending builds an untracked Pending record stamped with the store clock.
func (s *Store) NewPending(table string, id int64, reason orphans.Reason, reffields, reftable string) orphans.Record {
	now := s.Now()
	return orphans.Record{
		OrphanTable:  table,
		OrphanID:     id,
		Reason:       reason,
		RefFields:    reffields,
		RefTable:     reftable,
		Status:       orphans.StatusPending,
		TimeCreated:  now,
		TimeModified: now,
	}
}

// InsertBatch writes recs in a single transaction. When s is already bound to
// a transaction the records join it instead.
func (s *Store) InsertBatch(ctx context.Context, recs []orphans.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx := s.tx
	if tx == nil {
		var err error
		tx, err = s.conn.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert: %w", err)
		}
		defer tx.Rollback()
	}

	marks := make([]string, 9)
	for i := range marks {
		marks[i] = s.conn.Dialect.Placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (orphan_table, orphan_id, reason, reffields, reftable, status, orphan_row, time_created, time_modified) VALUES (%s)",
		s.name(), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.OrphanTable, r.OrphanID, int64(r.Reason), r.RefFields, r.RefTable,
			int64(r.Status), nullable(r.OrphanRow), r.TimeCreated.Unix(), r.TimeModified.Unix()); err != nil {
			return fmt.Errorf("insert %s %d: %w", r.OrphanTable, r.OrphanID, err)
		}
	}
	if s.tx != nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Get returns the record with the given id, or orphans.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (orphans.Record, error) {
	rows, err := s.q().QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", columns, s.name(), s.conn.Dialect.Placeholder(1)), id)
	if err != nil {
		return orphans.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return orphans.Record{}, err
		}
		return orphans.Record{}, fmt.Errorf("record %d: %w", id, orphans.ErrNotFound)
	}
	return scanRecord(rows)
}

// Find returns the records matching f ordered by id. Use f.AfterID and
// f.Limit to page through large selections.
func (s *Store) Find(ctx context.Context, f orphans.Filter) ([]orphans.Record, error) {
	args := db.NewArgs(s.conn.Dialect)
	where := s.where(f, args)
	if f.AfterID > 0 {
		where = append(where, "id > "+args.Add(f.AfterID))
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id", columns, s.name(), clause(where))
	if f.Limit > 0 {
		query = s.conn.Dialect.Limit(query, f.Limit)
	}
	rows, err := s.q().QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()
	var out []orphans.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns how many records match f. Paging fields are ignored.
func (s *Store) Count(ctx context.Context, f orphans.Filter) (int64, error) {
	args := db.NewArgs(s.conn.Dialect)
	var n int64
	err := s.q().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(1) FROM %s%s", s.name(), clause(s.where(f, args))), args.Values()...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Update persists every mutable field of r and stamps r.TimeModified.
func (s *Store) Update(ctx context.Context, r *orphans.Record) error {
	r.TimeModified = s.Now()
	args := db.NewArgs(s.conn.Dialect)
	query := fmt.Sprintf("UPDATE %s SET status = %s, orphan_row = %s, time_modified = %s WHERE id = %s",
		s.name(), args.Add(int64(r.Status)), args.Add(nullable(r.OrphanRow)), args.Add(r.TimeModified.Unix()), args.Add(r.ID))
	if _, err := s.q().ExecContext(ctx, query, args.Values()...); err != nil {
		return fmt.Errorf("update record %d: %w", r.ID, err)
	}
	return nil
}

// CountWhere counts records in status last modified at or before olderThan.
func (s *Store) CountWhere(ctx context.Context, status orphans.Status, olderThan time.Time) (int64, error) {
	args := db.NewArgs(s.conn.Dialect)
	var n int64
	err := s.q().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE status = %s AND time_modified <= %s",
			s.name(), args.Add(int64(status)), args.Add(olderThan.Unix())),
		args.Values()...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s records: %w", status, err)
	}
	return n, nil
}

// DeleteWhere removes records in status last modified at or before olderThan.
func (s *Store) DeleteWhere(ctx context.Context, status orphans.Status, olderThan time.Time) (int64, error) {
	args := db.NewArgs(s.conn.Dialect)
	res, err := s.q().ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE status = %s AND time_modified <= %s",
			s.name(), args.Add(int64(status)), args.Add(olderThan.Unix())),
		args.Values()...)
	if err != nil {
		return 0, fmt.Errorf("delete %s records: %w", status, err)
	}
	return res.RowsAffected()
}

func (s *Store) where(f orphans.Filter, args *db.Args) []string {
	var w []string
	if f.OrphanTable != "" {
		w = append(w, "orphan_table = "+args.Add(f.OrphanTable))
	}
	if f.OrphanID != nil {
		w = append(w, "orphan_id = "+args.Add(*f.OrphanID))
	}
	if f.Reason != nil {
		w = append(w, "reason = "+args.Add(int64(*f.Reason)))
	}
	if f.RefFields != "" {
		w = append(w, "reffields = "+args.Add(f.RefFields))
	}
	if f.RefTable != "" {
		w = append(w, "reftable = "+args.Add(f.RefTable))
	}
	if f.Status != nil {
		w = append(w, "status = "+args.Add(int64(*f.Status)))
	}
	if f.ExcludeStatus != nil {
		w = append(w, "status <> "+args.Add(int64(*f.ExcludeStatus)))
	}
	return w
}

func clause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanRecord(rows *sql.Rows) (orphans.Record, error) {
	var (
		r                 orphans.Record
		reason, status    int64
		reffields, reftab sql.NullString
		orphanRow         sql.NullString
		created, modified int64
	)
	if err := rows.Scan(&r.ID, &r.OrphanTable, &r.OrphanID, &reason, &reffields, &reftab,
		&status, &orphanRow, &created, &modified); err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	r.Reason = orphans.Reason(reason)
	r.Status = orphans.Status(status)
	r.RefFields = reffields.String
	r.RefTable = reftab.String
	r.OrphanRow = orphanRow.String
	r.TimeCreated = time.Unix(created, 0)
	r.TimeModified = time.Unix(modified, 0)
	return r, nil
}
