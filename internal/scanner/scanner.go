// Package scanner runs integrity checks against live tables and records every
// newly found orphan exactly once.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
	"orphanscan/internal/metrics"
	"orphanscan/internal/orphans"
	"orphanscan/internal/rules"
	"orphanscan/internal/store"
	"orphanscan/pkg/config"
)

// ErrNoSuchTable is returned when asked to scan a table absent from the live database.
var ErrNoSuchTable = errors.New("table does not exist")

// Options tunes a Scanner.
type Options struct {
	BatchSize         int
	SkipTables        []string
	CheckGradeHistory bool
	GradeHistoryTable string
}

// OptionsFromConfig maps the scan section of the configuration.
func OptionsFromConfig(c config.ScanConfig) Options {
	return Options{
		BatchSize:         c.BatchSize,
		SkipTables:        c.SkipTables,
		CheckGradeHistory: c.CheckGradeHistory,
		GradeHistoryTable: c.Structure.GradeGradesHistory,
	}
}

// Scanner executes checks for one database.
type Scanner struct {
	in    *introspect.Introspector
	store *store.Store
	opts  Options
	skip  map[string]bool
}

func New(in *introspect.Introspector, st *store.Store, opts Options) *Scanner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	skip := make(map[string]bool, len(opts.SkipTables))
	for _, t := range opts.SkipTables {
		skip[t] = true
	}
	return &Scanner{in: in, store: st, opts: opts, skip: skip}
}

// TableResult reports the outcome of scanning one table in a full run.
type TableResult struct {
	Table   string `json:"table"`
	Found   int    `json:"found"`
	Skipped string `json:"skipped,omitempty"`
	Err     error  `json:"-"`
}

// ScanTable runs every check generated for table and returns how many new
// orphans were recorded. A failing check stops the remaining checks for the
// table; batches already inserted stay recorded.
func (s *Scanner) ScanTable(ctx context.Context, table string) (int, error) {
	if !s.in.Exists(table) {
		return 0, fmt.Errorf("%s: %w", table, ErrNoSuchTable)
	}
	t, ok := s.in.Table(table)
	if !ok {
		t = introspect.Table{Name: table}
	}

	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	}()

	total := 0
	for _, check := range rules.Generate(t, s.in) {
		n, err := s.runCheck(ctx, check)
		total += n
		if err != nil {
			metrics.ScanFailures.WithLabelValues(table).Inc()
			return total, fmt.Errorf("check %s: %w", check, err)
		}
	}
	logger.Infof(ctx, "Found %d total orphaned records for table.", total)
	return total, nil
}

// runCheck re-runs the same limited query until it returns nothing. Each
// batch is committed before the next query, so the anti-join against the
// records table moves the window forward.
func (s *Scanner) runCheck(ctx context.Context, c rules.Check) (int, error) {
	query, args := rules.Render(c, s.store.Conn(), s.store.Table())
	query = s.store.Conn().Dialect.Limit(query, s.opts.BatchSize)
	logger.Debugf(ctx, "check %s: %s", c, query)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := s.fetch(ctx, query, args)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		recs := make([]orphans.Record, len(ids))
		for i, id := range ids {
			recs[i] = s.store.NewPending(c.Table, id, c.Reason, c.RefFields, c.RefTable)
		}
		if err := s.store.InsertBatch(ctx, recs); err != nil {
			return total, err
		}
		total += len(ids)
		metrics.OrphansFound.WithLabelValues(c.Table, c.Reason.String()).Add(float64(len(ids)))
		logger.Infof(ctx, "Found %d orphaned records.", len(ids))
	}
}

func (s *Scanner) fetch(ctx context.Context, query string, args []any) ([]int64, error) {
	rows, err := s.store.Conn().DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// skipReason says why a full run leaves table alone, or "" to scan it.
func (s *Scanner) skipReason(table string) string {
	switch {
	case s.skip[table]:
		return "skip list"
	case table == s.store.Table():
		return "records table"
	case table == s.opts.GradeHistoryTable && !s.opts.CheckGradeHistory:
		return "grade history check disabled"
	case !s.in.Exists(table):
		return "not in database"
	}
	return ""
}

// RunAll scans every declared table in order. A table that fails is reported
// in its TableResult and the run moves on; only an unreachable database ends
// the run early.
func (s *Scanner) RunAll(ctx context.Context) ([]TableResult, error) {
	tables := s.in.Tables()
	results := make([]TableResult, 0, len(tables))
	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		logger.Infof(ctx, "Processing table '%s': %d of %d", t.Name, i+1, len(tables))
		if why := s.skipReason(t.Name); why != "" {
			logger.Debugf(ctx, "Skipping table '%s': %s", t.Name, why)
			results = append(results, TableResult{Table: t.Name, Skipped: why})
			continue
		}
		found, err := s.ScanTable(ctx, t.Name)
		results = append(results, TableResult{Table: t.Name, Found: found, Err: err})
		if err == nil {
			continue
		}
		logger.Errorf(ctx, "Scanning table '%s' failed: %v", t.Name, err)
		if pingErr := s.store.Conn().DB.PingContext(ctx); pingErr != nil {
			return results, fmt.Errorf("database unreachable: %w", pingErr)
		}
	}
	return results, nil
}

// Summary totals a full run.
func Summary(results []TableResult) (found, scanned, skipped, failed int) {
	for _, r := range results {
		switch {
		case r.Skipped != "":
			skipped++
		case r.Err != nil:
			failed++
			found += r.Found
		default:
			scanned++
			found += r.Found
		}
	}
	return found, scanned, skipped, failed
}
