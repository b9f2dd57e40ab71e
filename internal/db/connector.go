package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"orphanscan/internal/introspect"
	"orphanscan/pkg/config"
)

// Extractor reads the declared schema out of a live database.
type Extractor interface {

	// Extract takes a database connection and returns every table with its
	// columns and foreign keys
	Extract(ctx context.Context, db *sql.DB) (introspect.Schema, error)
}

// Dialect is everything the scanner needs to speak one SQL flavour.
type Dialect interface {
	Extractor

	// TableNames lists every base table, with whatever prefix it carries.
	TableNames(ctx context.Context, q Querier) ([]string, error)

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// CastToChar renders expr cast to a character type.
	CastToChar(expr string) string

	// NotBlank renders a predicate that is true only when expr is set:
	// not NULL, not '' and not 0.
	NotBlank(expr string) string

	// Limit restricts a SELECT statement to its first n rows.
	Limit(query string, n int) string

	// IdentityInsert wraps an INSERT that supplies an explicit primary key.
	IdentityInsert(table, stmt string) string

	// RecordsTableDDL returns the statements creating the tracking table.
	RecordsTableDDL(table string) []string
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var dialects = map[string]Dialect{}

// Register makes a Dialect available under name.
func Register(name string, d Dialect) {
	dialects[strings.ToLower(name)] = d
}

// listRegistered returns the registered dialect keys (for diagnostics).
func listRegistered() []string {
	keys := make([]string, 0, len(dialects))
	for k := range dialects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisteredDialects is a helper that allows main to print registered dialects
func RegisteredDialects() []string {
	return listRegistered()
}

// Lookup returns the dialect registered for driver.
func Lookup(driver string) (Dialect, error) {
	d, ok := dialects[config.NormalizeDriver(driver)]
	if !ok {
		return nil, fmt.Errorf("dialect not registered: %q (available: %v)", driver, listRegistered())
	}
	return d, nil
}

// Conn is an open database plus the dialect and table prefix used to address it.
type Conn struct {
	DB      *sql.DB
	Dialect Dialect
	Driver  string
	Prefix  string
}

// Open connects to the database and checks it answers within timeoutSec.
func Open(driver, dsn string, timeoutSec int, prefix string) (*Conn, error) {
	driver = config.NormalizeDriver(driver)
	dialect, err := Lookup(driver)
	if err != nil {
		return nil, err
	}
	dbConn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	return &Conn{DB: dbConn, Dialect: dialect, Driver: driver, Prefix: prefix}, nil
}

// Close releases the underlying pool.
func (c *Conn) Close() error {
	return c.DB.Close()
}

// Table returns the live name of a prefix-less table.
func (c *Conn) Table(name string) string {
	return c.Prefix + name
}

// Extract reads the live schema and folds its foreign keys into relationships.
// Table names are returned without the prefix.
func (c *Conn) Extract(ctx context.Context) (introspect.Schema, error) {
	s, err := c.Dialect.Extract(ctx, c.DB)
	if err != nil {
		return s, err
	}
	if c.Prefix != "" {
		kept := s.Tables[:0]
		for _, t := range s.Tables {
			if strings.HasPrefix(t.Name, c.Prefix) {
				kept = append(kept, t)
			}
		}
		s.Tables = kept
	}
	return s.WithRelationships(c.Prefix), nil
}

// TableNames lists live tables carrying the prefix, with the prefix removed.
func (c *Conn) TableNames(ctx context.Context) ([]string, error) {
	names, err := c.Dialect.TableNames(ctx, c.DB)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, c.Prefix) {
			out = append(out, strings.TrimPrefix(n, c.Prefix))
		}
	}
	return out, nil
}

// Modules reads the activity module registry.
func (c *Conn) Modules(ctx context.Context, table string) ([]introspect.Module, error) {
	rows, err := c.DB.QueryContext(ctx, fmt.Sprintf("SELECT id, name FROM %s", c.Table(table)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	var mods []introspect.Module
	for rows.Next() {
		var m introspect.Module
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// Columns returns the live column names of table, fetched fresh.
func (c *Conn) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", c.Table(table)))
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// FetchRow reads the whole row of table whose id is id.
// found is false when no such row exists.
func (c *Conn) FetchRow(ctx context.Context, q Querier, table string, id int64) (cols []string, vals []any, found bool, err error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", c.Table(table), introspect.IDColumn, c.Dialect.Placeholder(1)), id)
	if err != nil {
		return nil, nil, false, fmt.Errorf("query %s row %d: %w", table, id, err)
	}
	defer rows.Close()
	cols, err = rows.Columns()
	if err != nil {
		return nil, nil, false, err
	}
	if !rows.Next() {
		return cols, nil, false, rows.Err()
	}
	vals = make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, false, fmt.Errorf("scan %s row %d: %w", table, id, err)
	}
	return cols, vals, true, nil
}

// RowExists reports whether table has a row with the given id.
func (c *Conn) RowExists(ctx context.Context, q Querier, table string, id int64) (bool, error) {
	var n int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s = %s", c.Table(table), introspect.IDColumn, c.Dialect.Placeholder(1)),
		id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count %s row %d: %w", table, id, err)
	}
	return n > 0, nil
}

// DeleteRow removes the row of table whose id is id.
func (c *Conn) DeleteRow(ctx context.Context, q Querier, table string, id int64) error {
	_, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = %s", c.Table(table), introspect.IDColumn, c.Dialect.Placeholder(1)), id)
	if err != nil {
		return fmt.Errorf("delete %s row %d: %w", table, id, err)
	}
	return nil
}

// InsertRow inserts values into the named columns of table, keeping any
// explicit primary key among them.
func (c *Conn) InsertRow(ctx context.Context, q Querier, table string, cols []string, vals []any) error {
	args := NewArgs(c.Dialect)
	marks := make([]string, len(vals))
	for i, v := range vals {
		marks[i] = args.Add(v)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.Table(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := q.ExecContext(ctx, c.Dialect.IdentityInsert(c.Table(table), stmt), args.Values()...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Args collects bind values and hands out dialect placeholders in order.
type Args struct {
	d    Dialect
	vals []any
}

func NewArgs(d Dialect) *Args {
	return &Args{d: d}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

func (a *Args) Values() []any {
	return a.vals
}
