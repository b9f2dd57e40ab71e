package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orphanscan/internal/introspect"
)

var testdialect string = "testdialect"

// testDialect answers like SQLite but cannot extract.
type testDialect struct{}

func (testDialect) Extract(ctx context.Context, dbConn *sql.DB) (introspect.Schema, error) {
	var s introspect.Schema
	return s, errors.New("not implemented")
}

func (testDialect) TableNames(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (testDialect) Placeholder(int) string            { return "?" }
func (testDialect) CastToChar(expr string) string     { return "CAST(" + expr + " AS TEXT)" }
func (testDialect) NotBlank(expr string) string       { return expr + " IS NOT NULL" }
func (testDialect) Limit(q string, n int) string      { return fmt.Sprintf("%s LIMIT %d", q, n) }
func (testDialect) IdentityInsert(_, s string) string { return s }
func (testDialect) RecordsTableDDL(string) []string   { return nil }

func TestRegister(t *testing.T) {
	// tests both Register and RegisteredDialects because they take the same setup

	Register(testdialect, testDialect{})

	_, ok := dialects[testdialect]
	require.True(t, ok, "dialect %v not registered correctly in %v", testdialect, dialects)

	assert.Contains(t, RegisteredDialects(), testdialect)
}

func TestOpen(t *testing.T) {

	var tests = []struct {
		name          string
		dialect       string
		dsn           string
		timeout       int
		registerFirst bool
		errIsNil      bool
	}{
		{"unregistered dialect", "nosuchdialect", "", 10, false, false},
		{"sqlite with testDialect", "sqlite", ":memory:", 10, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.registerFirst {
				Register(tt.dialect, testDialect{})
			}

			c, err := Open(tt.dialect, tt.dsn, tt.timeout, "")
			assert.Equal(t, tt.errIsNil, err == nil, "error: %v", err)
			if c != nil {
				_, err := c.Extract(context.Background())
				assert.Error(t, err)
				c.Close()
			}
		})
	}
}

func openTestConn(t *testing.T, prefix string) *Conn {
	t.Helper()
	Register("sqlite", testDialect{})
	c, err := Open("sqlite", ":memory:", 5, prefix)
	require.NoError(t, err)
	c.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnRowHelpers(t *testing.T) {
	ctx := context.Background()
	c := openTestConn(t, "mdl_")
	_, err := c.DB.Exec(`CREATE TABLE mdl_course (id INTEGER PRIMARY KEY, fullname TEXT, originalcourseid INTEGER)`)
	require.NoError(t, err)
	_, err = c.DB.Exec(`CREATE TABLE other (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = c.DB.Exec(`CREATE TABLE mdl_modules (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = c.DB.Exec(`INSERT INTO mdl_modules (id, name) VALUES (1, 'scorm'), (2, 'quiz')`)
	require.NoError(t, err)

	names, err := c.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"course", "modules"}, names)

	mods, err := c.Modules(ctx, "modules")
	require.NoError(t, err)
	assert.ElementsMatch(t, []introspect.Module{{ID: 1, Name: "scorm"}, {ID: 2, Name: "quiz"}}, mods)

	cols, err := c.Columns(ctx, c.DB, "course")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "fullname", "originalcourseid"}, cols)

	require.NoError(t, c.InsertRow(ctx, c.DB, "course", []string{"id", "fullname", "originalcourseid"}, []any{int64(42), "Maths", nil}))

	exists, err := c.RowExists(ctx, c.DB, "course", 42)
	require.NoError(t, err)
	assert.True(t, exists)

	cols, vals, found, err := c.FetchRow(ctx, c.DB, "course", 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"id", "fullname", "originalcourseid"}, cols)
	assert.Equal(t, int64(42), vals[0])
	assert.Nil(t, vals[2])

	require.NoError(t, c.DeleteRow(ctx, c.DB, "course", 42))
	_, _, found, err = c.FetchRow(ctx, c.DB, "course", 42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArgs(t *testing.T) {
	a := NewArgs(testDialect{})
	assert.Equal(t, "?", a.Add(1))
	assert.Equal(t, "?", a.Add("x"))
	assert.Equal(t, []any{1, "x"}, a.Values())
}
