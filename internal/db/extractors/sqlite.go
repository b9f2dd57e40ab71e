package extractors

import (
	"context"
	"database/sql"
	"fmt"

	"orphanscan/internal/db"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
)

// sqliteDialect implements db.Dialect for SQLite.
type sqliteDialect struct{}

func (sqliteDialect) TableNames(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
	    SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// This is the extractor for SQLite
func (d sqliteDialect) Extract(ctx context.Context, dbConn *sql.DB) (introspect.Schema, error) {
	var s introspect.Schema

	names, err := d.TableNames(ctx, dbConn)
	if err != nil {
		return s, err
	}
	for _, n := range names {
		s.Tables = append(s.Tables, introspect.Table{Name: n})
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		pr, err := dbConn.QueryContext(ctx, fmt.Sprintf("PRAGMA main.table_info('%s')", t.Name))
		if err != nil {
			return s, fmt.Errorf("query columns for %s: %w", t.Name, err)
		}
		for pr.Next() {
			var cid int
			var name, ctype string
			var notnull, pk int
			var dflt sql.NullString
			if err := pr.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				pr.Close()
				return s, fmt.Errorf("scan column for %s: %w", t.Name, err)
			}
			t.Columns = append(t.Columns, introspect.Column{
				Name:     name,
				Type:     ctype,
				Nullable: notnull == 0,
				PK:       pk != 0,
			})
		}
		pr.Close()

		// one group per constraint id; a NULL "to" means the parent's primary key
		fkRows, err := dbConn.QueryContext(ctx, fmt.Sprintf(`
		    SELECT "table", group_concat("from", ', ') AS from_column,
			       group_concat(COALESCE("to", 'id'), ', ') AS to_column
		    FROM (SELECT * FROM pragma_foreign_key_list('%s') ORDER BY id, seq)
			GROUP BY id
			ORDER BY id`, t.Name))
		if err != nil {
			logger.Error("query foreign key: %v", err)
			continue
		}
		for fkRows.Next() {
			var table, from, to sql.NullString
			if err := fkRows.Scan(&table, &from, &to); err != nil {
				logger.Error("scan foreign key: %v", err)
				continue
			}
			if table.Valid && from.Valid && to.Valid {
				s.ForeignKeys = append(s.ForeignKeys, introspect.ForeignKey{
					FromTable:  t.Name,
					FromColumn: from.String,
					ToTable:    table.String,
					ToColumn:   to.String,
				})
			}
		}
		fkRows.Close()
	}

	return s, nil
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) CastToChar(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (d sqliteDialect) NotBlank(expr string) string { return notBlank(d.CastToChar(expr)) }

func (sqliteDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}

func (sqliteDialect) IdentityInsert(_, stmt string) string { return stmt }

func (sqliteDialect) RecordsTableDDL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			orphan_table VARCHAR(255) NOT NULL,
			orphan_id BIGINT NOT NULL,
			reason INTEGER NOT NULL,
			reffields VARCHAR(1333) NOT NULL DEFAULT '',
			reftable VARCHAR(255) NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 0,
			orphan_row TEXT,
			time_created BIGINT NOT NULL,
			time_modified BIGINT NOT NULL)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_lookup ON %s (orphan_id, orphan_table, reason)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status ON %s (status, time_modified)`, table, table),
	}
}

func init() {
	db.Register("sqlite3", sqliteDialect{})
	db.Register("sqlite", sqliteDialect{})
}
