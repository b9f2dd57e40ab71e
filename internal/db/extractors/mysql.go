package extractors

import (
	"context"
	"database/sql"
	"fmt"

	"orphanscan/internal/db"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
)

// myDialect implements db.Dialect for MySQL (information_schema).
type myDialect struct{}

func (myDialect) TableNames(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT table_name
        FROM information_schema.tables
        WHERE table_type = 'BASE TABLE'
          AND table_schema = DATABASE()
        ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// This is the extractor for MySQL
func (myDialect) Extract(ctx context.Context, dbConn *sql.DB) (introspect.Schema, error) {
	var s introspect.Schema

	tr, err := dbConn.QueryContext(ctx, `
        SELECT table_schema, table_name, table_comment
        FROM information_schema.tables
        WHERE table_type = 'BASE TABLE'
          AND table_schema = DATABASE()
        ORDER BY table_name`)
	if err != nil {
		return s, fmt.Errorf("query tables: %w", err)
	}
	defer tr.Close()

	for tr.Next() {
		var tab introspect.Table
		if err := tr.Scan(&tab.Schema, &tab.Name, &tab.Comment); err != nil {
			return s, fmt.Errorf("scan table row: %w", err)
		}
		s.Tables = append(s.Tables, tab)
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		cr, err := dbConn.QueryContext(ctx, `
            SELECT column_name, column_type, is_nullable = 'YES', column_key = 'PRI'
            FROM information_schema.columns
            WHERE table_schema = ? AND table_name = ?
            ORDER BY ordinal_position`, t.Schema, t.Name)
		if err != nil {
			return s, fmt.Errorf("query columns for %s.%s: %w", t.Schema, t.Name, err)
		}
		for cr.Next() {
			var col introspect.Column
			if err := cr.Scan(&col.Name, &col.Type, &col.Nullable, &col.PK); err != nil {
				cr.Close()
				return s, fmt.Errorf("scan column for %s.%s: %w", t.Schema, t.Name, err)
			}
			t.Columns = append(t.Columns, col)
		}
		cr.Close()
	}

	fkr, err := dbConn.QueryContext(ctx, `
        SELECT table_schema AS from_schema, table_name AS from_table,
		       group_concat(column_name ORDER BY ordinal_position separator ', ') AS from_column,
               referenced_table_schema AS to_schema, referenced_table_name AS to_table,
			   group_concat(referenced_column_name ORDER BY ordinal_position separator ', ') AS to_column,
			   constraint_name
        FROM information_schema.key_column_usage
        WHERE referenced_table_name IS NOT NULL AND table_schema = DATABASE()
		GROUP BY table_schema, table_name, referenced_table_schema, referenced_table_name, constraint_name
		ORDER BY table_name, constraint_name`)
	if err == nil {
		defer fkr.Close()
		for fkr.Next() {
			var fk introspect.ForeignKey
			if err := fkr.Scan(&fk.FromSchema, &fk.FromTable, &fk.FromColumn, &fk.ToSchema, &fk.ToTable, &fk.ToColumn, &fk.Constraint); err == nil {
				s.ForeignKeys = append(s.ForeignKeys, fk)
			} else {
				logger.Error("scan foreign key: %v", err)
			}
		}
	} else {
		logger.Error("query foreign key: %v", err)
	}

	return s, nil
}

func (myDialect) Placeholder(int) string { return "?" }

func (myDialect) CastToChar(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", expr)
}

func (d myDialect) NotBlank(expr string) string { return notBlank(d.CastToChar(expr)) }

func (myDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}

func (myDialect) IdentityInsert(_, stmt string) string { return stmt }

func (myDialect) RecordsTableDDL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			orphan_table VARCHAR(255) NOT NULL,
			orphan_id BIGINT NOT NULL,
			reason SMALLINT NOT NULL,
			reffields VARCHAR(1333) NOT NULL DEFAULT '',
			reftable VARCHAR(255) NOT NULL DEFAULT '',
			status SMALLINT NOT NULL DEFAULT 0,
			orphan_row LONGTEXT NULL,
			time_created BIGINT NOT NULL,
			time_modified BIGINT NOT NULL,
			INDEX %s_lookup (orphan_id, orphan_table, reason),
			INDEX %s_status (status, time_modified)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, table, table, table),
	}
}

func init() {
	db.Register("mysql", myDialect{})
	db.Register("mariadb", myDialect{})
}
