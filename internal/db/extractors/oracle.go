//go:build oracle
// +build oracle

package extractors

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/godror/godror"

	"orphanscan/internal/db"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
)

// oracleDialect implements db.Dialect for Oracle 12c and later.
type oracleDialect struct{}

func (oracleDialect) TableNames(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
	    SELECT LOWER(table_name)
	    FROM user_tables
	    ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// This is the extractor for Oracle
func (oracleDialect) Extract(ctx context.Context, dbConn *sql.DB) (introspect.Schema, error) {
	var s introspect.Schema

	tr, err := dbConn.QueryContext(ctx, `
	    SELECT
		   USER,
		   LOWER(atab.table_name),
		   acom.comments
	    FROM user_tables atab
	    LEFT JOIN user_tab_comments acom
	      ON atab.table_name = acom.table_name
	    ORDER BY atab.table_name`)
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
            SELECT LOWER(column_name), data_type, nullable
            FROM user_tab_columns
            WHERE table_name = UPPER(:1)
            ORDER BY column_id`, t.Name)
		if err != nil {
			return s, fmt.Errorf("query columns for %s.%s: %w", t.Schema, t.Name, err)
		}
		for cr.Next() {
			var col introspect.Column
			var nullable string
			if err := cr.Scan(&col.Name, &col.Type, &nullable); err != nil {
				cr.Close()
				return s, fmt.Errorf("scan column for %s.%s: %w", t.Schema, t.Name, err)
			}
			col.Nullable = (nullable == "Y")
			t.Columns = append(t.Columns, col)
		}
		cr.Close()

		pkr, err := dbConn.QueryContext(ctx, `
            SELECT LOWER(acc.column_name)
            FROM user_cons_columns acc
            JOIN user_constraints ac ON acc.constraint_name = ac.constraint_name
            WHERE ac.constraint_type = 'P' AND acc.table_name = UPPER(:1)`, t.Name)
		if err == nil {
			for pkr.Next() {
				var pkcol string
				if err := pkr.Scan(&pkcol); err == nil {
					markPK(t, pkcol)
				} else {
					logger.Error("scan primary key: %v", err)
				}
			}
			pkr.Close()
		} else {
			logger.Error("query primary key: %v", err)
		}
	}

	fkr, err := dbConn.QueryContext(ctx, `
        SELECT a.owner AS from_schema, LOWER(a.table_name) AS from_table,
		       LOWER(listagg(acc.column_name, ', ') within group (order by acc.position)) AS from_column,
               rcc.owner AS to_schema, LOWER(rcc.table_name) AS to_table,
			   LOWER(listagg(rcc.column_name, ', ') within group (order by rcc.position)) AS to_column,
			   a.constraint_name
        FROM user_constraints a
        JOIN user_cons_columns acc
		  ON a.constraint_name = acc.constraint_name
        JOIN all_cons_columns rcc
		  ON a.r_owner = rcc.owner
		 AND a.r_constraint_name = rcc.constraint_name
		 AND nvl(acc.position, 0) = nvl(rcc.position, 0)
        WHERE a.constraint_type = 'R'
		GROUP BY a.owner, a.table_name, rcc.owner, rcc.table_name, a.constraint_name
		ORDER BY a.table_name, a.constraint_name`)
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

func (oracleDialect) Placeholder(n int) string { return fmt.Sprintf(":%d", n) }

func (oracleDialect) CastToChar(expr string) string {
	return fmt.Sprintf("TO_CHAR(%s)", expr)
}

// NotBlank only tests for '0': Oracle stores '' as NULL and NULL never compares.
func (d oracleDialect) NotBlank(expr string) string { return d.CastToChar(expr) + " <> '0'" }

func (oracleDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", query, n)
}

func (oracleDialect) IdentityInsert(_, stmt string) string { return stmt }

func (oracleDialect) RecordsTableDDL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id NUMBER(19) GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			orphan_table VARCHAR2(255) NOT NULL,
			orphan_id NUMBER(19) NOT NULL,
			reason NUMBER(5) NOT NULL,
			reffields VARCHAR2(1333),
			reftable VARCHAR2(255),
			status NUMBER(5) DEFAULT 0 NOT NULL,
			orphan_row CLOB,
			time_created NUMBER(19) NOT NULL,
			time_modified NUMBER(19) NOT NULL)`, table),
		fmt.Sprintf(`CREATE INDEX %s_lookup ON %s (orphan_id, orphan_table, reason)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_status ON %s (status, time_modified)`, table, table),
	}
}

func init() {
	db.Register("godror", oracleDialect{})
	db.Register("oracle", oracleDialect{})
}
