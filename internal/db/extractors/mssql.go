package extractors

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"orphanscan/internal/db"
	"orphanscan/internal/introspect"
	"orphanscan/internal/logger"
)

// mssqlDialect implements db.Dialect for Microsoft SQL Server.
type mssqlDialect struct{}

func (mssqlDialect) TableNames(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT t.name
        FROM sys.tables AS t
        WHERE t.schema_id = SCHEMA_ID()
        ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// This is the extractor for Microsoft SQL Server
func (mssqlDialect) Extract(ctx context.Context, dbConn *sql.DB) (introspect.Schema, error) {
	var s introspect.Schema

	// list tables of the default schema
	tr, err := dbConn.QueryContext(ctx, `
        SELECT
          s.name AS schema_name,
          t.name AS table_name,
          CAST(sep.value AS NVARCHAR(4000)) AS comment
        FROM sys.schemas AS s
        JOIN sys.tables AS t
		  ON s.schema_id = t.schema_id
        LEFT JOIN sys.extended_properties AS sep
		  ON t.object_id = sep.major_id
         AND sep.minor_id = 0
         AND sep.name = 'MS_Description'
        WHERE s.schema_id = SCHEMA_ID()
        ORDER BY t.name`)
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

	// columns and PKs for each table
	for i := range s.Tables {
		t := &s.Tables[i]

		cr, err := dbConn.QueryContext(ctx, `
            SELECT COLUMN_NAME, DATA_TYPE, CASE WHEN IS_NULLABLE='YES' THEN 1 ELSE 0 END
            FROM INFORMATION_SCHEMA.COLUMNS
            WHERE TABLE_SCHEMA = @schema AND TABLE_NAME = @table
            ORDER BY ORDINAL_POSITION`, sql.Named("schema", t.Schema), sql.Named("table", t.Name))
		if err != nil {
			return s, fmt.Errorf("query columns for %s.%s: %w", t.Schema, t.Name, err)
		}

		for cr.Next() {
			var col introspect.Column
			var nullableInt int
			if err := cr.Scan(&col.Name, &col.Type, &nullableInt); err != nil {
				cr.Close()
				return s, fmt.Errorf("scan column for %s.%s: %w", t.Schema, t.Name, err)
			}
			col.Nullable = nullableInt == 1
			t.Columns = append(t.Columns, col)
		}
		cr.Close()

		// primary keys
		pkr, err := dbConn.QueryContext(ctx, `
            SELECT k.COLUMN_NAME
            FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS t
            JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k ON t.CONSTRAINT_NAME = k.CONSTRAINT_NAME AND t.TABLE_SCHEMA = k.TABLE_SCHEMA
            WHERE t.CONSTRAINT_TYPE = 'PRIMARY KEY' AND k.TABLE_SCHEMA = @schema AND k.TABLE_NAME = @table`, sql.Named("schema", t.Schema), sql.Named("table", t.Name))
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

	// foreign keys, columns in key order
	fkr, err := dbConn.QueryContext(ctx, `
        SELECT
            OBJECT_SCHEMA_NAME(fkc.parent_object_id) AS from_schema,
            OBJECT_NAME(fkc.parent_object_id) AS from_table,
            STRING_AGG(c.NAME, ', ') WITHIN GROUP (ORDER BY fkc.constraint_column_id) AS from_column,
            OBJECT_SCHEMA_NAME(fkc.referenced_object_id) AS to_schema,
            OBJECT_NAME(fkc.referenced_object_id) AS to_table,
            STRING_AGG(rc.NAME, ', ') WITHIN GROUP (ORDER BY fkc.constraint_column_id) AS to_column,
			fk.name AS constraint_name
        FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
        JOIN sys.columns c ON fkc.parent_object_id = c.object_id AND fkc.parent_column_id = c.column_id
        JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
        GROUP BY fk.name, fkc.parent_object_id, fkc.referenced_object_id
        ORDER BY from_table, constraint_name`)
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

func (mssqlDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (mssqlDialect) CastToChar(expr string) string {
	return fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", expr)
}

func (d mssqlDialect) NotBlank(expr string) string { return notBlank(d.CastToChar(expr)) }

// Limit relies on every generated query starting with SELECT.
func (mssqlDialect) Limit(query string, n int) string {
	q := strings.TrimSpace(query)
	if len(q) >= 6 && strings.EqualFold(q[:6], "SELECT") {
		return fmt.Sprintf("SELECT TOP (%d)%s", n, q[6:])
	}
	return q
}

func (mssqlDialect) IdentityInsert(table, stmt string) string {
	return fmt.Sprintf("SET IDENTITY_INSERT %s ON; %s; SET IDENTITY_INSERT %s OFF", table, stmt, table)
}

func (mssqlDialect) RecordsTableDDL(table string) []string {
	return []string{
		fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
		CREATE TABLE %s (
			id BIGINT IDENTITY(1,1) PRIMARY KEY,
			orphan_table NVARCHAR(255) NOT NULL,
			orphan_id BIGINT NOT NULL,
			reason SMALLINT NOT NULL,
			reffields NVARCHAR(1333) NOT NULL DEFAULT '',
			reftable NVARCHAR(255) NOT NULL DEFAULT '',
			status SMALLINT NOT NULL DEFAULT 0,
			orphan_row NVARCHAR(MAX) NULL,
			time_created BIGINT NOT NULL,
			time_modified BIGINT NOT NULL,
			INDEX %s_lookup (orphan_id, orphan_table, reason),
			INDEX %s_status (status, time_modified))`, table, table, table, table),
	}
}

func init() {
	db.Register("sqlserver", mssqlDialect{})
	db.Register("mssql", mssqlDialect{})
}
