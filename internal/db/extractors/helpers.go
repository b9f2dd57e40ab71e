package extractors

import (
	"database/sql"
	"fmt"

	"orphanscan/internal/introspect"
)

// scanNames drains a single-column result of table names.
func scanNames(rows *sql.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func markPK(t *introspect.Table, col string) {
	for j := range t.Columns {
		if t.Columns[j].Name == col {
			t.Columns[j].PK = true
		}
	}
}

// notBlank rejects values that cast to '' or '0'. NULL fails both comparisons.
func notBlank(cast string) string {
	return fmt.Sprintf("%s <> '' AND %s <> '0'", cast, cast)
}
