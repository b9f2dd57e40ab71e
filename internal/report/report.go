// Package report exports tracked records as a spreadsheet.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"orphanscan/internal/orphans"
	"orphanscan/internal/store"
)

const (
	SheetName   = "Sheet1"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pageSize    = 1000
)

var header = []interface{}{"ID", "Table", "Orphan ID", "Reason", "Status", "Time created", "Time modified"}

func row(r orphans.Record) []interface{} {
	return []interface{}{
		r.ID,
		r.OrphanTable,
		r.OrphanID,
		orphans.ReasonText(r.Reason, r.RefFields, r.RefTable),
		r.Status.String(),
		r.TimeCreated.UTC().Format(time.RFC3339),
		r.TimeModified.UTC().Format(time.RFC3339),
	}
}

// WriteXLSX writes every record matching f to w and returns how many were written.
func WriteXLSX(ctx context.Context, st *store.Store, f orphans.Filter, w io.Writer) (int, error) {
	x := excelize.NewFile()
	defer x.Close()
	if err := x.SetSheetRow(SheetName, "A1", &header); err != nil {
		return 0, err
	}

	f.AfterID = 0
	f.Limit = pageSize
	n := 0
	for {
		page, err := st.Find(ctx, f)
		if err != nil {
			return n, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			cell, err := excelize.CoordinatesToCellName(1, n+2)
			if err != nil {
				return n, err
			}
			values := row(r)
			if err := x.SetSheetRow(SheetName, cell, &values); err != nil {
				return n, fmt.Errorf("write record %d: %w", r.ID, err)
			}
			n++
		}
		f.AfterID = page[len(page)-1].ID
	}

	if err := x.Write(w); err != nil {
		return n, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}
