package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kslau/tendergraph/chunk"
)

// XLSXReader reads award records from an XLSX workbook. The first row of each
// sheet is treated as the header; every sheet contributes its rows.
type XLSXReader struct {
	Limit int
}

func (r *XLSXReader) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (r *XLSXReader) Read(ctx context.Context, path string) ([]chunk.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var records []chunk.Record
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) < 2 {
			continue
		}

		header := rows[0]
		for _, row := range rows[1:] {
			raw := make(map[string]string, len(header))
			for i, col := range header {
				if i < len(row) {
					raw[col] = row[i]
				}
			}
			records = append(records, fromRaw(raw))

			if r.Limit > 0 && len(records) >= r.Limit {
				return records, nil
			}
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no records found in XLSX")
	}
	return records, nil
}
