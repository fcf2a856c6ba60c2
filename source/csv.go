package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/kslau/tendergraph/chunk"
)

// CSVReader reads the published procurement CSV export. Rows are mapped by
// header name, not position, so column reordering in future exports is
// harmless.
type CSVReader struct {
	// Limit caps the number of records read. Zero or negative reads all.
	Limit int
}

func (r *CSVReader) SupportedFormats() []string { return []string{"csv"} }

func (r *CSVReader) Read(ctx context.Context, path string) ([]chunk.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	raw, err := decodeRawCSV(ctx, f, r.Limit)
	if err != nil {
		return nil, err
	}
	return mapRaw(raw), nil
}

// decodeRawCSV reads header-keyed rows from CSV data. A non-positive limit
// reads everything.
func decodeRawCSV(ctx context.Context, src io.Reader, limit int) ([]map[string]string, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var rows []map[string]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		raw := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				raw[col] = row[i]
			}
		}
		rows = append(rows, raw)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}
