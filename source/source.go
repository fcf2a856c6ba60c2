// Package source reads procurement award records from their export formats:
// the published CSV, XLSX workbooks, cached raw JSON, and JSONL chunk files.
// All readers produce the same normalized Record shape regardless of input.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kslau/tendergraph/chunk"
)

// Reader reads award records from a file of a specific format.
type Reader interface {
	Read(ctx context.Context, path string) ([]chunk.Record, error)
	SupportedFormats() []string
}

// NewReader picks a reader for path by extension.
func NewReader(path string) (Reader, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, r := range []Reader{&CSVReader{}, &XLSXReader{}, &JSONReader{}} {
		for _, f := range r.SupportedFormats() {
			if f == format {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("no reader for format: %s", format)
}

// fromRaw maps one raw export row to a Record. The export names the supplier
// column supplier_name and has no separate category column; the tender
// description doubles as the category. All values are trimmed.
func fromRaw(raw map[string]string) chunk.Record {
	description := strings.TrimSpace(raw["tender_description"])
	return chunk.Record{
		TenderNo:    strings.TrimSpace(raw["tender_no"]),
		Agency:      strings.TrimSpace(raw["agency"]),
		AwardDate:   strings.TrimSpace(raw["award_date"]),
		Supplier:    strings.TrimSpace(raw["supplier_name"]),
		AwardedAmt:  strings.TrimSpace(raw["awarded_amt"]),
		Category:    description,
		Description: description,
		Status:      strings.TrimSpace(raw["tender_detail_status"]),
		SourceID:    strings.TrimSpace(raw["_id"]),
	}
}

// truncate applies a row limit. A non-positive limit keeps everything.
func truncate(records []chunk.Record, limit int) []chunk.Record {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
