// Package chunk converts procurement-award records into compact "tender card"
// chunks with stable, reproducible identifiers.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Record is one flat procurement-award record. Absent source fields are empty
// strings; no field is required at this stage.
type Record struct {
	TenderNo    string `json:"tender_no"`
	Agency      string `json:"agency"`
	AwardDate   string `json:"award_date"`
	Supplier    string `json:"supplier"`
	AwardedAmt  string `json:"awarded_amt"`
	Category    string `json:"category"`
	Description string `json:"tender_description"`
	Status      string `json:"tender_detail_status"`
	SourceID    string `json:"_id"`
}

// Chunk is one record rendered to a stable id plus canonical card text, with
// the source fields preserved for downstream traceability. Chunks are built
// once and never mutated.
type Chunk struct {
	ID   string `json:"chunk_id"`
	Text string `json:"chunk_text"`
	Record
}

// AssignID derives a stable chunk identifier from a record.
//
// The primary key is tender_no + "_" + award_date (both trimmed). When either
// is empty the id falls back to a tagged SHA-256 prefix over the record
// serialized with sorted keys, so field insertion order cannot change the
// result. Identical records always yield identical ids.
func AssignID(rec Record) string {
	tenderNo := strings.TrimSpace(rec.TenderNo)
	awardDate := strings.TrimSpace(rec.AwardDate)

	if tenderNo != "" && awardDate != "" {
		return tenderNo + "_" + awardDate
	}

	// json.Marshal sorts map keys, which gives the deterministic
	// sorted-key serialization the fallback hash needs.
	data, _ := json.Marshal(map[string]string{
		"tender_no":            rec.TenderNo,
		"agency":               rec.Agency,
		"award_date":           rec.AwardDate,
		"supplier":             rec.Supplier,
		"awarded_amt":          rec.AwardedAmt,
		"category":             rec.Category,
		"tender_description":   rec.Description,
		"tender_detail_status": rec.Status,
		"_id":                  rec.SourceID,
	})
	digest := sha256.Sum256(data)
	return "chunk_" + hex.EncodeToString(digest[:])[:16]
}

// RenderCard builds the compact tender card text for a record. The rendering
// is deterministic: a fixed field order, line per field, with "N/A"
// placeholders for the unconditional lines. The card is the sole text handed
// to the extraction oracle.
func RenderCard(rec Record) string {
	lines := []string{
		"Tender: " + orNA(rec.TenderNo),
		"Agency: " + orNA(rec.Agency),
		"Award Date: " + orNA(rec.AwardDate),
		"Awarded To: " + orNA(rec.Supplier),
		"Amount: " + orNA(rec.AwardedAmt),
		"Category: " + orNA(rec.Category),
	}

	// Skip the description when it just repeats the category.
	if rec.Description != "" && rec.Description != rec.Category {
		lines = append(lines, "Description: "+rec.Description)
	}
	if rec.Status != "" {
		lines = append(lines, "Status: "+rec.Status)
	}

	return strings.Join(lines, "\n")
}

// New builds the chunk for a record: stable id, card text, preserved fields.
func New(rec Record) Chunk {
	return Chunk{
		ID:     AssignID(rec),
		Text:   RenderCard(rec),
		Record: rec,
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
