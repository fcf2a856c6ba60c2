package chunk

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAssignIDPrimaryKey(t *testing.T) {
	rec := Record{TenderNo: "T1", AwardDate: "2020-01-01"}
	if got := AssignID(rec); got != "T1_2020-01-01" {
		t.Errorf("AssignID: got %q, want %q", got, "T1_2020-01-01")
	}

	// Surrounding whitespace is trimmed before key construction.
	rec = Record{TenderNo: "  T1 ", AwardDate: " 2020-01-01  "}
	if got := AssignID(rec); got != "T1_2020-01-01" {
		t.Errorf("AssignID with whitespace: got %q, want %q", got, "T1_2020-01-01")
	}
}

func TestAssignIDFallback(t *testing.T) {
	rec := Record{Agency: "MOH", Supplier: "Acme"}

	id := AssignID(rec)
	if !strings.HasPrefix(id, "chunk_") {
		t.Fatalf("fallback id %q missing chunk_ prefix", id)
	}
	if got := len(strings.TrimPrefix(id, "chunk_")); got != 16 {
		t.Errorf("fallback digest length: got %d, want 16", got)
	}

	// Deterministic across invocations.
	if again := AssignID(rec); again != id {
		t.Errorf("fallback id not stable: %q vs %q", id, again)
	}

	// A different record yields a different fallback id.
	other := AssignID(Record{Agency: "MOE", Supplier: "Acme"})
	if other == id {
		t.Errorf("distinct records produced identical fallback id %q", id)
	}
}

func TestAssignIDFallbackOrderInsensitive(t *testing.T) {
	// Two JSON lines with the same values but different key order must decode
	// to records with the same fallback id.
	a := `{"agency":"MOH","supplier":"Acme","tender_no":""}`
	b := `{"supplier":"Acme","tender_no":"","agency":"MOH"}`

	var ra, rb Record
	if err := json.Unmarshal([]byte(a), &ra); err != nil {
		t.Fatalf("unmarshal a: %v", err)
	}
	if err := json.Unmarshal([]byte(b), &rb); err != nil {
		t.Fatalf("unmarshal b: %v", err)
	}

	if ida, idb := AssignID(ra), AssignID(rb); ida != idb {
		t.Errorf("key order changed fallback id: %q vs %q", ida, idb)
	}
}

func TestRenderCard(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "full record",
			rec: Record{
				TenderNo: "T1", Agency: "MOH", AwardDate: "01/02/2021",
				Supplier: "Acme", AwardedAmt: "$500", Category: "IT",
				Description: "Supply of laptops", Status: "Awarded",
			},
			want: "Tender: T1\nAgency: MOH\nAward Date: 01/02/2021\nAwarded To: Acme\nAmount: $500\nCategory: IT\nDescription: Supply of laptops\nStatus: Awarded",
		},
		{
			name: "description equal to category is suppressed",
			rec: Record{
				TenderNo: "T2", Agency: "MOE", AwardDate: "2020-05-05",
				Supplier: "Beta", AwardedAmt: "100", Category: "IT",
				Description: "IT",
			},
			want: "Tender: T2\nAgency: MOE\nAward Date: 2020-05-05\nAwarded To: Beta\nAmount: 100\nCategory: IT",
		},
		{
			name: "missing fields render as N/A",
			rec:  Record{TenderNo: "T3"},
			want: "Tender: T3\nAgency: N/A\nAward Date: N/A\nAwarded To: N/A\nAmount: N/A\nCategory: N/A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderCard(tt.rec); got != tt.want {
				t.Errorf("RenderCard:\ngot  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestNewChunkLineShape(t *testing.T) {
	c := New(Record{TenderNo: "T1", Agency: "MOH", AwardDate: "2020-01-01", SourceID: "42"})

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("unmarshal chunk line: %v", err)
	}

	// Chunk lines are flat: id + text + the source fields at top level.
	for _, key := range []string{
		"chunk_id", "chunk_text", "tender_no", "agency", "award_date",
		"supplier", "awarded_amt", "category", "tender_description",
		"tender_detail_status", "_id",
	} {
		if _, ok := line[key]; !ok {
			t.Errorf("chunk line missing key %q", key)
		}
	}

	if line["chunk_id"] != "T1_2020-01-01" {
		t.Errorf("chunk_id: got %v", line["chunk_id"])
	}
}
