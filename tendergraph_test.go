//go:build cgo

package tendergraph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kslau/tendergraph/chunk"
	"github.com/kslau/tendergraph/extract"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.DataDir = dir
	cfg.CSVPath = ""
	return cfg
}

func newTestPipeline(t *testing.T, fn func(cardText string) *extract.RawResult) Pipeline {
	t.Helper()
	p, err := NewWithOracle(testConfig(t), extract.NewStatic(fn))
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProcessEndToEnd(t *testing.T) {
	p := newTestPipeline(t, func(cardText string) *extract.RawResult {
		return &extract.RawResult{
			Entities: map[string][]extract.Mention{
				"Keyword":     {{Text: "Cloud Migration"}, {Text: "the"}},
				"Requirement": {{Text: "ISO 9001 Certification"}},
			},
			Relations: map[string][]extract.RawPair{
				"HAS_REQUIREMENT": {
					{{Text: "SomeOtherSpan"}, {Text: "ISO 9001 certification"}},
				},
			},
		}
	})

	c := chunk.New(chunk.Record{
		TenderNo:   "T1",
		Agency:     "MOH",
		AwardDate:  "01/02/2021",
		Supplier:   "Acme Pte Ltd",
		AwardedAmt: "$1,234.56",
		Category:   "IT services",
	})
	if c.ID != "T1_01/02/2021" {
		t.Fatalf("chunk id: got %q", c.ID)
	}

	rec, err := p.Process(context.Background(), c)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Requirement pair re-anchored to the tender.
	reqs := rec.Relations["HAS_REQUIREMENT"]
	if len(reqs) != 1 || reqs[0][0] != "T1" {
		t.Errorf("HAS_REQUIREMENT: got %v", reqs)
	}

	// Keyword entities normalized: lowercased, stopword dropped.
	keywords := rec.Entities["Keyword"]
	if len(keywords) != 1 || keywords[0] != "cloud migration" {
		t.Errorf("keywords: got %v", keywords)
	}
	requirements := rec.Entities["Requirement"]
	if len(requirements) != 1 || requirements[0] != "iso 9001 certification" {
		t.Errorf("requirements: got %v", requirements)
	}

	// Derived fields set, raw fields untouched.
	if rec.AwardedAmtNormalized == nil || *rec.AwardedAmtNormalized != 1234.56 {
		t.Errorf("normalized amount: got %v", rec.AwardedAmtNormalized)
	}
	if rec.AwardedAmt != "$1,234.56" {
		t.Errorf("raw amount changed: got %q", rec.AwardedAmt)
	}
	if rec.AwardDateNormalized != "2021-02-01" {
		t.Errorf("normalized date: got %q", rec.AwardDateNormalized)
	}
	if rec.AwardDate != "01/02/2021" {
		t.Errorf("raw date changed: got %q", rec.AwardDate)
	}
}

func TestProcessEmptyCard(t *testing.T) {
	p := newTestPipeline(t, func(string) *extract.RawResult {
		t.Error("oracle must not be called for an empty card")
		return nil
	})

	rec, err := p.Process(context.Background(), chunk.Chunk{ID: "x", Text: "   "})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !rec.QualityFlags.EmptyChunk {
		t.Error("empty_chunk flag not set")
	}
}

func TestExtractFileSkipsBadLines(t *testing.T) {
	p := newTestPipeline(t, func(string) *extract.RawResult {
		return &extract.RawResult{
			Entities: map[string][]extract.Mention{"Keyword": {{Text: "services"}}},
		}
	})

	good1, _ := json.Marshal(chunk.New(chunk.Record{TenderNo: "T1", AwardDate: "01/02/2021", Agency: "MOH"}))
	good2, _ := json.Marshal(chunk.New(chunk.Record{TenderNo: "T2", AwardDate: "02/02/2021", Agency: "MOE"}))
	lines := []string{
		string(good1),
		"{not valid json",
		"",
		string(good2),
	}

	dir := t.TempDir()
	inPath := filepath.Join(dir, "chunks.jsonl")
	outPath := filepath.Join(dir, "extracted.jsonl")
	if err := os.WriteFile(inPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := p.ExtractFile(context.Background(), inPath, outPath)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("processed: got %d, want 2", summary.Processed)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped: got %d, want 1", summary.Skipped)
	}
	if summary.RunID == "" {
		t.Error("run id not assigned")
	}

	// Every output line is complete and parseable.
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	outLines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(outLines) != 2 {
		t.Fatalf("output lines: got %d, want 2", len(outLines))
	}
	for i, line := range outLines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("output line %d not valid JSON: %v", i+1, err)
		}
		if rec["chunk_id"] == "" {
			t.Errorf("output line %d missing chunk_id", i+1)
		}
	}

	// The run is recorded in the store with matching counts.
	runs, err := p.Store().ListRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Processed != 2 || runs[0].Skipped != 1 {
		t.Errorf("stored run: got %+v", runs)
	}
}

func TestExtractFileOracleFailureSkipsRecord(t *testing.T) {
	p, err := NewWithOracle(testConfig(t), &failingOracle{})
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	good, _ := json.Marshal(chunk.New(chunk.Record{TenderNo: "T1", AwardDate: "01/02/2021"}))
	dir := t.TempDir()
	inPath := filepath.Join(dir, "chunks.jsonl")
	if err := os.WriteFile(inPath, append(good, '\n'), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := p.ExtractFile(context.Background(), inPath, filepath.Join(dir, "out.jsonl"))
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if summary.Processed != 0 || summary.Skipped != 1 {
		t.Errorf("summary: got %+v", summary)
	}
}

type failingOracle struct{}

func (o *failingOracle) Extract(context.Context, string) (*extract.RawResult, error) {
	return nil, ErrOracleUnavailable
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)

	csvPath := filepath.Join(cfg.DataDir, "records.csv")
	csvData := "tender_no,agency,award_date,supplier_name,awarded_amt,tender_description\n" +
		"T1,MOH,01/02/2021,Acme,500.00,IT services\n" +
		"T2,MOE,02/02/2021,Beta,800.00,Cleaning\n"
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.CSVPath = csvPath

	p, err := NewWithOracle(cfg, extract.NewStatic(nil))
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("processed: got %d, want 2", summary.Processed)
	}

	stats, err := p.Store().DBStats(context.Background())
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Chunks != 2 || stats.Records != 2 {
		t.Errorf("stats: got %+v", stats)
	}
	if stats.Entities == 0 || stats.Relations == 0 {
		t.Errorf("graph staging empty: %+v", stats)
	}

	// Intermediate files are written where configured.
	if _, err := os.Stat(cfg.ChunksPath()); err != nil {
		t.Errorf("chunk file missing: %v", err)
	}
	if _, err := os.Stat(cfg.OutputPath()); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestResolveDBPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want func(string) bool
	}{
		{
			name: "explicit path wins",
			cfg:  Config{DBPath: "/tmp/custom.db", DBName: "other"},
			want: func(p string) bool { return p == "/tmp/custom.db" },
		},
		{
			name: "local storage",
			cfg:  Config{DBName: "staging", StorageDir: "local"},
			want: func(p string) bool { return p == "staging.db" },
		},
		{
			name: "home default",
			cfg:  Config{},
			want: func(p string) bool {
				return strings.Contains(p, ".tendergraph") && strings.HasSuffix(p, "tendergraph.db")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.resolveDBPath(); !tt.want(got) {
				t.Errorf("resolveDBPath: got %q", got)
			}
		})
	}
}
