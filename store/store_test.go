//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kslau/tendergraph/chunk"
	"github.com/kslau/tendergraph/extract"
	"github.com/kslau/tendergraph/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), schema.MustNew())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord() extract.ReconciledRecord {
	c := chunk.New(chunk.Record{
		TenderNo:  "T1",
		Agency:    "MOH",
		AwardDate: "01/02/2021",
		Supplier:  "Acme",
		Category:  "IT services",
	})
	r := extract.NewReconciler(schema.MustNew(), 0)
	return r.Reconcile(c, &extract.RawResult{
		Entities: map[string][]extract.Mention{
			"Keyword": {{Text: "cloud"}},
		},
		Relations: map[string][]extract.RawPair{
			"HAS_REQUIREMENT": {{{Text: "T1"}, {Text: "ISO 9001"}}},
		},
	})
}

func TestChunkUpsertRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := chunk.New(chunk.Record{TenderNo: "T1", AwardDate: "01/02/2021", Agency: "MOH"})
	if err := s.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("UpsertChunk: %v", err)
	}

	got, err := s.GetChunk(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if got.Agency != "MOH" || got.Text != c.Text {
		t.Errorf("round trip: got %+v", got)
	}

	// Updating under the same id must not create a second row.
	c.Record.Agency = "MOE"
	c.Text = chunk.RenderCard(c.Record)
	if err := s.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("second UpsertChunk: %v", err)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Chunks != 1 {
		t.Errorf("chunk count after re-upsert: got %d, want 1", stats.Chunks)
	}

	got, err = s.GetChunk(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChunk after update: %v", err)
	}
	if got.Agency != "MOE" {
		t.Errorf("agency after update: got %q", got.Agency)
	}
}

func TestImportRecordMaterializesGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord()
	if err := s.ImportRecord(ctx, rec, "run-1"); err != nil {
		t.Fatalf("ImportRecord: %v", err)
	}

	entities, err := s.ListEntities(ctx, "Tender")
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "T1" {
		t.Errorf("tender entities: got %+v", entities)
	}

	relations, err := s.RelationsForChunk(ctx, rec.ChunkID)
	if err != nil {
		t.Fatalf("RelationsForChunk: %v", err)
	}

	byType := make(map[string][2]string)
	for _, r := range relations {
		byType[r.RelationType] = [2]string{r.Source, r.Target}
	}
	if got := byType["PUBLISHED_BY"]; got != [2]string{"T1", "MOH"} {
		t.Errorf("PUBLISHED_BY: got %v", got)
	}
	if got := byType["AWARDED_TO"]; got != [2]string{"T1", "Acme"} {
		t.Errorf("AWARDED_TO: got %v", got)
	}
	if got := byType["HAS_REQUIREMENT"]; got != [2]string{"T1", "ISO 9001"} {
		t.Errorf("HAS_REQUIREMENT: got %v", got)
	}

	// Every entity in the record gets a MENTIONS edge back to the chunk.
	chunkIDs, err := s.MentionedIn(ctx, "cloud", "Keyword")
	if err != nil {
		t.Fatalf("MentionedIn: %v", err)
	}
	if len(chunkIDs) != 1 || chunkIDs[0] != rec.ChunkID {
		t.Errorf("mention chunks: got %v", chunkIDs)
	}
}

func TestImportRecordIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord()
	for i := 0; i < 3; i++ {
		if err := s.ImportRecord(ctx, rec, "run-1"); err != nil {
			t.Fatalf("ImportRecord #%d: %v", i+1, err)
		}
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Chunks != 1 || stats.Records != 1 {
		t.Errorf("chunks/records after re-import: got %d/%d, want 1/1", stats.Chunks, stats.Records)
	}

	relations, err := s.RelationsForChunk(ctx, rec.ChunkID)
	if err != nil {
		t.Fatalf("RelationsForChunk: %v", err)
	}
	seen := make(map[string]int)
	for _, r := range relations {
		seen[r.RelationType]++
	}
	for relType, n := range seen {
		if n != 1 {
			t.Errorf("%s relation duplicated %d times", relType, n)
		}
	}
}

func TestSearchCards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []chunk.Record{
		{TenderNo: "T1", AwardDate: "01/02/2021", Category: "Cleaning services for schools"},
		{TenderNo: "T2", AwardDate: "02/02/2021", Category: "Provision of cloud infrastructure"},
	}
	for _, rec := range records {
		if err := s.UpsertChunk(ctx, chunk.New(rec)); err != nil {
			t.Fatalf("UpsertChunk: %v", err)
		}
	}

	matches, err := s.SearchCards(ctx, "cloud", 10)
	if err != nil {
		t.Fatalf("SearchCards: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("match count: got %d, want 1", len(matches))
	}
	if matches[0].ChunkID != "T2_02/02/2021" {
		t.Errorf("match chunk: got %q", matches[0].ChunkID)
	}
}

func TestRunTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run-abc"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := s.FinishRun(ctx, "run-abc", 10, 2, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("run count: got %d, want 1", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-abc" || r.Processed != 10 || r.Warned != 2 || r.Skipped != 1 {
		t.Errorf("run summary: got %+v", r)
	}
	if r.FinishedAt == "" {
		t.Error("finished_at not recorded")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// New already ran migrations; running again must be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var version int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version: got %d, want 2", version)
	}
}
