// Package store persists the pipeline's staging data in SQLite: tender card
// chunks, reconciled output records, the entity/relation graph staging
// tables, and batch run summaries. All writes are keyed on the stable chunk
// id, so importing the same batch twice leaves the database unchanged apart
// from timestamps.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kslau/tendergraph/chunk"
	"github.com/kslau/tendergraph/extract"
	"github.com/kslau/tendergraph/schema"
)

// Entity represents a row in the entities table.
type Entity struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
}

// Relation represents a row in the relations table, resolved to names.
type Relation struct {
	ID           int64  `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relation_type"`
	ChunkID      string `json:"chunk_id"`
}

// RunSummary represents a row in the runs table.
type RunSummary struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Processed  int    `json:"processed"`
	Warned     int    `json:"warned"`
	Skipped    int    `json:"skipped"`
}

// CardMatch is one full-text search hit over card text.
type CardMatch struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"chunk_text"`
	Score   float64 `json:"score"`
}

// Store wraps the SQLite database for all tendergraph persistence.
type Store struct {
	db  *sql.DB
	sch *schema.Schema
}

// New opens (or creates) a SQLite database at the given path and initialises
// the schema including the FTS5 virtual table.
func New(dbPath string, sch *schema.Schema) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, sch: sch}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Chunk operations ---

// UpsertChunk inserts or updates a chunk row keyed on its stable id.
func (s *Store) UpsertChunk(ctx context.Context, c chunk.Chunk) error {
	return s.upsertChunk(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertChunk(ctx context.Context, db execer, c chunk.Chunk) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chunks (chunk_id, chunk_text, tender_no, agency, award_date,
			supplier, awarded_amt, category, tender_description, tender_detail_status, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			chunk_text = excluded.chunk_text,
			tender_no = excluded.tender_no,
			agency = excluded.agency,
			award_date = excluded.award_date,
			supplier = excluded.supplier,
			awarded_amt = excluded.awarded_amt,
			category = excluded.category,
			tender_description = excluded.tender_description,
			tender_detail_status = excluded.tender_detail_status,
			source_id = excluded.source_id,
			updated_at = CURRENT_TIMESTAMP
	`, c.ID, c.Text, c.TenderNo, c.Agency, c.AwardDate,
		c.Supplier, c.AwardedAmt, c.Category, c.Description, c.Status, c.SourceID)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
	}
	return nil
}

// GetChunk retrieves a chunk by its stable id.
func (s *Store) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	c := &chunk.Chunk{}
	err := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, chunk_text, tender_no, agency, award_date,
			supplier, awarded_amt, category, tender_description, tender_detail_status, source_id
		FROM chunks WHERE chunk_id = ?
	`, id).Scan(&c.ID, &c.Text, &c.TenderNo, &c.Agency, &c.AwardDate,
		&c.Supplier, &c.AwardedAmt, &c.Category, &c.Description, &c.Status, &c.SourceID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SearchCards runs a full-text search over card text.
func (s *Store) SearchCards(ctx context.Context, query string, limit int) ([]CardMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.chunk_text, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching cards: %w", err)
	}
	defer rows.Close()

	var matches []CardMatch
	for rows.Next() {
		var m CardMatch
		if err := rows.Scan(&m.ChunkID, &m.Text, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- Record import ---

// ImportRecord stores one reconciled record and materializes its graph
// staging rows: entities, typed relations, and MENTIONS edges from the chunk
// to every entity seen in it. The whole import is one transaction; a failure
// leaves no partial rows.
func (s *Store) ImportRecord(ctx context.Context, rec extract.ReconciledRecord, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	c := chunk.Chunk{ID: rec.ChunkID, Text: rec.ChunkText, Record: rec.Record}
	if err := s.upsertChunk(ctx, tx, c); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ChunkID, err)
	}

	var amt any
	if rec.AwardedAmtNormalized != nil {
		amt = *rec.AwardedAmtNormalized
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (chunk_id, record, has_entities, has_relations, empty_chunk,
			awarded_amt_normalized, award_date_normalized, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			record = excluded.record,
			has_entities = excluded.has_entities,
			has_relations = excluded.has_relations,
			empty_chunk = excluded.empty_chunk,
			awarded_amt_normalized = excluded.awarded_amt_normalized,
			award_date_normalized = excluded.award_date_normalized,
			run_id = excluded.run_id,
			updated_at = CURRENT_TIMESTAMP
	`, rec.ChunkID, string(data), rec.QualityFlags.HasEntities, rec.QualityFlags.HasRelations,
		rec.QualityFlags.EmptyChunk, amt, rec.AwardDateNormalized, runID); err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ChunkID, err)
	}

	// Entities, plus MENTIONS edges for provenance.
	entityIDs := make(map[schema.EntityType]map[string]int64)
	for entityType, names := range rec.Entities {
		byName := make(map[string]int64, len(names))
		for _, name := range names {
			id, err := upsertEntity(ctx, tx, name, string(entityType))
			if err != nil {
				return err
			}
			byName[name] = id

			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO mentions (chunk_id, entity_id) VALUES (?, ?)
			`, rec.ChunkID, id); err != nil {
				return fmt.Errorf("inserting mention: %w", err)
			}
		}
		entityIDs[entityType] = byName
	}

	// Typed relations. Endpoint entities outside the record's entity lists
	// (possible for keyword pairs) are created on demand.
	for relType, pairs := range rec.Relations {
		def, ok := s.sch.RelationDefinition(relType)
		if !ok {
			continue
		}
		for _, pair := range pairs {
			sourceID, err := resolveEntity(ctx, tx, entityIDs, pair[0], def.Source)
			if err != nil {
				return err
			}
			targetID, err := resolveEntity(ctx, tx, entityIDs, pair[1], def.Target)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relations (source_entity_id, target_entity_id, relation_type, chunk_id)
				VALUES (?, ?, ?, ?)
			`, sourceID, targetID, string(relType), rec.ChunkID); err != nil {
				return fmt.Errorf("inserting relation %s: %w", relType, err)
			}
		}
	}

	return tx.Commit()
}

func upsertEntity(ctx context.Context, tx *sql.Tx, name, entityType string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO entities (name, entity_type) VALUES (?, ?)
	`, name, entityType); err != nil {
		return 0, fmt.Errorf("upserting entity %s/%s: %w", entityType, name, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE name = ? AND entity_type = ?",
		name, entityType).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolving entity %s/%s: %w", entityType, name, err)
	}
	return id, nil
}

func resolveEntity(ctx context.Context, tx *sql.Tx, known map[schema.EntityType]map[string]int64, name string, entityType schema.EntityType) (int64, error) {
	if id, ok := known[entityType][name]; ok {
		return id, nil
	}
	return upsertEntity(ctx, tx, name, string(entityType))
}

// --- Graph queries ---

// ListEntities returns entities, optionally filtered by type.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]Entity, error) {
	query := "SELECT id, name, entity_type FROM entities ORDER BY entity_type, name"
	args := []any{}
	if entityType != "" {
		query = "SELECT id, name, entity_type FROM entities WHERE entity_type = ? ORDER BY name"
		args = append(args, entityType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// RelationsForChunk returns the typed relations staged from one chunk,
// resolved to entity names.
func (s *Store) RelationsForChunk(ctx context.Context, chunkID string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, src.name, tgt.name, r.relation_type, r.chunk_id
		FROM relations r
		JOIN entities src ON src.id = r.source_entity_id
		JOIN entities tgt ON tgt.id = r.target_entity_id
		WHERE r.chunk_id = ?
		ORDER BY r.id
	`, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.RelationType, &r.ChunkID); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// MentionedIn returns the ids of chunks that mention the named entity.
func (s *Store) MentionedIn(ctx context.Context, name, entityType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.chunk_id FROM mentions m
		JOIN entities e ON e.id = m.entity_id
		WHERE e.name = ? AND e.entity_type = ?
		ORDER BY m.chunk_id
	`, name, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Run tracking ---

// BeginRun records the start of a batch run.
func (s *Store) BeginRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id) VALUES (?)", runID)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun records the end of a batch run with its summary counts.
func (s *Store) FinishRun(ctx context.Context, runID string, processed, warned, skipped int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = CURRENT_TIMESTAMP,
			processed = ?, warned = ?, skipped = ?
		WHERE run_id = ?
	`, processed, warned, skipped, runID)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// ListRuns returns run summaries, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, COALESCE(finished_at, ''), processed, warned, skipped
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Warned, &r.Skipped); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Stats ---

// DBStats holds counts of key database objects.
type DBStats struct {
	Chunks    int `json:"chunks"`
	Records   int `json:"records"`
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
	Mentions  int `json:"mentions"`
	Runs      int `json:"runs"`
}

// DBStats returns counts of chunks, records, entities, relations, mentions, and runs.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM records", &stats.Records},
		{"SELECT COUNT(*) FROM entities", &stats.Entities},
		{"SELECT COUNT(*) FROM relations", &stats.Relations},
		{"SELECT COUNT(*) FROM mentions", &stats.Mentions},
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}
