package store

// schemaSQL is the DDL for all tables. Chunks are keyed by their stable
// chunk id so re-running a batch updates rows in place instead of
// duplicating them.
const schemaSQL = `
-- Chunk registry: one row per tender card, keyed by the stable chunk id
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    chunk_text TEXT NOT NULL,
    tender_no TEXT,
    agency TEXT,
    award_date TEXT,
    supplier TEXT,
    awarded_amt TEXT,
    category TEXT,
    tender_description TEXT,
    tender_detail_status TEXT,
    source_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Reconciled output records, one per chunk, stored as the emitted JSON line
CREATE TABLE IF NOT EXISTS records (
    chunk_id TEXT PRIMARY KEY REFERENCES chunks(chunk_id) ON DELETE CASCADE,
    record JSON NOT NULL,
    has_entities INTEGER NOT NULL DEFAULT 0,
    has_relations INTEGER NOT NULL DEFAULT 0,
    empty_chunk INTEGER NOT NULL DEFAULT 0,
    awarded_amt_normalized REAL,
    award_date_normalized TEXT,
    run_id TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search over card text via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    chunk_text,
    content='chunks',
    tokenize='porter unicode61'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, chunk_text) VALUES (new.rowid, new.chunk_text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, chunk_text) VALUES ('delete', old.rowid, old.chunk_text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, chunk_text) VALUES ('delete', old.rowid, old.chunk_text);
    INSERT INTO chunks_fts(rowid, chunk_text) VALUES (new.rowid, new.chunk_text);
END;

-- Graph staging: entities
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    UNIQUE(name, entity_type)
);

-- Graph staging: typed relations between entities, with chunk provenance
CREATE TABLE IF NOT EXISTS relations (
    id INTEGER PRIMARY KEY,
    source_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    chunk_id TEXT REFERENCES chunks(chunk_id) ON DELETE CASCADE,
    UNIQUE(source_entity_id, target_entity_id, relation_type, chunk_id)
);

-- MENTIONS edges: which chunk a given entity was seen in
CREATE TABLE IF NOT EXISTS mentions (
    chunk_id TEXT NOT NULL REFERENCES chunks(chunk_id) ON DELETE CASCADE,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (chunk_id, entity_id)
);

-- Batch run summaries
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    processed INTEGER NOT NULL DEFAULT 0,
    warned INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chunks_tender ON chunks(tender_no);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_chunk ON relations(chunk_id);
CREATE INDEX IF NOT EXISTS idx_mentions_entity ON mentions(entity_id);
CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
`
