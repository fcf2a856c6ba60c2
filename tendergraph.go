// Package tendergraph turns procurement-award records into
// knowledge-graph-ready entities and relations. Records become compact
// "tender card" chunks with stable ids, an extraction oracle proposes
// entities and relation pairs from each card, and a reconciler merges those
// proposals with the authoritative structured fields before normalization
// and output.
package tendergraph

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kslau/tendergraph/chunk"
	"github.com/kslau/tendergraph/extract"
	"github.com/kslau/tendergraph/normalize"
	"github.com/kslau/tendergraph/schema"
	"github.com/kslau/tendergraph/source"
	"github.com/kslau/tendergraph/store"
)

// Pipeline is the main entry point for the record-to-graph pipeline.
type Pipeline interface {
	// Fetch loads award records from cache, CSV, or the upstream API.
	Fetch(ctx context.Context, opts ...FetchOption) ([]chunk.Record, error)

	// BuildChunks converts records to chunks and writes the JSONL chunk file.
	BuildChunks(records []chunk.Record) ([]chunk.Chunk, error)

	// Process runs one chunk through extraction, reconciliation, and
	// normalization.
	Process(ctx context.Context, c chunk.Chunk) (extract.ReconciledRecord, error)

	// ExtractFile processes a JSONL chunk file line by line, writing one
	// reconciled JSON line per chunk and importing each into the store.
	// Malformed lines and failed extractions are logged and skipped; the
	// batch never aborts on a single record.
	ExtractFile(ctx context.Context, inPath, outPath string) (*Summary, error)

	// Run executes the full sequence: fetch, chunk, extract, import.
	Run(ctx context.Context, opts ...FetchOption) (*Summary, error)

	// Store returns the underlying staging store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the pipeline.
	Close() error
}

// Summary reports the outcome of one batch run.
type Summary struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Warned    int    `json:"warned"`
	Skipped   int    `json:"skipped"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// FetchOption configures fetching behavior.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	limit        int
	forceRefetch bool
}

// WithLimit caps the number of records fetched and processed.
func WithLimit(n int) FetchOption {
	return func(o *fetchOptions) { o.limit = n }
}

// WithForceRefetch skips the cache and reloads from CSV or the API.
func WithForceRefetch() FetchOption {
	return func(o *fetchOptions) { o.forceRefetch = true }
}

// pipeline is the concrete implementation of Pipeline.
type pipeline struct {
	cfg        Config
	sch        *schema.Schema
	store      *store.Store
	oracle     extract.Oracle
	reconciler *extract.Reconciler
	fetcher    *source.Fetcher
}

// New creates a pipeline with the given configuration.
func New(cfg Config) (Pipeline, error) {
	return newWithOracle(cfg, nil)
}

// NewWithOracle creates a pipeline with an explicit oracle, bypassing the
// provider factory. Tests and offline runs use this with a static oracle.
func NewWithOracle(cfg Config, oracle extract.Oracle) (Pipeline, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: nil oracle", ErrInvalidConfig)
	}
	return newWithOracle(cfg, oracle)
}

func newWithOracle(cfg Config, oracle extract.Oracle) (Pipeline, error) {
	sch, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}

	if oracle == nil {
		oracle, err = extract.NewOracle(cfg.Oracle, sch)
		if err != nil {
			return nil, fmt.Errorf("creating oracle: %w", err)
		}
	}

	// Resolve database path from config (DBPath > DBName+StorageDir > default)
	s, err := store.New(cfg.resolveDBPath(), sch)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &pipeline{
		cfg:        cfg,
		sch:        sch,
		store:      s,
		oracle:     oracle,
		reconciler: extract.NewReconciler(sch, cfg.ConfidenceThreshold),
		fetcher:    source.NewFetcher(cfg.SourceURL, cfg.ResourceID, cfg.CachePath(), cfg.CSVPath),
	}, nil
}

func (p *pipeline) Store() *store.Store { return p.store }

func (p *pipeline) Close() error { return p.store.Close() }

// Fetch loads award records from the fastest available source.
func (p *pipeline) Fetch(ctx context.Context, opts ...FetchOption) ([]chunk.Record, error) {
	options := &fetchOptions{}
	for _, o := range opts {
		o(options)
	}

	records, err := p.fetcher.Fetch(ctx, source.FetchOptions{
		Limit:        options.limit,
		ForceRefetch: options.forceRefetch,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// BuildChunks converts records to chunks and persists the JSONL chunk file.
func (p *pipeline) BuildChunks(records []chunk.Record) ([]chunk.Chunk, error) {
	chunks := make([]chunk.Chunk, 0, len(records))
	for _, rec := range records {
		chunks = append(chunks, chunk.New(rec))
	}

	if err := source.WriteChunks(p.cfg.ChunksPath(), chunks); err != nil {
		return nil, err
	}
	slog.Info("built chunks", "count", len(chunks), "path", p.cfg.ChunksPath())
	return chunks, nil
}

// Process runs one chunk through the oracle, reconciliation, and
// normalization. An empty card skips the oracle entirely.
func (p *pipeline) Process(ctx context.Context, c chunk.Chunk) (extract.ReconciledRecord, error) {
	if strings.TrimSpace(c.Text) == "" {
		rec := p.reconciler.Empty(c)
		p.normalizeRecord(&rec)
		return rec, nil
	}

	raw, err := p.oracle.Extract(ctx, c.Text)
	if err != nil {
		return extract.ReconciledRecord{}, fmt.Errorf("extracting chunk %s: %w", c.ID, err)
	}

	rec := p.reconciler.Reconcile(c, raw)
	p.normalizeRecord(&rec)
	return rec, nil
}

// normalizeRecord applies entity-list normalization in place and derives the
// normalized money and date fields. The raw source fields stay untouched.
func (p *pipeline) normalizeRecord(rec *extract.ReconciledRecord) {
	normalize.Entities(rec.Entities, p.cfg.MaxKeywords, p.cfg.MaxRequirements)

	if amt, ok := normalize.Money(rec.AwardedAmt); ok {
		rec.AwardedAmtNormalized = &amt
	}
	if date, ok := normalize.Date(rec.AwardDate); ok {
		rec.AwardDateNormalized = date
	}
}

// ExtractFile processes a JSONL chunk file line by line.
func (p *pipeline) ExtractFile(ctx context.Context, inPath, outPath string) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	slog.Info("starting extraction run", "run_id", runID, "input", inPath, "output", outPath)

	if err := p.store.BeginRun(ctx, runID); err != nil {
		return nil, err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	summary := &Summary{RunID: runID}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var c chunk.Chunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			slog.Warn("skipping malformed chunk line", "line", lineNo, "error", err)
			summary.Skipped++
			continue
		}

		rec, err := p.Process(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("skipping chunk after extraction failure",
				"chunk_id", c.ID, "line", lineNo, "error", err)
			summary.Skipped++
			continue
		}

		// The record is written and imported only once fully built; a
		// failure above never leaves a partial line behind.
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("writing record %s: %w", rec.ChunkID, err)
		}
		if err := p.store.ImportRecord(ctx, rec, runID); err != nil {
			return nil, fmt.Errorf("importing record %s: %w", rec.ChunkID, err)
		}

		summary.Processed++
		if flagged(rec.QualityFlags) {
			summary.Warned++
		}
		if summary.Processed%100 == 0 {
			slog.Info("extraction progress", "processed", summary.Processed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flushing output: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing output: %w", err)
	}

	summary.ElapsedMs = time.Since(start).Milliseconds()
	if err := p.store.FinishRun(ctx, runID, summary.Processed, summary.Warned, summary.Skipped); err != nil {
		return nil, err
	}

	slog.Info("extraction run finished",
		"run_id", runID,
		"processed", summary.Processed,
		"warned", summary.Warned,
		"skipped", summary.Skipped,
		"elapsed_ms", summary.ElapsedMs)
	return summary, nil
}

// Run executes the full pipeline: fetch, chunk, extract, import.
func (p *pipeline) Run(ctx context.Context, opts ...FetchOption) (*Summary, error) {
	records, err := p.Fetch(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	slog.Info("fetched records", "count", len(records))

	if _, err := p.BuildChunks(records); err != nil {
		return nil, fmt.Errorf("chunk stage: %w", err)
	}

	summary, err := p.ExtractFile(ctx, p.cfg.ChunksPath(), p.cfg.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("extract stage: %w", err)
	}
	return summary, nil
}

// flagged reports whether a record's quality flags warrant a warning count.
func flagged(f extract.QualityFlags) bool {
	return f.EmptyChunk || !f.HasEntities || len(f.LowConfidence) > 0 || len(f.UnknownLabels) > 0
}
