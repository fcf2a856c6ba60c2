package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kslau/tendergraph/chunk"
)

// JSONReader reads a cached raw JSON array of export records, as written by
// the Fetcher. Values are kept as their string forms; the export's numeric
// _id column round-trips without a float conversion.
type JSONReader struct {
	Limit int
}

func (r *JSONReader) SupportedFormats() []string { return []string{"json"} }

func (r *JSONReader) Read(ctx context.Context, path string) ([]chunk.Record, error) {
	raw, err := readRawJSON(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]chunk.Record, 0, len(raw))
	for _, row := range raw {
		records = append(records, fromRaw(row))
	}
	return truncate(records, r.Limit), nil
}

// readRawJSON decodes a JSON array of objects into string-valued rows.
func readRawJSON(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening JSON cache: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding JSON cache: %w", err)
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(row))
		for k, v := range row {
			switch val := v.(type) {
			case string:
				m[k] = val
			case json.Number:
				m[k] = val.String()
			case nil:
				m[k] = ""
			default:
				m[k] = fmt.Sprintf("%v", val)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// writeRawJSON writes raw rows as an indented JSON array, creating parent
// directories as needed.
func writeRawJSON(path string, rows []map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing JSON cache: %w", err)
	}
	return nil
}

// ReadChunks reads a JSONL chunk file, one chunk per line. Blank lines are
// skipped; a malformed line is an error here (chunk files are produced by
// this pipeline, so corruption means something is wrong).
func ReadChunks(path string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	defer f.Close()

	var chunks []chunk.Chunk
	scanner := bufio.NewScanner(f)
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
			return nil, fmt.Errorf("chunk file line %d: %w", lineNo, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk file: %w", err)
	}
	return chunks, nil
}

// WriteChunks writes chunks as JSONL, one chunk per line.
func WriteChunks(path string, chunks []chunk.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating chunk dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			f.Close()
			return fmt.Errorf("writing chunk %s: %w", c.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing chunk file: %w", err)
	}
	return f.Close()
}
