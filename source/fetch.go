package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kslau/tendergraph/chunk"
)

// Fetcher loads award records from the fastest available source: the local
// raw-JSON cache, then the CSV export, then the publishing portal's datastore
// API. Whatever it loads from CSV or the API is written to the cache so
// later runs skip the slow path.
type Fetcher struct {
	SourceURL  string // datastore search endpoint
	ResourceID string // dataset resource id
	BatchSize  int    // API page size
	CachePath  string // raw-JSON cache file
	CSVPath    string // local CSV export, optional

	client *http.Client
}

// FetchOptions controls one fetch.
type FetchOptions struct {
	Limit        int  // maximum records, non-positive for all
	ForceRefetch bool // skip the cache and reload from source
}

// NewFetcher creates a Fetcher with a bounded HTTP client.
func NewFetcher(sourceURL, resourceID, cachePath, csvPath string) *Fetcher {
	return &Fetcher{
		SourceURL:  sourceURL,
		ResourceID: resourceID,
		BatchSize:  100,
		CachePath:  cachePath,
		CSVPath:    csvPath,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch returns normalized records, consulting cache, CSV, then API in order.
func (f *Fetcher) Fetch(ctx context.Context, opts FetchOptions) ([]chunk.Record, error) {
	if !opts.ForceRefetch && f.CachePath != "" {
		if _, err := os.Stat(f.CachePath); err == nil {
			slog.Info("loading cached records", "path", f.CachePath)
			raw, err := readRawJSON(f.CachePath)
			if err != nil {
				return nil, err
			}
			return truncate(mapRaw(raw), opts.Limit), nil
		}
	}

	if f.CSVPath != "" {
		if _, err := os.Stat(f.CSVPath); err == nil {
			slog.Info("loading records from CSV", "path", f.CSVPath)
			return f.fromCSV(ctx, opts.Limit)
		}
	}

	slog.Info("fetching records from API", "url", f.SourceURL, "resource_id", f.ResourceID)
	return f.fromAPI(ctx, opts.Limit)
}

func (f *Fetcher) fromCSV(ctx context.Context, limit int) ([]chunk.Record, error) {
	raw, err := readRawCSV(ctx, f.CSVPath, limit)
	if err != nil {
		return nil, err
	}
	if f.CachePath != "" {
		if err := writeRawJSON(f.CachePath, raw); err != nil {
			return nil, err
		}
		slog.Info("cached records", "path", f.CachePath, "count", len(raw))
	}
	return mapRaw(raw), nil
}

// datastoreResponse is the paginated search response envelope.
type datastoreResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []map[string]any `json:"records"`
	} `json:"result"`
}

func (f *Fetcher) fromAPI(ctx context.Context, limit int) ([]chunk.Record, error) {
	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var raw []map[string]string
	offset := 0
	for {
		page, err := f.fetchPage(ctx, batchSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		raw = append(raw, page...)
		slog.Info("fetched records", "count", len(raw))

		if limit > 0 && len(raw) >= limit {
			raw = raw[:limit]
			break
		}
		offset += batchSize
	}

	if f.CachePath != "" {
		if err := writeRawJSON(f.CachePath, raw); err != nil {
			return nil, err
		}
		slog.Info("cached records", "path", f.CachePath, "count", len(raw))
	}
	return mapRaw(raw), nil
}

func (f *Fetcher) fetchPage(ctx context.Context, limit, offset int) ([]map[string]string, error) {
	params := url.Values{}
	params.Set("resource_id", f.ResourceID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, "GET", f.SourceURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	client := f.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading fetch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch error %d: %s", resp.StatusCode, string(body))
	}

	var envelope datastoreResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding fetch response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("fetch API reported failure: %s", string(body))
	}

	page := make([]map[string]string, 0, len(envelope.Result.Records))
	for _, rec := range envelope.Result.Records {
		row := make(map[string]string, len(rec))
		for k, v := range rec {
			switch val := v.(type) {
			case string:
				row[k] = val
			case float64:
				row[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case nil:
				row[k] = ""
			default:
				row[k] = fmt.Sprintf("%v", val)
			}
		}
		page = append(page, row)
	}
	return page, nil
}

// readRawCSV reads the CSV export as raw header-keyed rows, preserving the
// export's own column names for the cache.
func readRawCSV(ctx context.Context, path string, limit int) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	return decodeRawCSV(ctx, f, limit)
}

func mapRaw(raw []map[string]string) []chunk.Record {
	records := make([]chunk.Record, 0, len(raw))
	for _, row := range raw {
		records = append(records, fromRaw(row))
	}
	return records
}
