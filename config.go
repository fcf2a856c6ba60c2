package tendergraph

import (
	"os"
	"path/filepath"

	"github.com/kslau/tendergraph/extract"
)

// Config holds all configuration for the tendergraph pipeline.
type Config struct {
	// DBPath is the full path to the SQLite staging database file.
	// If empty, defaults to ~/.tendergraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "tendergraph". The file will be <DBName>.db inside the
	// storage directory (~/.tendergraph/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.tendergraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Source data
	SourceURL  string `json:"source_url" yaml:"source_url"`   // datastore search endpoint
	ResourceID string `json:"resource_id" yaml:"resource_id"` // dataset resource id
	CSVPath    string `json:"csv_path" yaml:"csv_path"`       // local CSV export, optional
	DataDir    string `json:"data_dir" yaml:"data_dir"`       // cache, chunk, and output files

	// Extraction oracle
	Oracle extract.OracleConfig `json:"oracle" yaml:"oracle"`

	// ConfidenceThreshold flags entity mentions scored below it.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// Bloat controls: per-record caps on free-text entity lists.
	MaxKeywords     int `json:"max_keywords" yaml:"max_keywords"`
	MaxRequirements int `json:"max_requirements" yaml:"max_requirements"`
}

// DefaultConfig returns a Config with sensible defaults. The staging database
// lives in ~/.tendergraph/tendergraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "tendergraph",
		StorageDir: "home",
		SourceURL:  "https://data.gov.sg/api/action/datastore_search",
		ResourceID: "d_acde1106003906a75c3fa052592f2fcb",
		CSVPath:    filepath.Join("data", "GovernmentProcurementviaGeBIZ.csv"),
		DataDir:    "data",
		Oracle: extract.OracleConfig{
			Provider:  "gliner",
			BaseURL:   "http://localhost:8000",
			Threshold: 0.3,
		},
		ConfidenceThreshold: 0.5,
		MaxKeywords:         10,
		MaxRequirements:     10,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "tendergraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".tendergraph")
		return filepath.Join(dir, name+".db")
	}
}

// CachePath is the raw-record JSON cache file location.
func (c *Config) CachePath() string {
	return filepath.Join(c.dataDir(), "raw", "records_raw.json")
}

// ChunksPath is the JSONL chunk file location.
func (c *Config) ChunksPath() string {
	return filepath.Join(c.dataDir(), "chunks", "chunks.jsonl")
}

// OutputPath is the reconciled JSONL output file location.
func (c *Config) OutputPath() string {
	return filepath.Join(c.dataDir(), "extracted", "extracted.jsonl")
}

func (c *Config) dataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return "data"
}
