// Command pipeline drives the tendergraph record-to-graph pipeline.
//
// Usage:
//
//	go run -tags sqlite_fts5 ./cmd/pipeline fetch --limit 500
//	go run -tags sqlite_fts5 ./cmd/pipeline chunk --limit 500
//	go run -tags sqlite_fts5 ./cmd/pipeline extract
//	go run -tags sqlite_fts5 ./cmd/pipeline run --limit 500
//	go run -tags sqlite_fts5 ./cmd/pipeline stats
//	go run -tags sqlite_fts5 ./cmd/pipeline search --query "cloud services"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kslau/tendergraph"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Optional .env for local runs; absence is not an error.
	_ = godotenv.Load()

	flags, err := parseFlags(args)
	if err != nil {
		slog.Error("parsing flags", "error", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	applyEnvOverrides(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, command, cfg, flags); err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	limit      int
	force      bool
	query      string
}

// parseFlags handles the small shared flag set by hand so every subcommand
// accepts the same options without one flag.FlagSet per command.
func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if eq := strings.IndexByte(arg, '='); eq >= 0 {
				return arg[eq+1:], nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", arg)
			}
			return args[i], nil
		}

		name := arg
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}

		switch name {
		case "--config", "-config":
			v, err := value()
			if err != nil {
				return f, err
			}
			f.configPath = v
		case "--limit", "-limit":
			v, err := value()
			if err != nil {
				return f, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, fmt.Errorf("invalid --limit: %w", err)
			}
			f.limit = n
		case "--query", "-query":
			v, err := value()
			if err != nil {
				return f, err
			}
			f.query = v
		case "--force", "-force":
			f.force = true
		default:
			return f, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return f, nil
}

// loadConfig reads a JSON or YAML config file over the defaults.
func loadConfig(path string) (tendergraph.Config, error) {
	cfg := tendergraph.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing JSON config: %w", err)
		}
	}
	return cfg, nil
}

// applyEnvOverrides applies TENDERGRAPH_* environment variables on top of
// the loaded config.
func applyEnvOverrides(cfg *tendergraph.Config) {
	if v := os.Getenv("TENDERGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TENDERGRAPH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TENDERGRAPH_CSV_PATH"); v != "" {
		cfg.CSVPath = v
	}
	if v := os.Getenv("TENDERGRAPH_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv("TENDERGRAPH_RESOURCE_ID"); v != "" {
		cfg.ResourceID = v
	}
	if v := os.Getenv("TENDERGRAPH_ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("TENDERGRAPH_ORACLE_PROVIDER"); v != "" {
		cfg.Oracle.Provider = v
	}
	if v := os.Getenv("TENDERGRAPH_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("TENDERGRAPH_ORACLE_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Oracle.Threshold = t
		}
	}
}

func dispatch(ctx context.Context, command string, cfg tendergraph.Config, flags cliFlags) error {
	p, err := tendergraph.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	switch command {
	case "fetch":
		records, err := p.Fetch(ctx, fetchOpts(flags)...)
		if err != nil {
			return err
		}
		slog.Info("fetch complete", "records", len(records))
		return nil

	case "chunk":
		records, err := p.Fetch(ctx, fetchOpts(flags)...)
		if err != nil {
			return err
		}
		chunks, err := p.BuildChunks(records)
		if err != nil {
			return err
		}
		slog.Info("chunk complete", "chunks", len(chunks), "path", cfg.ChunksPath())
		return nil

	case "extract":
		summary, err := p.ExtractFile(ctx, cfg.ChunksPath(), cfg.OutputPath())
		if err != nil {
			return err
		}
		return printJSON(summary)

	case "run":
		summary, err := p.Run(ctx, fetchOpts(flags)...)
		if err != nil {
			return err
		}
		return printJSON(summary)

	case "stats":
		stats, err := p.Store().DBStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "search":
		if flags.query == "" {
			return fmt.Errorf("search requires --query")
		}
		matches, err := p.Store().SearchCards(ctx, flags.query, flags.limit)
		if err != nil {
			return err
		}
		return printJSON(matches)

	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func fetchOpts(flags cliFlags) []tendergraph.FetchOption {
	var opts []tendergraph.FetchOption
	if flags.limit > 0 {
		opts = append(opts, tendergraph.WithLimit(flags.limit))
	}
	if flags.force {
		opts = append(opts, tendergraph.WithForceRefetch())
	}
	return opts
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pipeline <command> [flags]

commands:
  fetch     load award records (cache, CSV, or upstream API)
  chunk     fetch records and write the JSONL chunk file
  extract   process the chunk file through the extraction oracle
  run       full sequence: fetch, chunk, extract, import
  stats     staging database counts
  search    full-text search over card text (--query)

flags:
  --config PATH   JSON or YAML config file
  --limit N       record limit for fetch/chunk/run, result limit for search
  --force         skip the cache and refetch from source
  --query TEXT    search query`)
}
