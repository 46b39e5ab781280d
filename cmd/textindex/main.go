// Command textindex runs the local full-text indexing service: an
// initial scan of the configured source directory, a periodic/watched
// refresh loop, and the three tool operations (search, get_index_stats,
// refresh_index) exposed over stdio as line-delimited JSON. Grounded on
// cmd/codetect-index/main.go's subcommand/flag structure and on
// original_source/main.go's request/response shapes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"textindex/internal/config"
	"textindex/internal/facade"
	"textindex/internal/logging"
)

var logger *slog.Logger

const version = "0.1.0"

func main() {
	logger = logging.Default("textindex")

	if len(os.Args) < 2 {
		runServe(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "refresh":
		runRefresh(os.Args[2:])
	case "version":
		fmt.Printf("textindex v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		logger.Error("unknown command", "command", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfigOrExit(configPath string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

// runServe starts the indexing core with the background scheduler
// running, then serves the three tool operations as newline-delimited
// JSON request/response pairs over stdin/stdout until interrupted.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)

	core, err := facade.New(cfg, logger, facade.WithAutoStartScheduler())
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("textindex serving on stdio", "source", cfg.SourceDirectory)
	go serveStdio(ctx, core)

	<-ctx.Done()
	logger.Info("shutting down")
}

// request/response mirror the three tool operations' parameters and are
// intentionally flat: one JSON object per line in, one JSON object per
// line out.
type request struct {
	Op       string `json:"op"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Filepath string `json:"filepath,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

type response struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func serveStdio(ctx context.Context, core *facade.Core) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		enc.Encode(response{Result: dispatch(ctx, core, req)})
	}
}

func dispatch(ctx context.Context, core *facade.Core, req request) string {
	switch req.Op {
	case "search":
		limit := req.Limit
		if limit <= 0 {
			limit = 10
		}
		return core.Search(ctx, req.Query, limit)
	case "get_index_stats":
		return core.GetIndexStats(ctx)
	case "refresh_index":
		return core.RefreshIndex(ctx, req.Filepath, req.Force)
	default:
		return fmt.Sprintf("Error: unknown operation %q", req.Op)
	}
}

// runSearch, runStats, and runRefresh provide one-shot CLI equivalents of
// the three tool operations for scripting and manual inspection, without
// starting the background scheduler.
func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	limit := fs.Int("limit", 10, "Maximum number of results")
	fs.Parse(args)

	if fs.NArg() < 1 {
		logger.Error("search requires a query argument")
		os.Exit(1)
	}
	query := fs.Arg(0)

	cfg := loadConfigOrExit(*configPath)
	core, err := facade.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	core.RefreshIndex(context.Background(), "", false)
	fmt.Println(core.Search(context.Background(), query, *limit))
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	core, err := facade.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	fmt.Println(core.GetIndexStats(context.Background()))
}

func runRefresh(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	force := fs.Bool("force", false, "Reindex all files regardless of change detection")
	fs.BoolVar(force, "f", false, "Short for --force")
	fs.Parse(args)

	filepathArg := ""
	if fs.NArg() > 0 {
		filepathArg = fs.Arg(0)
	}

	cfg := loadConfigOrExit(*configPath)
	core, err := facade.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	fmt.Println(core.RefreshIndex(context.Background(), filepathArg, *force))
}

func printUsage() {
	fmt.Println(`textindex - local full-text indexing service

Usage:
  textindex serve [options]            Run the indexing service on stdio (default)
  textindex search <query> [options]   Run a one-shot search
  textindex stats [options]            Print index statistics
  textindex refresh [path] [options]   Refresh the index, optionally for one file
  textindex version                    Print version
  textindex help                       Show this help

Options:
  --config     Path to configuration file (default: config.json)
  --limit      Maximum search results (search only, default: 10)
  --force, -f  Reindex regardless of change detection (refresh only)

Environment Variables:
  TEXTINDEX_SOURCE_DIR             Override source_directory
  TEXTINDEX_INDEX_DIR              Override index_output_directory
  TEXTINDEX_SCAN_INTERVAL_SECONDS  Override scan_interval_seconds
  TEXTINDEX_MAX_FILE_SIZE_MB       Override max_file_size_mb
  TEXTINDEX_STORE_BACKEND          Override store_backend (sqlite, postgres)
  TEXTINDEX_LOG_LEVEL              Log level (debug, info, warn, error)`)
}
