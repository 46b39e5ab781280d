// Package facade exposes the three tool operations — Search,
// GetIndexStats, RefreshIndex — as the plain formatted strings
// original_source/main.go's FastMCP tool functions return, backed by one
// Core struct built once at startup instead of the original's module
// globals (indexer, search_engine, db, config, background_task,
// _initialized, _test_mode).
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"textindex/internal/config"
	"textindex/internal/indexer"
	"textindex/internal/scheduler"
	"textindex/internal/search"
	"textindex/internal/store"
	"textindex/internal/watcher"
)

const searchDBFileName = "search.db"

// notInitializedMessage is returned verbatim by every operation when
// called on a zero-value or partially-built Core, matching
// original_source's "Error: Server not properly initialized".
const notInitializedMessage = "Error: Server not properly initialized"

// Core owns every long-lived component the tool operations need. Build
// one with New at process startup; autoStartScheduler replaces the
// original's _test_mode flag, letting tests construct a Core without a
// live background refresh loop.
type Core struct {
	cfg     *config.Config
	store   *store.Store
	indexer *indexer.Indexer
	search  *search.Engine
	sched   *scheduler.Scheduler
	watch   *watcher.Watcher
	log     *slog.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	autoStartScheduler bool
}

// WithAutoStartScheduler starts the periodic refresh loop as part of New.
// Tests typically omit this and drive refreshes explicitly via
// RefreshIndex instead.
func WithAutoStartScheduler() Option {
	return func(o *options) { o.autoStartScheduler = true }
}

// New builds a fully wired Core: opens (and, if necessary, rebuilds) the
// store, constructs the indexer/search engine, and optionally starts the
// background scheduler. Matches original_source's initialize_server.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*Core, error) {
	if log == nil {
		log = slog.Default()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var s *store.Store
	var err error
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		s, err = store.OpenPostgres(cfg.PostgresDSN, log)
	default:
		dbPath := filepath.Join(cfg.IndexOutputDirectory, searchDBFileName)
		s, err = store.OpenSQLite(dbPath, log)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	if ok, err := s.RebuildIfCorrupted(context.Background()); err != nil {
		return nil, fmt.Errorf("check store integrity: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("failed to initialize database")
	}

	ix := indexer.New(cfg, s, log)
	se := search.NewEngine(s, log)

	var w *watcher.Watcher
	if cfg.WatchFilesystem {
		w, err = watcher.New(cfg.SourceDirectory, log)
		if err != nil {
			log.Warn("failed to start filesystem watcher, falling back to polling only", "error", err)
			w = nil
		}
	}

	sched := scheduler.New(ix, time.Duration(cfg.ScanIntervalSeconds)*time.Second, w, log)

	c := &Core{cfg: cfg, store: s, indexer: ix, search: se, sched: sched, watch: w, log: log}

	if o.autoStartScheduler {
		log.Info("performing initial index scan...")
		sched.Start(context.Background())
	}

	return c, nil
}

// Close stops the background scheduler and releases the store.
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.sched != nil {
		c.sched.Stop()
	}
	if c.watch != nil {
		c.watch.Close()
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Search runs a full-text query and renders the results as the numbered
// listing original_source's `search` tool produces.
func (c *Core) Search(ctx context.Context, query string, limit int) string {
	if c == nil || c.search == nil {
		return notInitializedMessage
	}

	results, err := c.search.Search(ctx, query, limit)
	if err != nil {
		return fmt.Sprintf("Error executing search: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Path)
		fmt.Fprintf(&b, "   Score: %.2f\n", r.Score)
		fmt.Fprintf(&b, "   Modified: %s\n", r.LastModified.Format(time.RFC3339))
		fmt.Fprintf(&b, "   Snippet: %s\n\n", r.Snippet)
	}
	return b.String()
}

// GetIndexStats renders the current index size, document count, last
// scan time, and error count, matching original_source's
// `get_index_stats` tool.
func (c *Core) GetIndexStats(ctx context.Context) string {
	if c == nil || c.search == nil || c.store == nil {
		return notInitializedMessage
	}

	docCount, err := c.search.DocumentCount(ctx)
	if err != nil {
		return fmt.Sprintf("Error getting index stats: %v", err)
	}

	var indexSizeMB float64
	dbPath := filepath.Join(c.cfg.IndexOutputDirectory, searchDBFileName)
	if info, err := os.Stat(dbPath); err == nil {
		indexSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	lastScan, errorsCount, err := c.scanSummary(ctx)
	if err != nil {
		return fmt.Sprintf("Error getting index stats: %v", err)
	}

	return fmt.Sprintf(`Index Statistics:
- Indexed Files: %d
- Last Scan: %s
- Index Size: %.2f MB
- Total Documents: %d
- Errors Encountered: %d
`, docCount, lastScan, indexSizeMB, docCount, errorsCount)
}

func (c *Core) scanSummary(ctx context.Context) (lastScan string, errorsCount int, err error) {
	paths, err := c.store.ListFileMetadataPaths(ctx)
	if err != nil {
		return "", 0, err
	}

	lastScan = "Never"
	var latest time.Time
	for _, p := range paths {
		m, ok, err := c.store.GetFileMetadata(ctx, p)
		if err != nil {
			return "", 0, err
		}
		if !ok {
			continue
		}
		if m.Error != "" {
			errorsCount++
		}
		if m.LastIndexed.After(latest) {
			latest = m.LastIndexed
		}
	}
	if !latest.IsZero() {
		lastScan = latest.Format(time.RFC3339)
	}
	return lastScan, errorsCount, nil
}

// RefreshIndex re-indexes a specific file (filepath non-empty) or the
// whole source tree, rendering the outcome as original_source's
// `refresh_index` tool does.
func (c *Core) RefreshIndex(ctx context.Context, filepath_ string, force bool) string {
	if c == nil || c.sched == nil {
		return notInitializedMessage
	}

	result := c.sched.Refresh(ctx, filepath_, force)

	status := "completed"
	if !result.Success {
		status = "failed"
	}
	mode := "Refresh"
	if force {
		mode = "Force refresh"
	}
	target := ""
	if filepath_ != "" {
		target = fmt.Sprintf(" of '%s'", filepath_)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s %s:\n", mode, target, status)
	if result.ChangeType != "" {
		fmt.Fprintf(&b, "- Change Type: %s\n", result.ChangeType)
	}
	fmt.Fprintf(&b, "- Duration: %.2f seconds\n", result.DurationSeconds)
	fmt.Fprintf(&b, "- Files Processed: %d\n", result.FilesProcessed)
	fmt.Fprintf(&b, "- Files Added: %d\n", result.FilesAdded)
	fmt.Fprintf(&b, "- Files Updated: %d\n", result.FilesUpdated)
	fmt.Fprintf(&b, "- Files Removed: %d\n", result.FilesRemoved)
	fmt.Fprintf(&b, "- Success: %t\n", result.Success)

	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "- Errors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	return b.String()
}
