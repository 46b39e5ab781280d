package facade

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"textindex/internal/config"
)

func newTestCore(t *testing.T) (*Core, *config.Config) {
	t.Helper()

	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "notes.txt"), []byte("the quick brown fox"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	indexDir := t.TempDir()
	cfg := &config.Config{
		SourceDirectory:      sourceDir,
		IndexOutputDirectory: indexDir,
		ScanIntervalSeconds:  300,
		MaxFileSizeMB:        10,
		StoreBackend:         config.BackendSQLite,
		WatchFilesystem:      false,
	}

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	c.RefreshIndex(context.Background(), "", false)
	return c, cfg
}

func TestCore_SearchFindsResults(t *testing.T) {
	c, _ := newTestCore(t)

	out := c.Search(context.Background(), "fox", 10)
	if !strings.Contains(out, "Found 1 results for 'fox'") {
		t.Errorf("Search() = %q, want it to report 1 result", out)
	}
	if !strings.Contains(out, "notes.txt") {
		t.Errorf("Search() = %q, want it to mention notes.txt", out)
	}
}

func TestCore_SearchNoResults(t *testing.T) {
	c, _ := newTestCore(t)

	out := c.Search(context.Background(), "nonexistentword", 10)
	if out != "No results found for: nonexistentword" {
		t.Errorf("Search() = %q, want the no-results message", out)
	}
}

func TestCore_GetIndexStats(t *testing.T) {
	c, _ := newTestCore(t)

	out := c.GetIndexStats(context.Background())
	if !strings.Contains(out, "Index Statistics:") {
		t.Errorf("GetIndexStats() = %q, want the header line", out)
	}
	if !strings.Contains(out, "- Indexed Files: 1") {
		t.Errorf("GetIndexStats() = %q, want 1 indexed file", out)
	}
}

func TestCore_RefreshIndex(t *testing.T) {
	c, cfg := newTestCore(t)

	if err := os.WriteFile(filepath.Join(cfg.SourceDirectory, "more.txt"), []byte("more content"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out := c.RefreshIndex(context.Background(), "", false)
	if !strings.Contains(out, "Refresh completed:") {
		t.Errorf("RefreshIndex() = %q, want it to report completion", out)
	}
	if !strings.Contains(out, "- Files Added: 1") {
		t.Errorf("RefreshIndex() = %q, want 1 file added", out)
	}
}

func TestCore_RefreshIndexForceSpecificFile(t *testing.T) {
	c, cfg := newTestCore(t)

	path := filepath.Join(cfg.SourceDirectory, "notes.txt")
	out := c.RefreshIndex(context.Background(), path, true)
	if !strings.Contains(out, "Force refresh of") {
		t.Errorf("RefreshIndex() = %q, want it to mention force refresh of a specific file", out)
	}
}

func TestCore_NilCoreReturnsNotInitialized(t *testing.T) {
	var c *Core
	if got := c.Search(context.Background(), "x", 10); got != notInitializedMessage {
		t.Errorf("Search() on nil Core = %q, want %q", got, notInitializedMessage)
	}
	if got := c.GetIndexStats(context.Background()); got != notInitializedMessage {
		t.Errorf("GetIndexStats() on nil Core = %q, want %q", got, notInitializedMessage)
	}
	if got := c.RefreshIndex(context.Background(), "", false); got != notInitializedMessage {
		t.Errorf("RefreshIndex() on nil Core = %q, want %q", got, notInitializedMessage)
	}
}
