package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	b, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	sourceDir := filepath.Join(dir, "source")
	if err := os.Mkdir(sourceDir, 0755); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, dir, map[string]any{"source_directory": sourceDir})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IndexOutputDirectory == "" {
		t.Error("expected default index_output_directory")
	}
	if len(cfg.IncludedExtensions) != 3 {
		t.Errorf("IncludedExtensions = %v, want 3 defaults", cfg.IncludedExtensions)
	}
	if cfg.ScanIntervalSeconds != 300 {
		t.Errorf("ScanIntervalSeconds = %d, want 300", cfg.ScanIntervalSeconds)
	}
	if cfg.MaxFileSizeMB != 10 {
		t.Errorf("MaxFileSizeMB = %v, want 10", cfg.MaxFileSizeMB)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %v, want sqlite", cfg.StoreBackend)
	}
}

func TestLoad_MissingSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing source_directory")
	}
}

func TestLoad_SourceDirectoryDoesNotExist(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{"source_directory": filepath.Join(dir, "nope")})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for nonexistent source directory")
	}
}

func TestLoad_SourceAndIndexSame(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"source_directory":        dir,
		"index_output_directory":  dir,
	})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when source and index directories match")
	}
}

func TestLoad_ScanIntervalTooLow(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"source_directory":      dir,
		"scan_interval_seconds": 10,
	})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for scan interval below 60")
	}
}

func TestLoad_MaxFileSizeOutOfRange(t *testing.T) {
	for _, v := range []float64{0, -1, 101} {
		dir := t.TempDir()
		path := writeConfig(t, dir, map[string]any{
			"source_directory":  dir,
			"max_file_size_mb":  v,
		})
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for max_file_size_mb=%v", v)
		}
	}
}

func TestLoad_ExtensionMustStartWithDot(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"source_directory":     dir,
		"included_extensions":  []string{"txt"},
	})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for extension missing leading dot")
	}
}

func TestLoad_FallsBackToExampleConfig(t *testing.T) {
	dir := t.TempDir()
	sourceDir := filepath.Join(dir, "source")
	if err := os.Mkdir(sourceDir, 0755); err != nil {
		t.Fatal(err)
	}

	examplePath := filepath.Join(dir, "config.example.json")
	b, _ := json.Marshal(map[string]any{"source_directory": sourceDir})
	if err := os.WriteFile(examplePath, b, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SourceDirectory == "" {
		t.Fatal("expected config loaded from example")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"source_directory": dir,
		"store_backend":    "postgres",
	})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when postgres backend configured without DSN")
	}
}

func TestMaxFileSizeBytes(t *testing.T) {
	cfg := &Config{MaxFileSizeMB: 10}
	if got := cfg.MaxFileSizeBytes(); got != 10*1024*1024 {
		t.Errorf("MaxFileSizeBytes() = %d, want %d", got, 10*1024*1024)
	}
}
