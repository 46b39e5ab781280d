// Package config loads and validates the JSON configuration described in
// spec section 6: a required source directory plus defaulted indexing,
// scan-interval, and file-size-limit knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"textindex/internal/errs"
)

// StoreBackend selects which durable store implementation backs the index.
type StoreBackend string

const (
	BackendSQLite   StoreBackend = "sqlite"
	BackendPostgres StoreBackend = "postgres"
)

// Config is the validated, defaulted server configuration. Fields mirror
// original_source/src/models.py's ServerConfig TypedDict.
type Config struct {
	SourceDirectory       string       `json:"source_directory"`
	IndexOutputDirectory  string       `json:"index_output_directory"`
	IncludedExtensions    []string     `json:"included_extensions"`
	ExcludedExtensions    []string     `json:"excluded_extensions"`
	ScanIntervalSeconds   int          `json:"scan_interval_seconds"`
	MaxFileSizeMB         float64      `json:"max_file_size_mb"`
	StoreBackend          StoreBackend `json:"store_backend"`
	PostgresDSN           string       `json:"postgres_dsn"`
	WatchFilesystem       bool         `json:"watch_filesystem"`
}

// raw mirrors Config for JSON decoding, using pointer/omittable fields so we
// can tell "absent" apart from "zero value" the way
// original_source/src/config.py's config_data.get(key, default) does.
type raw struct {
	SourceDirectory      *string  `json:"source_directory"`
	IndexOutputDirectory *string  `json:"index_output_directory"`
	IncludedExtensions   []string `json:"included_extensions"`
	ExcludedExtensions   []string `json:"excluded_extensions"`
	ScanIntervalSeconds  *int     `json:"scan_interval_seconds"`
	MaxFileSizeMB        *float64 `json:"max_file_size_mb"`
	StoreBackend         *string  `json:"store_backend"`
	PostgresDSN          *string  `json:"postgres_dsn"`
	WatchFilesystem      *bool    `json:"watch_filesystem"`
}

const (
	defaultIndexOutputDirectory = "./indexes"
	defaultScanIntervalSeconds  = 300
	defaultMaxFileSizeMB        = 10
)

func defaultIncludedExtensions() []string { return []string{".txt", ".md", ".rst"} }

// Load reads and validates configuration from path, falling back to
// "config.example.json" next to it when path itself doesn't exist —
// original_source/main.py::initialize_server's config.json-or-example
// fallback.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			examplePath := filepath.Join(filepath.Dir(path), "config.example.json")
			exampleData, exampleErr := os.ReadFile(examplePath)
			if exampleErr != nil {
				return nil, errs.New(errs.Configuration, "Load", path,
					fmt.Errorf("configuration file not found: %s", path))
			}
			data = exampleData
		} else {
			return nil, errs.New(errs.Configuration, "Load", path, err)
		}
	}

	var r raw
	if jsonErr := json.Unmarshal(data, &r); jsonErr != nil {
		return nil, errs.New(errs.Configuration, "Load", path,
			fmt.Errorf("invalid JSON in configuration file: %w", jsonErr))
	}

	return validate(r)
}

func validate(r raw) (*Config, error) {
	if r.SourceDirectory == nil || *r.SourceDirectory == "" {
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("missing required field: source_directory"))
	}

	info, err := os.Stat(*r.SourceDirectory)
	if err != nil {
		return nil, errs.New(errs.Configuration, "validate", *r.SourceDirectory,
			fmt.Errorf("source directory does not exist: %s", *r.SourceDirectory))
	}
	if !info.IsDir() {
		return nil, errs.New(errs.Configuration, "validate", *r.SourceDirectory,
			fmt.Errorf("source path is not a directory: %s", *r.SourceDirectory))
	}

	sourceAbs, err := filepath.Abs(*r.SourceDirectory)
	if err != nil {
		return nil, errs.New(errs.Configuration, "validate", *r.SourceDirectory, err)
	}

	cfg := &Config{
		SourceDirectory:      sourceAbs,
		IndexOutputDirectory: defaultIndexOutputDirectory,
		IncludedExtensions:   defaultIncludedExtensions(),
		ExcludedExtensions:   []string{},
		ScanIntervalSeconds:  defaultScanIntervalSeconds,
		MaxFileSizeMB:        defaultMaxFileSizeMB,
		StoreBackend:         BackendSQLite,
		WatchFilesystem:      true,
	}

	if r.IndexOutputDirectory != nil {
		cfg.IndexOutputDirectory = *r.IndexOutputDirectory
	}
	if r.IncludedExtensions != nil {
		cfg.IncludedExtensions = r.IncludedExtensions
	}
	if r.ExcludedExtensions != nil {
		cfg.ExcludedExtensions = r.ExcludedExtensions
	}
	if r.ScanIntervalSeconds != nil {
		cfg.ScanIntervalSeconds = *r.ScanIntervalSeconds
	}
	if r.MaxFileSizeMB != nil {
		cfg.MaxFileSizeMB = *r.MaxFileSizeMB
	}
	if r.StoreBackend != nil {
		cfg.StoreBackend = StoreBackend(*r.StoreBackend)
	}
	if r.PostgresDSN != nil {
		cfg.PostgresDSN = *r.PostgresDSN
	}
	if r.WatchFilesystem != nil {
		cfg.WatchFilesystem = *r.WatchFilesystem
	}

	applyEnvOverrides(cfg)

	indexAbs, err := filepath.Abs(cfg.IndexOutputDirectory)
	if err != nil {
		return nil, errs.New(errs.Configuration, "validate", cfg.IndexOutputDirectory, err)
	}
	cfg.IndexOutputDirectory = indexAbs

	if sourceAbs == indexAbs {
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("source and index directories cannot be the same"))
	}

	if cfg.ScanIntervalSeconds < 60 {
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("scan interval must be at least 60 seconds"))
	}

	if cfg.MaxFileSizeMB <= 0 || cfg.MaxFileSizeMB > 100 {
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("max file size must be between 0 and 100 MB"))
	}

	for _, ext := range append(append([]string{}, cfg.IncludedExtensions...), cfg.ExcludedExtensions...) {
		if !strings.HasPrefix(ext, ".") {
			return nil, errs.New(errs.Configuration, "validate", "",
				fmt.Errorf("extensions must start with '.': %s", ext))
		}
	}

	switch cfg.StoreBackend {
	case BackendSQLite, BackendPostgres:
	default:
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("unknown store_backend: %s", cfg.StoreBackend))
	}
	if cfg.StoreBackend == BackendPostgres && cfg.PostgresDSN == "" {
		return nil, errs.New(errs.Configuration, "validate", "",
			fmt.Errorf("postgres_dsn is required when store_backend is postgres"))
	}

	return cfg, nil
}

// applyEnvOverrides layers environment variables over the file-loaded
// config, matching the teacher's LoadXFromEnv convention
// (internal/config/search.go in the teacher tree) of an env-var escape
// hatch alongside the primary config path.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TEXTINDEX_SOURCE_DIR"); v != "" {
		cfg.SourceDirectory = v
	}
	if v := os.Getenv("TEXTINDEX_INDEX_DIR"); v != "" {
		cfg.IndexOutputDirectory = v
	}
	if v := os.Getenv("TEXTINDEX_SCAN_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanIntervalSeconds = n
		}
	}
	if v := os.Getenv("TEXTINDEX_MAX_FILE_SIZE_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxFileSizeMB = f
		}
	}
	if v := os.Getenv("TEXTINDEX_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = StoreBackend(v)
	}
}

// MaxFileSizeBytes converts the configured megabyte ceiling to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB * 1024 * 1024)
}
