// Package store manages the durable index: a SQLite FTS5 virtual table of
// document content plus a file_metadata table used for (size, mtime)
// change detection. Grounded 1:1 on original_source/src/database.go for the
// validation/corruption/rebuild algorithm, on the teacher's
// internal/db/schema.go for the SchemaBuilder/Dialect shape, and on
// other_examples/9e85cb4a_Aman-CERP-amanmcp__internal-store-sqlite_bm25.go.go
// for the concrete modernc.org/sqlite FTS5 wiring.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"textindex/internal/errs"
)

// minSQLiteFileSize is the smallest byte count a real SQLite file can be;
// anything smaller is corrupt or truncated. Matches
// original_source/src/database.go's MIN_SQLITE_FILE_SIZE.
const minSQLiteFileSize = 100

// sqliteHeaderSignature is the fixed 16-byte SQLite file header.
var sqliteHeaderSignature = []byte("SQLite format 3\x00")

const (
	documentsTable    = "documents"
	fileMetadataTable = "file_metadata"
)

// Store is a full-text index backed by either SQLite (default) or
// Postgres. All document and metadata operations go through the same
// Dialect-aware SQL so the two backends share one code path.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect Dialect
	path    string // empty for Postgres
	log     *slog.Logger
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path,
// detecting and rebuilding a corrupted database file first.
func OpenSQLite(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errs.New(errs.IndexCorruption, "OpenSQLite", path, fmt.Errorf("create data dir: %w", err))
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if validateErr := validateSQLiteFile(path); validateErr != nil {
			log.Warn("index database failed validation, rebuilding", "path", path, "error", validateErr)
			if err := removeSQLiteFiles(path); err != nil {
				return nil, errs.New(errs.IndexCorruption, "OpenSQLite", path, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.New(errs.IndexCorruption, "OpenSQLite", path, err)
	}
	// A single connection avoids SQLITE_BUSY lock contention from this
	// process's own goroutines; the store's own mutex then serializes
	// writers above the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dialect: SQLiteDialect{}, path: path, log: log}
	if err := s.runInit(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens a Postgres-backed store using dsn, per SPEC_FULL's
// alternate single-writer backend.
func OpenPostgres(dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.New(errs.IndexCorruption, "OpenPostgres", "", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.New(errs.IndexCorruption, "OpenPostgres", "", err)
	}

	s := &Store{db: db, dialect: PostgresDialect{}, log: log}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) runInit(ctx context.Context) error {
	for _, stmt := range s.dialect.InitStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.New(errs.IndexCorruption, "runInit", s.path, fmt.Errorf("init statement %q: %w", stmt, err))
		}
	}
	return nil
}

// fileMetadataColumns describes the file_metadata table in dialect-neutral
// terms. BIGINT/DOUBLE PRECISION read naturally as Postgres types, and
// SQLite's type-affinity rules (any "INT" substring -> INTEGER affinity,
// "DOUB"/"REAL"/"FLOA" -> REAL affinity) map them onto the same storage it
// used to declare with INTEGER/REAL directly, so one column list serves
// both backends.
var fileMetadataColumns = []ColumnDef{
	{Name: "path", Type: "TEXT", PrimaryKey: true},
	{Name: "size", Type: "BIGINT", NotNull: true},
	{Name: "mtime", Type: "DOUBLE PRECISION", NotNull: true},
	{Name: "last_indexed", Type: "DOUBLE PRECISION", NotNull: true},
	{Name: "encoding", Type: "TEXT"},
	{Name: "error", Type: "TEXT"},
}

func (s *Store) ensureSchema(ctx context.Context) error {
	var ddl []string
	switch s.dialect.Name() {
	case "postgres":
		ddl = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				path TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				last_modified TIMESTAMPTZ NOT NULL,
				content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_tsv ON documents USING GIN (content_tsv)`,
		}
	default:
		ddl = []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
				path UNINDEXED,
				content,
				last_modified UNINDEXED,
				tokenize='porter'
			)`,
		}
	}

	// documents needs fts5/tsvector virtual-table syntax that doesn't fit
	// the dialect's plain-column CreateTableSQL shape, so it's hand-written
	// above; file_metadata is an ordinary relational table on both backends
	// and goes through the same Dialect DDL helpers the teacher's
	// SchemaBuilder routed table creation through.
	ddl = append(ddl,
		s.dialect.CreateTableSQL(fileMetadataTable, fileMetadataColumns),
		s.dialect.CreateIndexSQL(fileMetadataTable, "idx_mtime", []string{"mtime"}, false),
	)

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.New(errs.IndexCorruption, "ensureSchema", s.path, err)
		}
	}
	return nil
}

// validateSQLiteFile checks size, header signature, and basic connectivity
// before reusing an existing SQLite file, matching original_source's
// _validate_existing_database.
func validateSQLiteFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat database file: %w", err)
	}
	if info.Size() < minSQLiteFileSize {
		return fmt.Errorf("database file too small to be valid: %d bytes", info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read database header: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeaderSignature))
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("cannot read database header: %w", err)
	}
	if !bytes.Equal(header, sqliteHeaderSignature) {
		return fmt.Errorf("invalid SQLite header")
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database validation query failed: %w", err)
	}
	return nil
}

func removeSQLiteFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s%s: %w", path, suffix, err)
		}
	}
	return nil
}

// CheckIntegrity runs SQLite's built-in integrity check. Non-SQLite
// backends always report healthy since Postgres manages its own storage
// integrity.
func (s *Store) CheckIntegrity(ctx context.Context) bool {
	if s.dialect.Name() != "sqlite" {
		return true
	}

	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		s.log.Warn("integrity check query failed", "error", err)
		return false
	}
	if result != "ok" {
		s.log.Warn("integrity check failed", "result", result)
		return false
	}
	return true
}

// RebuildIfCorrupted closes, removes, and recreates a corrupted SQLite
// store in place. A no-op returning true for a healthy store or a
// non-SQLite backend.
func (s *Store) RebuildIfCorrupted(ctx context.Context) (bool, error) {
	if s.CheckIntegrity(ctx) {
		return true, nil
	}
	if s.dialect.Name() != "sqlite" {
		return false, errs.New(errs.IndexCorruption, "RebuildIfCorrupted", "", fmt.Errorf("non-sqlite backend reported corruption"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path
	if err := s.db.Close(); err != nil {
		return false, errs.New(errs.IndexCorruption, "RebuildIfCorrupted", path, err)
	}
	if err := removeSQLiteFiles(path); err != nil {
		return false, errs.New(errs.IndexCorruption, "RebuildIfCorrupted", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false, errs.New(errs.IndexCorruption, "RebuildIfCorrupted", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	if err := s.runInit(ctx); err != nil {
		return false, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	s.log.Info("index database rebuilt after corruption", "path", path)
	return true, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return translateErr(s.db.Close())
}

// DB exposes the underlying connection for internal/search, which issues
// its own bm25()/snippet() queries directly rather than through the
// CRUD helpers below.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the active SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// UpsertDocument replaces path's indexed content. FTS5 virtual tables don't
// support UPDATE/REPLACE directly, so this deletes then inserts inside one
// transaction, matching original_source's index_file.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+documentsTable+" WHERE path = "+s.ph(1), doc.Path); err != nil {
		return translateErr(err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (path, content, last_modified) VALUES (%s, %s, %s)",
		documentsTable, s.ph(1), s.ph(2), s.ph(3))
	if _, err := tx.ExecContext(ctx, insertSQL, doc.Path, doc.Content, doc.LastModified.Format(time.RFC3339Nano)); err != nil {
		return translateErr(err)
	}

	return translateErr(tx.Commit())
}

// DeleteDocument removes path from the documents table.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM "+documentsTable+" WHERE path = "+s.ph(1), path)
	return translateErr(err)
}

// DocumentCount returns the number of indexed documents.
func (s *Store) DocumentCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+documentsTable).Scan(&count)
	return count, translateErr(err)
}

// UpsertFileMetadata records (or clears) a file's (size, mtime) and the
// outcome of its last indexing attempt.
func (s *Store) UpsertFileMetadata(ctx context.Context, m FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	upsertSQL := s.dialect.UpsertSQL(fileMetadataTable,
		[]string{"path", "size", "mtime", "last_indexed", "encoding", "error"},
		[]string{"path"},
		nil,
	)
	_, err := s.db.ExecContext(ctx, upsertSQL,
		m.Path, m.Size, float64(m.ModTime.UnixNano())/1e9,
		float64(m.LastIndexed.UnixNano())/1e9, m.Encoding, m.Error)
	return translateErr(err)
}

// GetFileMetadata returns the stored metadata for path, or (FileMetadata{},
// false, nil) if path has never been indexed.
func (s *Store) GetFileMetadata(ctx context.Context, path string) (FileMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT path, size, mtime, last_indexed, encoding, error FROM "+fileMetadataTable+" WHERE path = "+s.ph(1), path)

	var m FileMetadata
	var mtime, lastIndexed float64
	var encoding, errMsg sql.NullString
	if err := row.Scan(&m.Path, &m.Size, &mtime, &lastIndexed, &encoding, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return FileMetadata{}, false, nil
		}
		return FileMetadata{}, false, translateErr(err)
	}
	m.ModTime = secondsToTime(mtime)
	m.LastIndexed = secondsToTime(lastIndexed)
	m.Encoding = encoding.String
	m.Error = errMsg.String
	return m, true, nil
}

// ListFileMetadataPaths returns every path currently tracked in
// file_metadata, used by the indexer's deleted-file sweep.
func (s *Store) ListFileMetadataPaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT path FROM "+fileMetadataTable)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, translateErr(err)
		}
		paths = append(paths, p)
	}
	return paths, translateErr(rows.Err())
}

// DeleteFileMetadata removes path's tracked metadata.
func (s *Store) DeleteFileMetadata(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM "+fileMetadataTable+" WHERE path = "+s.ph(1), path)
	return translateErr(err)
}

func (s *Store) ph(idx int) string { return s.dialect.Placeholder(idx) }

func secondsToTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}

// translateErr maps low-level driver error strings to errs.IndexCorruption,
// matching original_source's get_connection exception translation
// ("file is not a database" / "database disk image is malformed").
func translateErr(err error) error {
	if err == nil || err == sql.ErrNoRows {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "file is not a database") || strings.Contains(msg, "database disk image is malformed") {
		return errs.New(errs.IndexCorruption, "store", "", err)
	}
	return err
}
