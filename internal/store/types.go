package store

import "time"

// Document is a full-text-indexed file, grounded on
// original_source/src/models.py (the documents FTS5 table columns).
type Document struct {
	Path         string
	Content      string
	LastModified time.Time
}

// FileMetadata tracks the (size, mtime) pair internal/indexer compares
// against the filesystem to decide whether a file needs re-ingestion, plus
// bookkeeping for the last successful (or failed) indexing attempt.
// Grounded on original_source/src/models.py's FileMetadata TypedDict and
// database.py's file_metadata table.
type FileMetadata struct {
	Path        string
	Size        int64
	ModTime     time.Time
	LastIndexed time.Time
	Encoding    string
	Error       string
}
