// Package errs defines the error taxonomy shared across the indexing core:
// configuration, file access, index corruption, and a catch-all indexing
// kind, per the propagation policy in spec section 7.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch with errors.As without
// parsing messages.
type Kind int

const (
	// Indexing is the catch-all parent kind.
	Indexing Kind = iota
	// Configuration marks bad or missing configuration.
	Configuration
	// FileAccess marks an unreadable file or permission failure.
	FileAccess
	// IndexCorruption marks a store file/header/integrity failure or a
	// store-layer operational error that must be treated as corruption.
	IndexCorruption
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case FileAccess:
		return "file_access"
	case IndexCorruption:
		return "index_corruption"
	default:
		return "indexing"
	}
}

// Error wraps an underlying error with a Kind, the operation that failed,
// and (when relevant) the path involved.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
