// Package search runs full-text queries against an internal/store Store
// using SQLite's FTS5 bm25() ranking and snippet() highlighting. Grounded
// 1:1 on original_source/src/search.go's SearchEngine: the escaping rule,
// the BM25 sign convention, and the LIKE-based path query.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"textindex/internal/store"
)

// snippetMarkStart/End bracket the highlighted term inside a Result's
// Snippet, matching original_source's '<mark>'/'</mark>' markers.
const (
	snippetMarkStart = "<mark>"
	snippetMarkEnd   = "</mark>"
	snippetEllipsis  = "..."
	snippetTokens    = 32
	pathSnippetLen   = 200
)

// Result is one matched document, ranked by BM25 relevance (lower raw
// score = better match; Score here is already normalized to be
// higher-is-better via abs()).
type Result struct {
	Path         string
	Snippet      string
	Score        float64
	LastModified time.Time
}

// Engine executes search queries against a Store's documents table.
type Engine struct {
	store *store.Store
	log   *slog.Logger
}

// NewEngine returns an Engine backed by s.
func NewEngine(s *store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, log: log}
}

// Search runs an FTS5 MATCH query and returns up to limit results ordered
// by relevance (best first). An empty or whitespace-only query returns no
// results rather than erroring, matching original_source's early return.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	escaped := escapeFTSQuery(trimmed)

	db := e.store.DB()
	ph1, ph2 := placeholders(e.store.Dialect())

	sqlQuery := fmt.Sprintf(`
		SELECT path, snippet(documents, 1, '%s', '%s', '%s', %d) AS snippet,
		       bm25(documents) AS score, last_modified
		FROM documents
		WHERE documents MATCH %s
		ORDER BY score
		LIMIT %s
	`, snippetMarkStart, snippetMarkEnd, snippetEllipsis, snippetTokens, ph1, ph2)

	rows, err := db.QueryContext(ctx, sqlQuery, escaped, limit)
	if err != nil {
		// FTS5 syntax errors surface as driver errors on invalid MATCH
		// expressions; original_source treats these as "no results" rather
		// than a hard failure, since a malformed query is a user-input
		// problem, not an index fault.
		e.log.Warn("invalid search query", "query", query, "error", err)
		return nil, nil
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var lastModified interface{}
		var score float64
		if err := rows.Scan(&r.Path, &r.Snippet, &score, &lastModified); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Score = absFloat(score)
		r.LastModified = toTime(lastModified)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}

	e.log.Info("search completed", "query", query, "results", len(results))
	return results, nil
}

// SearchByPath returns documents whose path matches pathPattern (a SQL
// LIKE pattern), ordered lexically rather than by relevance. Used when a
// caller wants to browse by path rather than rank by content match.
func (e *Engine) SearchByPath(ctx context.Context, pathPattern string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	db := e.store.DB()
	ph1, ph2 := placeholders(e.store.Dialect())

	sqlQuery := fmt.Sprintf(`
		SELECT path, substr(content, 1, %d) AS snippet, last_modified
		FROM documents
		WHERE path LIKE %s
		ORDER BY path
		LIMIT %s
	`, pathSnippetLen, ph1, ph2)

	rows, err := db.QueryContext(ctx, sqlQuery, pathPattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search by path: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var lastModified interface{}
		if err := rows.Scan(&r.Path, &r.Snippet, &lastModified); err != nil {
			return nil, fmt.Errorf("scan path result: %w", err)
		}
		if len(r.Snippet) == pathSnippetLen {
			r.Snippet += snippetEllipsis
		}
		r.LastModified = toTime(lastModified)
		results = append(results, r)
	}
	return results, rows.Err()
}

// DocumentCount returns the number of indexed documents.
func (e *Engine) DocumentCount(ctx context.Context) (int, error) {
	return e.store.DocumentCount(ctx)
}

// escapeFTSQuery quotes a raw query when it contains characters or
// operator keywords FTS5 would otherwise interpret as syntax, matching
// original_source's _escape_fts_query exactly (same special-char set,
// same phrase-search passthrough).
func escapeFTSQuery(query string) string {
	if strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) && len(query) >= 2 {
		return query
	}

	specialChars := []string{`"`, `'`, "-", "*", ":", ".", "(", ")"}
	operators := []string{"AND", "OR", "NOT"}

	needsQuoting := false
	for _, c := range specialChars {
		if strings.Contains(query, c) {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		for _, op := range operators {
			if strings.Contains(query, op) {
				needsQuoting = true
				break
			}
		}
	}

	if !needsQuoting {
		return query
	}
	escaped := strings.ReplaceAll(query, `"`, `""`)
	return fmt.Sprintf(`"%s"`, escaped)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// placeholders returns the dialect-correct parameter markers for a
// two-argument query (MATCH/LIKE value, LIMIT).
func placeholders(d store.Dialect) (string, string) {
	return d.Placeholder(1), d.Placeholder(2)
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	case []byte:
		parsed, err := time.Parse(time.RFC3339Nano, string(t))
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}
