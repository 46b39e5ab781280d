package store

import (
	"fmt"
	"strings"
)

// ColumnDef describes one column in a CREATE TABLE statement.
type ColumnDef struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// Dialect abstracts the small set of SQL differences between the store
// backends this package supports: placeholder syntax and DDL/upsert
// phrasing. Adapted from the teacher's internal/db.Dialect interface
// (schema.go/schema_test.go); the dialect implementations themselves were
// not present in the retrieved teacher slice, only the interface's call
// sites and the placeholder conventions schema_test.go pins down, so they
// are authored fresh here against that contract. ClickHouseDialect is
// dropped: no SPEC_FULL component talks to ClickHouse.
type Dialect interface {
	Name() string
	Placeholder(idx int) string
	CreateTableSQL(table string, columns []ColumnDef) string
	CreateIndexSQL(table, indexName string, columns []string, unique bool) string
	UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string
	InitStatements() []string
}

// SQLiteDialect targets modernc.org/sqlite via database/sql.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Placeholder(int) string { return "?" }

func (d SQLiteDialect) CreateTableSQL(table string, columns []ColumnDef) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columnDefsSQL(columns))
}

func (SQLiteDialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	return createIndexSQL(table, indexName, columns, unique)
}

func (SQLiteDialect) UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	return upsertSQL(SQLiteDialect{}, table, columns, conflictColumns, updateColumns)
}

func (SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
}

// PostgresDialect targets github.com/lib/pq as the alternate single-writer
// backend (spec.md's "no distributed operation / multi-writer coordination"
// Non-goal only rules out a distributed deployment, not a single configured
// backend swap).
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Placeholder(idx int) string { return fmt.Sprintf("$%d", idx) }

func (d PostgresDialect) CreateTableSQL(table string, columns []ColumnDef) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columnDefsSQL(columns))
}

func (PostgresDialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	return createIndexSQL(table, indexName, columns, unique)
}

func (d PostgresDialect) UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	return upsertSQL(d, table, columns, conflictColumns, updateColumns)
}

func (PostgresDialect) InitStatements() []string {
	return nil
}

func columnDefsSQL(columns []ColumnDef) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		def := c.Name + " " + c.Type
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if c.NotNull && !c.PrimaryKey {
			def += " NOT NULL"
		}
		parts[i] = def
	}
	return strings.Join(parts, ", ")
}

func createIndexSQL(table, indexName string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, indexName, table, strings.Join(columns, ", "))
}

// upsertSQL builds an INSERT ... ON CONFLICT statement with dialect-correct
// placeholders. When updateColumns is nil, every non-conflict column is
// updated on conflict.
func upsertSQL(d Dialect, table string, columns, conflictColumns, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = d.Placeholder(i + 1)
	}

	if updateColumns == nil {
		conflictSet := make(map[string]bool, len(conflictColumns))
		for _, c := range conflictColumns {
			conflictSet[c] = true
		}
		for _, c := range columns {
			if !conflictSet[c] {
				updateColumns = append(updateColumns, c)
			}
		}
	}

	sets := make([]string, len(updateColumns))
	for i, c := range updateColumns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictColumns, ", "), strings.Join(sets, ", "),
	)
}
