// Package repository provides the durable key-value preference stores and
// the organizer sink backed by PostgreSQL, SQLite or a local JSON file.
package repository

import (
	"regexp"
	"strings"
)

// Dialect selects placeholder syntax for the SQL backends.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

var pgPlaceholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders to ?N for SQLite. Queries are written
// once in PostgreSQL form.
func (d Dialect) rebind(query string) string {
	if d != DialectSQLite || !strings.Contains(query, "$") {
		return query
	}
	return pgPlaceholder.ReplaceAllString(query, "?$1")
}
