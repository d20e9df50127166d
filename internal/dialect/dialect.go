// Package dialect identifies the supported SQL dialects and centralizes
// the syntax decisions that differ between them: identifier quoting,
// placeholder style, and a handful of capability flags the builders
// branch on.
package dialect

import (
	"strconv"
	"strings"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Supported returns all dialects the toolkit ships drivers for.
func Supported() []Dialect {
	return []Dialect{Postgres, MySQL, SQLite}
}

// Valid reports whether d names a recognized dialect.
func Valid(d string) bool {
	for _, s := range Supported() {
		if strings.EqualFold(string(s), d) {
			return true
		}
	}
	return false
}

// DefaultPort returns the conventional server port, or 0 for file-backed
// dialects.
func (d Dialect) DefaultPort() int {
	switch d {
	case Postgres:
		return 5432
	case MySQL:
		return 3306
	default:
		return 0
	}
}

// QuoteIdent quotes an identifier for d, doubling any embedded quote
// characters. PostgreSQL and SQLite use double quotes, MySQL backticks.
func (d Dialect) QuoteIdent(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString quotes a string literal, doubling embedded single quotes.
func (d Dialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns the parameter placeholder for the 1-based index n:
// $n for PostgreSQL, ?n for SQLite, a bare ? for MySQL.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLite:
		return "?" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// SupportsDefaultKeyword reports whether the literal DEFAULT may appear
// inside a VALUES list. SQLite rejects it; the builders omit the column
// instead.
func (d Dialect) SupportsDefaultKeyword() bool {
	return d != SQLite
}

// AutoIncrementClause returns the column suffix marking an
// auto-increment integer column in CREATE TABLE output.
func (d Dialect) AutoIncrementClause() string {
	switch d {
	case Postgres:
		return "GENERATED BY DEFAULT AS IDENTITY"
	case MySQL:
		return "AUTO_INCREMENT"
	default:
		return "AUTOINCREMENT"
	}
}
