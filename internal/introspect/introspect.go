// Package introspect contains a main introspecter interface which lets
// you read the live schema of a database: its tables, and for each
// table the columns, primary key, foreign keys, indexes (composite
// column order preserved), and check constraints. It returns structured
// records; rendering them is the console collaborator's business.
package introspect

import (
	"context"
	"strings"
	"sync"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
)

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name          string
	SQLType       string
	Nullable      bool
	Default       *string
	PrimaryKey    bool
	AutoIncrement bool
}

// ForeignKeyInfo describes one outgoing reference.
type ForeignKeyInfo struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
	OnUpdate  string
}

// IndexInfo describes one index; Columns preserves the catalog's
// composite order.
type IndexInfo struct {
	Name    string
	Columns []string
	Unique  bool
}

// CheckInfo is one check constraint with the expression normalized:
// the CHECK( prefix and outer parentheses stripped.
type CheckInfo struct {
	Name       string
	Expression string
}

// TableInfo is the structured description of one table.
type TableInfo struct {
	Name        string
	Columns     []ColumnInfo
	PrimaryKey  []string
	ForeignKeys []ForeignKeyInfo
	Indexes     []IndexInfo
	Checks      []CheckInfo
	Comment     string
}

// Introspecter reads the live schema over a connection.
type Introspecter interface {
	ListTables(ctx context.Context, conn driver.Conn) ([]string, error)
	DescribeTable(ctx context.Context, conn driver.Conn, table string) (*TableInfo, error)
}

var (
	registry = make(map[dialect.Dialect]func() Introspecter)
	mu       sync.RWMutex
)

// Register installs a dialect's introspecter factory.
func Register(d dialect.Dialect, fn func() Introspecter) {
	mu.Lock()
	defer mu.Unlock()
	registry[d] = fn
}

// NewIntrospecter returns the introspecter for d.
func NewIntrospecter(d dialect.Dialect) (Introspecter, error) {
	mu.RLock()
	fn, ok := registry[d]
	mu.RUnlock()
	if !ok {
		return nil, sqlerr.New(sqlerr.Schema, "no introspecter registered for %v", d)
	}
	return fn(), nil
}

// NormalizeCheck strips the CHECK( prefix and the outer parentheses of
// a catalog-reported check expression.
func NormalizeCheck(expr string) string {
	out := strings.TrimSpace(expr)
	upper := strings.ToUpper(out)
	if strings.HasPrefix(upper, "CHECK") {
		out = strings.TrimSpace(out[len("CHECK"):])
	}
	for strings.HasPrefix(out, "(") && strings.HasSuffix(out, ")") && balanced(out[1:len(out)-1]) {
		out = strings.TrimSpace(out[1 : len(out)-1])
	}
	return out
}

// balanced reports whether s has matched parentheses on its own,
// guarding the outer-paren strip against "(a) AND (b)".
func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
