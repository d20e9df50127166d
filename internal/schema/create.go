// Package schema generates CREATE TABLE, CREATE INDEX, and DROP TABLE
// statements from model metadata.
package schema

import (
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
)

// CreateTable emits the DDL for one model's table.
type CreateTable struct {
	model       model.Model
	ifNotExists bool
}

// NewCreateTable starts a CREATE TABLE for m.
func NewCreateTable(m model.Model) CreateTable { return CreateTable{model: m} }

// IfNotExists adds IF NOT EXISTS.
func (c CreateTable) IfNotExists() CreateTable {
	c.ifNotExists = true
	return c
}

// Build renders the statement for d.
func (c CreateTable) Build(d dialect.Dialect) string {
	m := c.model
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if c.ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdent(m.TableName()))
	b.WriteString(" (")

	var defs []string
	fields := m.Fields()
	for i := range fields {
		fi := &fields[i]
		if fi.Computed {
			continue
		}
		defs = append(defs, columnDefinition(d, fi))
	}
	defs = append(defs, constraintDefs(d, m)...)
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")
	return b.String()
}

// columnDefinition renders one column: type (override or canonical),
// nullability, auto-increment clause, raw default.
func columnDefinition(d dialect.Dialect, fi *model.FieldInfo) string {
	parts := []string{d.QuoteIdent(fi.ColumnName()), fi.SQLTypeName(d)}
	parts = addNullability(parts, fi)
	parts = addAutoIncrement(parts, d, fi)
	parts = addDefault(parts, fi)
	return strings.Join(parts, " ")
}

func addNullability(parts []string, fi *model.FieldInfo) []string {
	if !fi.Nullable && !fi.AutoIncrement {
		parts = append(parts, "NOT NULL")
	}
	return parts
}

func addAutoIncrement(parts []string, d dialect.Dialect, fi *model.FieldInfo) []string {
	if !fi.AutoIncrement {
		return parts
	}
	if d == dialect.SQLite {
		// SQLite's rowid alias needs the inline PRIMARY KEY.
		return append(parts, "PRIMARY KEY", d.AutoIncrementClause())
	}
	return append(parts, d.AutoIncrementClause())
}

func addDefault(parts []string, fi *model.FieldInfo) []string {
	if expr := strings.TrimSpace(fi.Default); expr != "" {
		parts = append(parts, "DEFAULT "+expr)
	}
	return parts
}

// constraintDefs renders the composite PRIMARY KEY first, then named
// UNIQUE constraints (uk_<col>) and foreign keys (fk_<table>_<col>)
// with their referential actions.
func constraintDefs(d dialect.Dialect, m model.Model) []string {
	var out []string
	pk := m.PrimaryKey()
	if len(pk) > 0 && !pkIsInlineAuto(d, m) {
		quoted := make([]string, len(pk))
		for i, c := range pk {
			quoted[i] = d.QuoteIdent(c)
		}
		out = append(out, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	fields := m.Fields()
	for i := range fields {
		fi := &fields[i]
		if fi.Unique && !fi.PrimaryKey {
			out = append(out, "CONSTRAINT "+d.QuoteIdent("uk_"+fi.ColumnName())+
				" UNIQUE ("+d.QuoteIdent(fi.ColumnName())+")")
		}
		if fi.ForeignKey == "" {
			continue
		}
		refTable, refCol, ok := model.ForeignKeyTable(fi.ForeignKey)
		if !ok {
			continue
		}
		var fk strings.Builder
		fk.WriteString("CONSTRAINT ")
		fk.WriteString(d.QuoteIdent("fk_" + m.TableName() + "_" + fi.ColumnName()))
		fk.WriteString(" FOREIGN KEY (")
		fk.WriteString(d.QuoteIdent(fi.ColumnName()))
		fk.WriteString(") REFERENCES ")
		fk.WriteString(d.QuoteIdent(refTable))
		fk.WriteString(" (")
		fk.WriteString(d.QuoteIdent(refCol))
		fk.WriteString(")")
		if fi.OnDelete != "" {
			fk.WriteString(" ON DELETE ")
			fk.WriteString(string(fi.OnDelete))
		}
		if fi.OnUpdate != "" {
			fk.WriteString(" ON UPDATE ")
			fk.WriteString(string(fi.OnUpdate))
		}
		out = append(out, fk.String())
	}
	return out
}

// pkIsInlineAuto reports whether the primary key was already rendered
// inline on a SQLite auto-increment column.
func pkIsInlineAuto(d dialect.Dialect, m model.Model) bool {
	if d != dialect.SQLite {
		return false
	}
	pk := m.PrimaryKey()
	if len(pk) != 1 {
		return false
	}
	fi := model.FieldByColumn(m, pk[0])
	return fi != nil && fi.AutoIncrement
}

// CreateIndex emits one secondary index.
type CreateIndex struct {
	name        string
	table       string
	columns     []string
	unique      bool
	ifNotExists bool
}

// NewCreateIndex starts a CREATE INDEX.
func NewCreateIndex(name, table string, columns ...string) CreateIndex {
	return CreateIndex{name: name, table: table, columns: columns}
}

// Unique makes it a UNIQUE index.
func (c CreateIndex) Unique() CreateIndex {
	c.unique = true
	return c
}

// IfNotExists adds IF NOT EXISTS.
func (c CreateIndex) IfNotExists() CreateIndex {
	c.ifNotExists = true
	return c
}

// Build renders the statement for d.
func (c CreateIndex) Build(d dialect.Dialect) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if c.unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if c.ifNotExists && d != dialect.MySQL {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdent(c.name))
	b.WriteString(" ON ")
	b.WriteString(d.QuoteIdent(c.table))
	b.WriteString(" (")
	for i, col := range c.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(col))
	}
	b.WriteString(")")
	return b.String()
}

// DropTable emits DROP TABLE [IF EXISTS].
type DropTable struct {
	table    string
	ifExists bool
}

// NewDropTable starts a DROP TABLE.
func NewDropTable(table string) DropTable { return DropTable{table: table} }

// IfExists adds IF EXISTS.
func (c DropTable) IfExists() DropTable {
	c.ifExists = true
	return c
}

// Build renders the statement for d.
func (c DropTable) Build(d dialect.Dialect) string {
	var b strings.Builder
	b.WriteString("DROP TABLE ")
	if c.ifExists {
		b.WriteString("IF EXISTS ")
	}
	b.WriteString(d.QuoteIdent(c.table))
	return b.String()
}

// Builder aggregates the DDL for a set of models: CREATE TABLE plus
// the CREATE INDEX statements their fields ask for.
type Builder struct {
	statements []string
}

// NewBuilder returns an empty schema builder.
func NewBuilder() *Builder { return &Builder{} }

// AddModel appends m's table and field-requested indexes.
func (s *Builder) AddModel(d dialect.Dialect, m model.Model) *Builder {
	s.statements = append(s.statements, NewCreateTable(m).IfNotExists().Build(d))
	fields := m.Fields()
	for i := range fields {
		fi := &fields[i]
		if fi.Index == "" {
			continue
		}
		idx := NewCreateIndex(fi.Index, m.TableName(), fi.ColumnName()).IfNotExists()
		if fi.Unique {
			idx = idx.Unique()
		}
		s.statements = append(s.statements, idx.Build(d))
	}
	return s
}

// Statements returns the accumulated DDL in order.
func (s *Builder) Statements() []string {
	return append([]string(nil), s.statements...)
}
