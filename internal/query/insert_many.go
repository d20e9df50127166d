package query

import (
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// InsertManyBuilder emits bulk INSERTs. On PostgreSQL and MySQL the
// whole input becomes one multi-row VALUES statement; on SQLite the
// input is partitioned into contiguous runs whose effective column
// sets agree, because DEFAULT-column omission differs per row.
type InsertManyBuilder struct {
	models    []model.Model
	returning bool
	conflict  conflictAction
	updateCols []string
}

// InsertMany starts a bulk INSERT.
func InsertMany(models []model.Model) InsertManyBuilder {
	return InsertManyBuilder{models: models}
}

// Returning requests RETURNING *.
func (b InsertManyBuilder) Returning() InsertManyBuilder {
	b.returning = true
	return b
}

// OnConflictDoNothing appends ON CONFLICT DO NOTHING.
func (b InsertManyBuilder) OnConflictDoNothing() InsertManyBuilder {
	b.conflict = conflictDoNothing
	return b
}

// OnConflictDoUpdate upserts on the primary key.
func (b InsertManyBuilder) OnConflictDoUpdate(cols ...string) InsertManyBuilder {
	b.conflict = conflictDoUpdate
	b.updateCols = cols
	return b
}

// unionColumns selects the bulk column set: every auto-increment field
// plus each non-auto column that is non-Null in at least one row.
func unionColumns(models []model.Model) []string {
	if len(models) == 0 {
		return nil
	}
	first := models[0]
	var out []string
	for i := range first.Fields() {
		fi := &first.Fields()[i]
		if fi.Computed {
			continue
		}
		if fi.AutoIncrement {
			out = append(out, fi.ColumnName())
			continue
		}
		for _, m := range models {
			if cellValue(m, fi.ColumnName()).IsNull() {
				continue
			}
			out = append(out, fi.ColumnName())
			break
		}
	}
	return out
}

func cellValue(m model.Model, column string) value.Value {
	for _, f := range m.ToRow() {
		if f.Name == column {
			return f.Value
		}
	}
	return value.Null()
}

// Build renders the statement(s) for d. PostgreSQL and MySQL always
// produce exactly one statement; SQLite may produce several.
func (b InsertManyBuilder) Build(d dialect.Dialect) []Statement {
	if len(b.models) == 0 {
		return nil
	}
	if d == dialect.SQLite {
		return b.buildRuns(d)
	}
	return []Statement{b.buildMultiRow(d)}
}

// Statement is one emitted SQL string with its parameters.
type Statement struct {
	SQL    string
	Params []value.Value
}

func (b InsertManyBuilder) buildMultiRow(d dialect.Dialect) Statement {
	cols := unionColumns(b.models)
	first := b.models[0]
	fb := NewFragment(d)
	fb.SQL.WriteString("INSERT INTO ")
	fb.Ident(first.TableName())
	fb.SQL.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(c)
	}
	fb.SQL.WriteString(") VALUES ")
	for r, m := range b.models {
		if r > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.SQL.WriteByte('(')
		for i, c := range cols {
			if i > 0 {
				fb.SQL.WriteString(", ")
			}
			fi := model.FieldByColumn(m, c)
			v := cellValue(m, c)
			if v.IsDefault() || (fi != nil && fi.AutoIncrement && v.IsNull()) {
				fb.SQL.WriteString("DEFAULT")
				continue
			}
			fb.Bind(v)
		}
		fb.SQL.WriteByte(')')
	}
	ins := Insert(first)
	ins.conflict = b.conflict
	ins.updateCols = b.updateCols
	ins.appendConflict(fb, d, cols)
	if b.returning && d != dialect.MySQL {
		fb.SQL.WriteString(" RETURNING *")
	}
	return Statement{SQL: fb.SQL.String(), Params: fb.Params}
}

// buildRuns partitions rows into contiguous runs sharing an effective
// column set and emits one statement per run; an all-defaults row
// becomes DEFAULT VALUES.
func (b InsertManyBuilder) buildRuns(d dialect.Dialect) []Statement {
	var out []Statement
	var runCols []string
	var run []model.Model

	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(runCols) == 0 {
			for _, m := range run {
				out = append(out, b.buildRun(d, nil, []model.Model{m}))
			}
		} else {
			out = append(out, b.buildRun(d, runCols, run))
		}
		run = nil
	}
	for _, m := range b.models {
		cols := effectiveColumns(m)
		if run != nil && !sameColumns(runCols, cols) {
			flush()
		}
		if run == nil {
			runCols = cols
		}
		run = append(run, m)
	}
	flush()
	return out
}

// effectiveColumns is the per-row column set after DEFAULT omission.
func effectiveColumns(m model.Model) []string {
	var out []string
	for _, c := range analyzeRow(m) {
		if !c.isDefault {
			out = append(out, c.column)
		}
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (b InsertManyBuilder) buildRun(d dialect.Dialect, cols []string, run []model.Model) Statement {
	fb := NewFragment(d)
	fb.SQL.WriteString("INSERT INTO ")
	fb.Ident(run[0].TableName())
	if len(cols) == 0 {
		fb.SQL.WriteString(" DEFAULT VALUES")
		if b.returning {
			fb.SQL.WriteString(" RETURNING *")
		}
		return Statement{SQL: fb.SQL.String()}
	}
	fb.SQL.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(c)
	}
	fb.SQL.WriteString(") VALUES ")
	for r, m := range run {
		if r > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.SQL.WriteByte('(')
		for i, c := range cols {
			if i > 0 {
				fb.SQL.WriteString(", ")
			}
			fb.Bind(cellValue(m, c))
		}
		fb.SQL.WriteByte(')')
	}
	ins := Insert(run[0])
	ins.conflict = b.conflict
	ins.updateCols = b.updateCols
	ins.appendConflict(fb, d, cols)
	if b.returning {
		fb.SQL.WriteString(" RETURNING *")
	}
	return Statement{SQL: fb.SQL.String(), Params: fb.Params}
}
