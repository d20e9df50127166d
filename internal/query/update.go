package query

import (
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// UpdateBuilder emits an UPDATE. The SET list is the explicit Set
// calls first, then (when a model instance is attached) every non-PK
// column of its row form that is not already set explicitly and, when
// SetOnly was called, is in the allowed list. An empty SET list builds
// empty SQL: the execute is a no-op affecting zero rows.
type UpdateBuilder struct {
	table     string
	model     model.Model
	sets      []setItem
	setOnly   []string
	where     []Expr
	returning bool
}

type setItem struct {
	column string
	val    value.Value
}

// Update starts an UPDATE from a model instance; the default WHERE is
// primary-key equality.
func Update(m model.Model) UpdateBuilder {
	return UpdateBuilder{table: m.TableName(), model: m}
}

// UpdateTable starts a bare UPDATE with no model attached.
func UpdateTable(table string) UpdateBuilder {
	return UpdateBuilder{table: table}
}

// Set adds an explicit assignment.
func (b UpdateBuilder) Set(column string, v any) UpdateBuilder {
	b.sets = append(b.sets, setItem{column: column, val: ToValue(v)})
	return b
}

// SetOnly restricts the model-derived SET columns to fields.
func (b UpdateBuilder) SetOnly(fields ...string) UpdateBuilder {
	b.setOnly = append(b.setOnly, fields...)
	return b
}

// Filter ANDs a predicate into the WHERE clause.
func (b UpdateBuilder) Filter(e Expr) UpdateBuilder {
	b.where = append(b.where, e)
	return b
}

// Returning requests RETURNING *.
func (b UpdateBuilder) Returning() UpdateBuilder {
	b.returning = true
	return b
}

// computeSets merges explicit sets and model-derived columns.
func (b UpdateBuilder) computeSets() []setItem {
	out := append([]setItem(nil), b.sets...)
	if b.model == nil {
		return out
	}
	explicit := make(map[string]bool, len(out))
	for _, s := range out {
		explicit[s.column] = true
	}
	pk := make(map[string]bool)
	for _, k := range b.model.PrimaryKey() {
		pk[k] = true
	}
	var allowed map[string]bool
	if len(b.setOnly) > 0 {
		allowed = make(map[string]bool, len(b.setOnly))
		for _, f := range b.setOnly {
			allowed[f] = true
		}
	}
	for _, f := range b.model.ToRow() {
		if pk[f.Name] || explicit[f.Name] {
			continue
		}
		if allowed != nil && !allowed[f.Name] {
			continue
		}
		fi := model.FieldByColumn(b.model, f.Name)
		if fi != nil && fi.Computed {
			continue
		}
		out = append(out, setItem{column: f.Name, val: f.Value})
	}
	return out
}

// Build renders for d. Empty SET yields ("", nil).
func (b UpdateBuilder) Build(d dialect.Dialect) (string, []value.Value) {
	sets := b.computeSets()
	if len(sets) == 0 {
		return "", nil
	}
	fb := NewFragment(d)
	fb.SQL.WriteString("UPDATE ")
	fb.Ident(b.table)
	fb.SQL.WriteString(" SET ")
	for i, s := range sets {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(s.column)
		fb.SQL.WriteString(" = ")
		fb.Bind(s.val)
	}
	preds := b.where
	if b.model != nil {
		if pkExpr := pkEquality(b.model); pkExpr != nil {
			preds = append([]Expr{pkExpr}, preds...)
		}
	}
	if len(preds) > 0 {
		fb.SQL.WriteString(" WHERE ")
		And(preds...).Build(fb)
	}
	if b.returning && d != dialect.MySQL {
		fb.SQL.WriteString(" RETURNING *")
	}
	return fb.SQL.String(), fb.Params
}

// pkEquality builds the primary-key equality predicate for an
// instance, or nil when the model has no primary key.
func pkEquality(m model.Model) Expr {
	cols := m.PrimaryKey()
	vals := m.PrimaryKeyValue()
	if len(cols) == 0 || len(cols) != len(vals) {
		return nil
	}
	preds := make([]Expr, len(cols))
	for i := range cols {
		preds[i] = Col(cols[i]).Eq(vals[i])
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And(preds...)
}
