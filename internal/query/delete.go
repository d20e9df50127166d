package query

import (
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// DeleteBuilder emits a DELETE. The builder refuses a WHERE-less
// DELETE whenever the target model declares a primary key.
type DeleteBuilder struct {
	table     string
	model     model.Model
	where     []Expr
	hasPK     bool
	returning bool
}

// Delete starts a DELETE against a table.
func Delete(table string) DeleteBuilder { return DeleteBuilder{table: table} }

// DeleteModel starts a DELETE for one instance, keyed by primary-key
// equality.
func DeleteModel(m model.Model) DeleteBuilder {
	return DeleteBuilder{table: m.TableName(), model: m, hasPK: len(m.PrimaryKey()) > 0}
}

// Filter ANDs a predicate into the WHERE clause.
func (b DeleteBuilder) Filter(e Expr) DeleteBuilder {
	b.where = append(b.where, e)
	return b
}

// Returning requests RETURNING *.
func (b DeleteBuilder) Returning() DeleteBuilder {
	b.returning = true
	return b
}

// Build renders for d.
func (b DeleteBuilder) Build(d dialect.Dialect) (string, []value.Value, error) {
	fb := NewFragment(d)
	fb.SQL.WriteString("DELETE FROM ")
	fb.Ident(b.table)

	preds := b.where
	if b.model != nil {
		if pkExpr := pkEquality(b.model); pkExpr != nil {
			preds = append([]Expr{pkExpr}, preds...)
		}
	}
	if len(preds) == 0 && b.hasPK {
		return "", nil, sqlerr.New(sqlerr.Validation,
			"refusing DELETE on %q without a WHERE clause", b.table)
	}
	if len(preds) > 0 {
		fb.SQL.WriteString(" WHERE ")
		And(preds...).Build(fb)
	}
	if b.returning && d != dialect.MySQL {
		fb.SQL.WriteString(" RETURNING *")
	}
	return fb.SQL.String(), fb.Params, nil
}
