package query

import (
	"strconv"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

// SelectBuilder composes a SELECT statement. Built by value; every
// method returns the updated builder.
type SelectBuilder struct {
	table    string
	columns  []string
	where    []Expr
	joins    []JoinClause
	groupBy  []Expr
	having   []Expr
	orderBy  []OrderClause
	distinct bool
	limit    *int64
	offset   *int64
}

// Select starts a SELECT against a table; no columns means *.
func Select(table string, columns ...string) SelectBuilder {
	return SelectBuilder{table: table, columns: columns}
}

// Distinct adds DISTINCT.
func (b SelectBuilder) Distinct() SelectBuilder {
	b.distinct = true
	return b
}

// Filter ANDs a predicate into the WHERE clause.
func (b SelectBuilder) Filter(e Expr) SelectBuilder {
	b.where = append(b.where, e)
	return b
}

// Join appends a join clause.
func (b SelectBuilder) Join(kind JoinKind, table string, on Expr) SelectBuilder {
	b.joins = append(b.joins, JoinClause{Kind: kind, Table: table, On: on})
	return b
}

// GroupBy appends grouping expressions.
func (b SelectBuilder) GroupBy(exprs ...Expr) SelectBuilder {
	b.groupBy = append(b.groupBy, exprs...)
	return b
}

// Having ANDs a post-aggregation predicate.
func (b SelectBuilder) Having(e Expr) SelectBuilder {
	b.having = append(b.having, e)
	return b
}

// OrderBy appends sort keys.
func (b SelectBuilder) OrderBy(orders ...OrderClause) SelectBuilder {
	b.orderBy = append(b.orderBy, orders...)
	return b
}

// Limit caps the row count.
func (b SelectBuilder) Limit(n int64) SelectBuilder {
	b.limit = &n
	return b
}

// Offset skips leading rows.
func (b SelectBuilder) Offset(n int64) SelectBuilder {
	b.offset = &n
	return b
}

// Build renders the statement for d.
func (b SelectBuilder) Build(d dialect.Dialect) (string, []value.Value) {
	fb := NewFragment(d)
	fb.SQL.WriteString("SELECT ")
	if b.distinct {
		fb.SQL.WriteString("DISTINCT ")
	}
	if len(b.columns) == 0 {
		fb.SQL.WriteByte('*')
	} else {
		for i, c := range b.columns {
			if i > 0 {
				fb.SQL.WriteString(", ")
			}
			fb.Ident(c)
		}
	}
	fb.SQL.WriteString(" FROM ")
	fb.Ident(b.table)
	for _, j := range b.joins {
		j.build(fb)
	}
	if len(b.where) > 0 {
		fb.SQL.WriteString(" WHERE ")
		And(b.where...).Build(fb)
	}
	if len(b.groupBy) > 0 {
		fb.SQL.WriteString(" GROUP BY ")
		for i, g := range b.groupBy {
			if i > 0 {
				fb.SQL.WriteString(", ")
			}
			g.Build(fb)
		}
	}
	if len(b.having) > 0 {
		fb.SQL.WriteString(" HAVING ")
		And(b.having...).Build(fb)
	}
	BuildOrderBy(fb, b.orderBy)
	appendLimitOffset(fb, b.limit, b.offset)
	return fb.SQL.String(), fb.Params
}

func appendLimitOffset(fb *Fragment, limit, offset *int64) {
	if limit != nil {
		fb.SQL.WriteString(" LIMIT ")
		fb.SQL.WriteString(strconv.FormatInt(*limit, 10))
	}
	if offset != nil {
		fb.SQL.WriteString(" OFFSET ")
		fb.SQL.WriteString(strconv.FormatInt(*offset, 10))
	}
}

// RawQuery is a hand-written statement with bound parameters.
type RawQuery struct {
	sql    string
	params []value.Value
}

// NewRaw starts a raw query.
func NewRaw(sql string) RawQuery { return RawQuery{sql: sql} }

// Bind appends one parameter.
func (r RawQuery) Bind(v any) RawQuery {
	r.params = append(r.params, ToValue(v))
	return r
}

// BindAll appends parameters in order.
func (r RawQuery) BindAll(vs ...any) RawQuery {
	for _, v := range vs {
		r.params = append(r.params, ToValue(v))
	}
	return r
}

// Build returns the SQL and parameter list.
func (r RawQuery) Build() (string, []value.Value) { return r.sql, r.params }
