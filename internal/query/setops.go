package query

import (
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// SetOperator combines two sub-queries.
type SetOperator string

const (
	Union        SetOperator = "UNION"
	UnionAll     SetOperator = "UNION ALL"
	Intersect    SetOperator = "INTERSECT"
	IntersectAll SetOperator = "INTERSECT ALL"
	Except       SetOperator = "EXCEPT"
	ExceptAll    SetOperator = "EXCEPT ALL"
)

// SetOpBuilder composes N sub-queries with N-1 operators, plus one
// outer ORDER BY / LIMIT / OFFSET applying to the whole set. Each
// sub-query is wrapped in parentheses; placeholders are renumbered so
// the combined parameter list stays 1-based and contiguous.
type SetOpBuilder struct {
	subs    []Statement
	ops     []SetOperator
	orderBy []OrderClause
	limit   *int64
	offset  *int64
}

// NewSetOp starts a set operation with its first sub-query.
func NewSetOp(sql string, params []value.Value) SetOpBuilder {
	return SetOpBuilder{subs: []Statement{{SQL: sql, Params: params}}}
}

// UnionQuery builds q1 UNION q2 UNION ... from pre-built statements.
func UnionQuery(subs []Statement) SetOpBuilder {
	b := SetOpBuilder{}
	for i, s := range subs {
		b.subs = append(b.subs, s)
		if i > 0 {
			b.ops = append(b.ops, Union)
		}
	}
	return b
}

// Combine appends a sub-query with the given operator.
func (b SetOpBuilder) Combine(op SetOperator, sql string, params []value.Value) SetOpBuilder {
	b.subs = append(b.subs, Statement{SQL: sql, Params: params})
	b.ops = append(b.ops, op)
	return b
}

// OrderBy attaches outer sort keys.
func (b SetOpBuilder) OrderBy(orders ...OrderClause) SetOpBuilder {
	b.orderBy = append(b.orderBy, orders...)
	return b
}

// Limit caps the whole set.
func (b SetOpBuilder) Limit(n int64) SetOpBuilder {
	b.limit = &n
	return b
}

// Offset skips leading rows of the whole set.
func (b SetOpBuilder) Offset(n int64) SetOpBuilder {
	b.offset = &n
	return b
}

// Build renders for d.
func (b SetOpBuilder) Build(d dialect.Dialect) (string, []value.Value, error) {
	if len(b.subs) == 0 {
		return "", nil, sqlerr.New(sqlerr.Validation, "set operation needs at least one sub-query")
	}
	if len(b.ops) != len(b.subs)-1 {
		return "", nil, sqlerr.New(sqlerr.Validation,
			"set operation has %d sub-queries but %d operators", len(b.subs), len(b.ops))
	}
	fb := NewFragment(d)
	for i, sub := range b.subs {
		if i > 0 {
			fb.SQL.WriteByte(' ')
			fb.SQL.WriteString(string(b.ops[i-1]))
			fb.SQL.WriteByte(' ')
		}
		fb.SQL.WriteByte('(')
		fb.SQL.WriteString(RenumberPlaceholders(d, sub.SQL, len(fb.Params)))
		fb.SQL.WriteByte(')')
		fb.Params = append(fb.Params, sub.Params...)
	}
	BuildOrderBy(fb, b.orderBy)
	appendLimitOffset(fb, b.limit, b.offset)
	return fb.SQL.String(), fb.Params, nil
}
