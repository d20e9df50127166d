// Package query implements the typed SQL builders: the expression and
// clause model, the CRUD builders, and set-operation composition.
// Builders are by-value and fluent; each build step appends parameters
// to a shared list and emits index-correct, dialect-aware placeholders.
package query

import (
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

// Expr is a node of the expression tree. Build appends the node's SQL
// fragment to fb, registering parameters as it goes.
type Expr interface {
	Build(fb *Fragment)
}

// Fragment accumulates SQL text and its parameter list. The
// placeholder index is 1-based and offset by Start so composed
// builders stay contiguous.
type Fragment struct {
	Dialect dialect.Dialect
	SQL     strings.Builder
	Params  []value.Value
	// Start offsets placeholder numbering for composition; the first
	// parameter of this fragment renders as index Start+1.
	Start int
}

// NewFragment starts a fragment for d.
func NewFragment(d dialect.Dialect) *Fragment {
	return &Fragment{Dialect: d}
}

// Bind registers a parameter and writes its placeholder.
func (fb *Fragment) Bind(v value.Value) {
	fb.Params = append(fb.Params, v)
	fb.SQL.WriteString(fb.Dialect.Placeholder(fb.Start + len(fb.Params)))
}

// Ident writes a quoted identifier, quoting each dotted segment
// separately so "t.c" renders as "t"."c".
func (fb *Fragment) Ident(name string) {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if i > 0 {
			fb.SQL.WriteByte('.')
		}
		if p == "*" {
			fb.SQL.WriteByte('*')
			continue
		}
		fb.SQL.WriteString(fb.Dialect.QuoteIdent(p))
	}
}

// ColumnExpr references a column, optionally table-qualified.
type ColumnExpr struct{ Name string }

// Col references a column by name ("c" or "t.c").
func Col(name string) ColumnExpr { return ColumnExpr{Name: name} }

func (e ColumnExpr) Build(fb *Fragment) { fb.Ident(e.Name) }

// LiteralExpr is a bound constant.
type LiteralExpr struct{ V value.Value }

// Lit binds a Go native or value.Value as a parameter.
func Lit(v any) LiteralExpr { return LiteralExpr{V: ToValue(v)} }

func (e LiteralExpr) Build(fb *Fragment) { fb.Bind(e.V) }

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

// comparison operators render bare; arithmetic and string operators
// keep parentheses to preserve precedence under composition.
var bareOps = map[string]bool{
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (e BinaryExpr) Build(fb *Fragment) {
	wrap := !bareOps[e.Op]
	if wrap {
		fb.SQL.WriteByte('(')
	}
	e.Left.Build(fb)
	fb.SQL.WriteByte(' ')
	fb.SQL.WriteString(e.Op)
	fb.SQL.WriteByte(' ')
	e.Right.Build(fb)
	if wrap {
		fb.SQL.WriteByte(')')
	}
}

// UnaryExpr applies a prefix operator.
type UnaryExpr struct {
	Op    string
	Inner Expr
}

func (e UnaryExpr) Build(fb *Fragment) {
	fb.SQL.WriteString(e.Op)
	fb.SQL.WriteString(" (")
	e.Inner.Build(fb)
	fb.SQL.WriteByte(')')
}

// Comparison and arithmetic helpers on column expressions.

func (e ColumnExpr) Eq(v any) Expr  { return BinaryExpr{e, "=", operand(v)} }
func (e ColumnExpr) Ne(v any) Expr  { return BinaryExpr{e, "<>", operand(v)} }
func (e ColumnExpr) Lt(v any) Expr  { return BinaryExpr{e, "<", operand(v)} }
func (e ColumnExpr) Le(v any) Expr  { return BinaryExpr{e, "<=", operand(v)} }
func (e ColumnExpr) Gt(v any) Expr  { return BinaryExpr{e, ">", operand(v)} }
func (e ColumnExpr) Ge(v any) Expr  { return BinaryExpr{e, ">=", operand(v)} }
func (e ColumnExpr) Add(v any) Expr { return BinaryExpr{e, "+", operand(v)} }
func (e ColumnExpr) Sub(v any) Expr { return BinaryExpr{e, "-", operand(v)} }
func (e ColumnExpr) Mul(v any) Expr { return BinaryExpr{e, "*", operand(v)} }
func (e ColumnExpr) Div(v any) Expr { return BinaryExpr{e, "/", operand(v)} }
func (e ColumnExpr) Mod(v any) Expr { return BinaryExpr{e, "%", operand(v)} }

// Concat is the || string operator.
func (e ColumnExpr) Concat(v any) Expr { return BinaryExpr{e, "||", operand(v)} }

// operand promotes Go natives to bound literals but passes expressions
// through.
func operand(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Lit(v)
}

// And combines predicates conjunctively.
func And(exprs ...Expr) Expr { return logical("AND", exprs) }

// Or combines predicates disjunctively.
func Or(exprs ...Expr) Expr { return logical("OR", exprs) }

// Not negates a predicate.
func Not(e Expr) Expr { return UnaryExpr{Op: "NOT", Inner: e} }

type logicalExpr struct {
	op    string
	exprs []Expr
}

func logical(op string, exprs []Expr) Expr {
	return logicalExpr{op: op, exprs: exprs}
}

func (e logicalExpr) Build(fb *Fragment) {
	if len(e.exprs) == 0 {
		fb.SQL.WriteString("TRUE")
		return
	}
	if len(e.exprs) == 1 {
		e.exprs[0].Build(fb)
		return
	}
	fb.SQL.WriteByte('(')
	for i, sub := range e.exprs {
		if i > 0 {
			fb.SQL.WriteByte(' ')
			fb.SQL.WriteString(e.op)
			fb.SQL.WriteByte(' ')
		}
		sub.Build(fb)
	}
	fb.SQL.WriteByte(')')
}

// InExpr tests membership of a list or subquery.
type InExpr struct {
	Left   Expr
	Items  []value.Value
	Sub    *SubQueryExpr
	Negate bool
}

// In tests membership of a literal list.
func (e ColumnExpr) In(items ...any) Expr {
	vs := make([]value.Value, len(items))
	for i, it := range items {
		vs[i] = ToValue(it)
	}
	return InExpr{Left: e, Items: vs}
}

// InSubquery tests membership of a subquery's result.
func (e ColumnExpr) InSubquery(sql string, params ...value.Value) Expr {
	return InExpr{Left: e, Sub: &SubQueryExpr{SQL: sql, Params: params}}
}

func (e InExpr) Build(fb *Fragment) {
	e.Left.Build(fb)
	if e.Negate {
		fb.SQL.WriteString(" NOT")
	}
	fb.SQL.WriteString(" IN (")
	if e.Sub != nil {
		e.Sub.buildBody(fb)
	} else {
		for i, v := range e.Items {
			if i > 0 {
				fb.SQL.WriteString(", ")
			}
			fb.Bind(v)
		}
	}
	fb.SQL.WriteByte(')')
}

// BetweenExpr is the inclusive range test.
type BetweenExpr struct {
	Inner Expr
	Low   value.Value
	High  value.Value
}

// Between tests low <= e <= high.
func (e ColumnExpr) Between(low, high any) Expr {
	return BetweenExpr{Inner: e, Low: ToValue(low), High: ToValue(high)}
}

func (e BetweenExpr) Build(fb *Fragment) {
	e.Inner.Build(fb)
	fb.SQL.WriteString(" BETWEEN ")
	fb.Bind(e.Low)
	fb.SQL.WriteString(" AND ")
	fb.Bind(e.High)
}

// LikeExpr is LIKE / ILIKE with an optional escape character.
type LikeExpr struct {
	Inner      Expr
	Pattern    string
	Escape     string
	Insensitive bool
}

// Like matches a pattern.
func (e ColumnExpr) Like(pattern string) Expr { return LikeExpr{Inner: e, Pattern: pattern} }

// ILike matches case-insensitively (LOWER() emulation off PostgreSQL).
func (e ColumnExpr) ILike(pattern string) Expr {
	return LikeExpr{Inner: e, Pattern: pattern, Insensitive: true}
}

// WithEscape sets the LIKE escape character.
func (e LikeExpr) WithEscape(esc string) LikeExpr {
	e.Escape = esc
	return e
}

func (e LikeExpr) Build(fb *Fragment) {
	if e.Insensitive && fb.Dialect == dialect.Postgres {
		e.Inner.Build(fb)
		fb.SQL.WriteString(" ILIKE ")
		fb.Bind(value.Text(e.Pattern))
	} else if e.Insensitive {
		fb.SQL.WriteString("LOWER(")
		e.Inner.Build(fb)
		fb.SQL.WriteString(") LIKE LOWER(")
		fb.Bind(value.Text(e.Pattern))
		fb.SQL.WriteByte(')')
	} else {
		e.Inner.Build(fb)
		fb.SQL.WriteString(" LIKE ")
		fb.Bind(value.Text(e.Pattern))
	}
	if e.Escape != "" {
		fb.SQL.WriteString(" ESCAPE ")
		fb.SQL.WriteString(fb.Dialect.QuoteString(e.Escape))
	}
}

// NullCheckExpr is IS [NOT] NULL.
type NullCheckExpr struct {
	Inner  Expr
	Negate bool
}

// IsNull tests for SQL NULL.
func (e ColumnExpr) IsNull() Expr { return NullCheckExpr{Inner: e} }

// IsNotNull tests for non-NULL.
func (e ColumnExpr) IsNotNull() Expr { return NullCheckExpr{Inner: e, Negate: true} }

func (e NullCheckExpr) Build(fb *Fragment) {
	e.Inner.Build(fb)
	if e.Negate {
		fb.SQL.WriteString(" IS NOT NULL")
	} else {
		fb.SQL.WriteString(" IS NULL")
	}
}

// FuncExpr is a function call.
type FuncExpr struct {
	Name string
	Args []Expr
}

// Fn builds a function call over expressions or bound natives.
func Fn(name string, args ...any) FuncExpr {
	out := FuncExpr{Name: name, Args: make([]Expr, len(args))}
	for i, a := range args {
		out.Args[i] = operand(a)
	}
	return out
}

// Comparison helpers so aggregates compose into HAVING predicates.

func (e FuncExpr) Eq(v any) Expr { return BinaryExpr{e, "=", operand(v)} }
func (e FuncExpr) Ne(v any) Expr { return BinaryExpr{e, "<>", operand(v)} }
func (e FuncExpr) Lt(v any) Expr { return BinaryExpr{e, "<", operand(v)} }
func (e FuncExpr) Le(v any) Expr { return BinaryExpr{e, "<=", operand(v)} }
func (e FuncExpr) Gt(v any) Expr { return BinaryExpr{e, ">", operand(v)} }
func (e FuncExpr) Ge(v any) Expr { return BinaryExpr{e, ">=", operand(v)} }

func (e FuncExpr) Build(fb *Fragment) {
	fb.SQL.WriteString(e.Name)
	fb.SQL.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		a.Build(fb)
	}
	fb.SQL.WriteByte(')')
}

// WhenClause is one arm of a CASE expression.
type WhenClause struct {
	Cond Expr
	Then Expr
}

// CaseExpr is a searched CASE.
type CaseExpr struct {
	Whens    []WhenClause
	Fallback Expr
}

// Case starts a searched CASE expression.
func Case() CaseExpr { return CaseExpr{} }

// When appends an arm.
func (e CaseExpr) When(cond Expr, then any) CaseExpr {
	e.Whens = append(e.Whens, WhenClause{Cond: cond, Then: operand(then)})
	return e
}

// Else sets the fallback arm.
func (e CaseExpr) Else(v any) CaseExpr {
	e.Fallback = operand(v)
	return e
}

func (e CaseExpr) Build(fb *Fragment) {
	fb.SQL.WriteString("CASE")
	for _, w := range e.Whens {
		fb.SQL.WriteString(" WHEN ")
		w.Cond.Build(fb)
		fb.SQL.WriteString(" THEN ")
		w.Then.Build(fb)
	}
	if e.Fallback != nil {
		fb.SQL.WriteString(" ELSE ")
		e.Fallback.Build(fb)
	}
	fb.SQL.WriteString(" END")
}

// CastExpr converts to a target SQL type.
type CastExpr struct {
	Inner  Expr
	Target string
}

// Cast renders CAST(e AS target).
func Cast(e Expr, target string) CastExpr { return CastExpr{Inner: e, Target: target} }

func (e CastExpr) Build(fb *Fragment) {
	fb.SQL.WriteString("CAST(")
	e.Inner.Build(fb)
	fb.SQL.WriteString(" AS ")
	fb.SQL.WriteString(e.Target)
	fb.SQL.WriteByte(')')
}

// SubQueryExpr embeds pre-built SQL with its own parameters, renumbered
// into the outer fragment.
type SubQueryExpr struct {
	SQL    string
	Params []value.Value
}

// SubQuery wraps pre-built SQL as an expression.
func SubQuery(sql string, params ...value.Value) SubQueryExpr {
	return SubQueryExpr{SQL: sql, Params: params}
}

func (e SubQueryExpr) Build(fb *Fragment) {
	fb.SQL.WriteByte('(')
	e.buildBody(fb)
	fb.SQL.WriteByte(')')
}

// buildBody splices the subquery's SQL, renumbering its placeholders
// to stay contiguous with the outer parameter list.
func (e SubQueryExpr) buildBody(fb *Fragment) {
	fb.SQL.WriteString(RenumberPlaceholders(fb.Dialect, e.SQL, fb.Start+len(fb.Params)))
	fb.Params = append(fb.Params, e.Params...)
}

// RawExpr splices a SQL fragment verbatim.
type RawExpr struct{ SQL string }

// Raw embeds a fragment as-is; the caller owns its correctness.
func Raw(sql string) RawExpr { return RawExpr{SQL: sql} }

func (e RawExpr) Build(fb *Fragment) { fb.SQL.WriteString(e.SQL) }
