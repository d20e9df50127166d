package query

// Clause types shared by the Select, Update, and Delete builders.

// SortDirection orders a sort key.
type SortDirection string

const (
	Asc  SortDirection = "ASC"
	Desc SortDirection = "DESC"
)

// NullsPlacement optionally pins NULL ordering.
type NullsPlacement string

const (
	NullsDefault NullsPlacement = ""
	NullsFirst   NullsPlacement = "NULLS FIRST"
	NullsLast    NullsPlacement = "NULLS LAST"
)

// OrderClause is one ORDER BY key.
type OrderClause struct {
	Expr  Expr
	Dir   SortDirection
	Nulls NullsPlacement
}

// Asc orders by the column ascending.
func (e ColumnExpr) Asc() OrderClause { return OrderClause{Expr: e, Dir: Asc} }

// Desc orders by the column descending.
func (e ColumnExpr) Desc() OrderClause { return OrderClause{Expr: e, Dir: Desc} }

// NullsFirst pins NULLs before non-NULLs.
func (o OrderClause) NullsFirst() OrderClause {
	o.Nulls = NullsFirst
	return o
}

// NullsLast pins NULLs after non-NULLs.
func (o OrderClause) NullsLast() OrderClause {
	o.Nulls = NullsLast
	return o
}

func (o OrderClause) build(fb *Fragment) {
	o.Expr.Build(fb)
	fb.SQL.WriteByte(' ')
	fb.SQL.WriteString(string(o.Dir))
	if o.Nulls != NullsDefault {
		fb.SQL.WriteByte(' ')
		fb.SQL.WriteString(string(o.Nulls))
	}
}

// BuildOrderBy renders a full ORDER BY list into fb.
func BuildOrderBy(fb *Fragment, orders []OrderClause) {
	if len(orders) == 0 {
		return
	}
	fb.SQL.WriteString(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		o.build(fb)
	}
}

// JoinKind selects the join type.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
	FullJoin  JoinKind = "FULL JOIN"
	CrossJoin JoinKind = "CROSS JOIN"
)

// JoinClause joins a table with an ON predicate (absent for CROSS).
type JoinClause struct {
	Kind  JoinKind
	Table string
	On    Expr
}

func (j JoinClause) build(fb *Fragment) {
	fb.SQL.WriteByte(' ')
	fb.SQL.WriteString(string(j.Kind))
	fb.SQL.WriteByte(' ')
	fb.Ident(j.Table)
	if j.On != nil && j.Kind != CrossJoin {
		fb.SQL.WriteString(" ON ")
		j.On.Build(fb)
	}
}
