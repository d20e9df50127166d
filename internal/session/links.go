package session

import (
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/query"
	"sqlmodel/internal/value"
)

// LinkOp is one m:n join-table mutation: a Link inserts the pair, an
// Unlink deletes it. Link ops carry no object key.
type LinkOp struct {
	Unlink    bool
	Table     string
	LocalCol  string
	LocalVal  value.Value
	RemoteCol string
	RemoteVal value.Value
}

// Link builds an insert op for a join table.
func Link(table, localCol string, localVal value.Value, remoteCol string, remoteVal value.Value) LinkOp {
	return LinkOp{Table: table, LocalCol: localCol, LocalVal: localVal, RemoteCol: remoteCol, RemoteVal: remoteVal}
}

// Unlink builds a delete op for a join table.
func Unlink(table, localCol string, localVal value.Value, remoteCol string, remoteVal value.Value) LinkOp {
	return LinkOp{Unlink: true, Table: table, LocalCol: localCol, LocalVal: localVal, RemoteCol: remoteCol, RemoteVal: remoteVal}
}

// Build renders the op: a two-column INSERT, or a DELETE keyed by both
// foreign columns.
func (op LinkOp) Build(d dialect.Dialect) (string, []value.Value) {
	fb := query.NewFragment(d)
	if op.Unlink {
		fb.SQL.WriteString("DELETE FROM ")
		fb.Ident(op.Table)
		fb.SQL.WriteString(" WHERE ")
		fb.Ident(op.LocalCol)
		fb.SQL.WriteString(" = ")
		fb.Bind(op.LocalVal)
		fb.SQL.WriteString(" AND ")
		fb.Ident(op.RemoteCol)
		fb.SQL.WriteString(" = ")
		fb.Bind(op.RemoteVal)
		return fb.SQL.String(), fb.Params
	}
	fb.SQL.WriteString("INSERT INTO ")
	fb.Ident(op.Table)
	fb.SQL.WriteString(" (")
	fb.Ident(op.LocalCol)
	fb.SQL.WriteString(", ")
	fb.Ident(op.RemoteCol)
	fb.SQL.WriteString(") VALUES (")
	fb.Bind(op.LocalVal)
	fb.SQL.WriteString(", ")
	fb.Bind(op.RemoteVal)
	fb.SQL.WriteByte(')')
	return fb.SQL.String(), fb.Params
}

// LinkSpec declares an m:n relationship: the join table and its two
// foreign columns.
type LinkSpec struct {
	Table     string
	LocalCol  string
	RemoteCol string
}

// ReconcileLinks compares the desired remote-value set against the
// current one and emits Link ops for additions and Unlink ops for
// removals.
func ReconcileLinks(spec LinkSpec, localVal value.Value, current, desired []value.Value) []LinkOp {
	have := make(map[string]value.Value, len(current))
	for _, v := range current {
		have[linkKey(v)] = v
	}
	want := make(map[string]value.Value, len(desired))
	for _, v := range desired {
		want[linkKey(v)] = v
	}
	var ops []LinkOp
	for _, v := range desired {
		if _, ok := have[linkKey(v)]; !ok {
			ops = append(ops, Link(spec.Table, spec.LocalCol, localVal, spec.RemoteCol, v))
		}
	}
	for _, v := range current {
		if _, ok := want[linkKey(v)]; !ok {
			ops = append(ops, Unlink(spec.Table, spec.LocalCol, localVal, spec.RemoteCol, v))
		}
	}
	return ops
}

// linkKey folds kind and rendering so values of different kinds do not
// collide.
func linkKey(v value.Value) string {
	return string(rune(v.Kind())) + "\x1f" + v.String()
}
