package session

import (
	"fmt"
	"sort"
	"strings"

	"sqlmodel/internal/model"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// OpKind discriminates pending operations.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// PendingOp is one buffered mutation, carrying the object key it
// refers to.
type PendingOp struct {
	Kind  OpKind
	Table string
	Key   ObjectKey

	// Insert: Columns/Values are left unset; the row is built from Model.
	// Update: SetColumns/SetValues are the changed columns only.
	Columns []string
	Values  []value.Value

	SetColumns []string
	SetValues  []value.Value

	PKColumns []string
	PKValues  []value.Value

	// Model backs the insert path's DEFAULT-column analysis.
	Model model.Model
}

// CycleError reports a foreign-key cycle; Tables walks the complete
// cycle, first table repeated at the end.
type CycleError struct {
	Tables []string
}

func (e *CycleError) Error() string {
	return "foreign-key cycle detected: " + strings.Join(e.Tables, " -> ")
}

// UnitOfWork buffers new, dirty, and deleted objects and computes the
// dependency-correct flush plan.
type UnitOfWork struct {
	// edges maps a table to the tables its foreign keys reference.
	edges map[string][]string

	inserts []*PendingOp
	updates []*PendingOp
	deletes []*PendingOp

	links []LinkOp
}

// NewUnitOfWork returns an empty unit of work.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{edges: make(map[string][]string)}
}

// RegisterModel records m's table and its foreign-key edges.
func (u *UnitOfWork) RegisterModel(m model.Model) {
	table := m.TableName()
	if _, ok := u.edges[table]; !ok {
		u.edges[table] = nil
	}
	fields := m.Fields()
	for i := range fields {
		ref := fields[i].ForeignKey
		if ref == "" {
			continue
		}
		refTable, _, ok := model.ForeignKeyTable(ref)
		if !ok || refTable == table {
			continue
		}
		if !contains(u.edges[table], refTable) {
			u.edges[table] = append(u.edges[table], refTable)
		}
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// RegisterNew buffers an INSERT for obj.
func (u *UnitOfWork) RegisterNew(obj model.Model) {
	u.RegisterModel(obj)
	u.inserts = append(u.inserts, &PendingOp{
		Kind:  OpInsert,
		Table: obj.TableName(),
		Key:   KeyOf(obj),
		Model: obj,
	})
}

// RegisterDirty buffers an UPDATE touching only changedColumns.
func (u *UnitOfWork) RegisterDirty(obj model.Model, changedColumns []string) {
	u.RegisterModel(obj)
	changed := make(map[string]bool, len(changedColumns))
	for _, c := range changedColumns {
		changed[c] = true
	}
	pkSet := make(map[string]bool)
	for _, c := range obj.PrimaryKey() {
		pkSet[c] = true
	}
	op := &PendingOp{
		Kind:      OpUpdate,
		Table:     obj.TableName(),
		Key:       KeyOf(obj),
		PKColumns: obj.PrimaryKey(),
		PKValues:  obj.PrimaryKeyValue(),
		Model:     obj,
	}
	for _, f := range obj.ToRow() {
		if changed[f.Name] && !pkSet[f.Name] {
			op.SetColumns = append(op.SetColumns, f.Name)
			op.SetValues = append(op.SetValues, f.Value)
		}
	}
	if len(op.SetColumns) == 0 {
		return
	}
	u.updates = append(u.updates, op)
}

// RegisterDeleted buffers a DELETE for obj.
func (u *UnitOfWork) RegisterDeleted(obj model.Model) {
	u.RegisterModel(obj)
	u.deletes = append(u.deletes, &PendingOp{
		Kind:      OpDelete,
		Table:     obj.TableName(),
		Key:       KeyOf(obj),
		PKColumns: obj.PrimaryKey(),
		PKValues:  obj.PrimaryKeyValue(),
		Model:     obj,
	})
}

// RegisterLink buffers a link-table operation, executed after the main
// flush.
func (u *UnitOfWork) RegisterLink(op LinkOp) {
	u.links = append(u.links, op)
}

// Pending reports the bucket sizes (inserted, updated, deleted).
func (u *UnitOfWork) Pending() (int, int, int) {
	return len(u.inserts), len(u.updates), len(u.deletes)
}

// Clear drops every bucket.
func (u *UnitOfWork) Clear() {
	u.inserts, u.updates, u.deletes, u.links = nil, nil, nil, nil
}

// DetectCycle runs a depth-first search with a recursion stack over
// the registered edges and returns the complete cycle path on a
// back-edge, nil otherwise.
func (u *UnitOfWork) DetectCycle() *CycleError {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string

	var visit func(table string) *CycleError
	visit = func(table string) *CycleError {
		color[table] = gray
		stack = append(stack, table)
		for _, next := range u.edges[table] {
			switch color[next] {
			case gray:
				// Back-edge: slice the stack from the cycle entry.
				start := 0
				for i, t := range stack {
					if t == next {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), stack[start:]...), next)
				return &CycleError{Tables: cycle}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[table] = black
		return nil
	}

	tables := make([]string, 0, len(u.edges))
	for t := range u.edges {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		if color[t] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// outDegree counts a table's outgoing foreign-key edges.
func (u *UnitOfWork) outDegree(table string) int {
	return len(u.edges[table])
}

// ComputeFlushPlan orders the buffered operations:
//
//	deletes first, decreasing out-degree (children before parents);
//	inserts next, increasing out-degree (parents before children);
//	updates last, order unconstrained.
//
// It refuses to plan over a cyclic foreign-key graph.
func (u *UnitOfWork) ComputeFlushPlan() (*FlushPlan, error) {
	if cycle := u.DetectCycle(); cycle != nil {
		return nil, sqlerr.Wrap(sqlerr.Schema, cycle, "%s", cycle.Error())
	}
	deletes := append([]*PendingOp(nil), u.deletes...)
	inserts := append([]*PendingOp(nil), u.inserts...)
	updates := append([]*PendingOp(nil), u.updates...)

	sort.SliceStable(deletes, func(i, j int) bool {
		return u.outDegree(deletes[i].Table) > u.outDegree(deletes[j].Table)
	})
	sort.SliceStable(inserts, func(i, j int) bool {
		return u.outDegree(inserts[i].Table) < u.outDegree(inserts[j].Table)
	})

	for _, op := range deletes {
		if len(op.PKValues) == 0 {
			return nil, sqlerr.New(sqlerr.Validation,
				"refusing to delete from %q without primary-key values", op.Table)
		}
	}
	return &FlushPlan{
		Deletes: deletes,
		Inserts: inserts,
		Updates: updates,
		Links:   append([]LinkOp(nil), u.links...),
	}, nil
}

// describeOp renders an op for diagnostics.
func describeOp(op *PendingOp) string {
	switch op.Kind {
	case OpInsert:
		return fmt.Sprintf("INSERT %s", op.Table)
	case OpUpdate:
		return fmt.Sprintf("UPDATE %s (%s)", op.Table, strings.Join(op.SetColumns, ","))
	default:
		return fmt.Sprintf("DELETE %s", op.Table)
	}
}
