package session

import (
	"context"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/model"
	"sqlmodel/internal/query"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// FlushPlan is an ordered, batched execution plan over a connection.
type FlushPlan struct {
	Deletes []*PendingOp
	Inserts []*PendingOp
	Updates []*PendingOp
	Links   []LinkOp
}

// FlushResult counts the rows each phase touched.
type FlushResult struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// Execute runs the plan: delete phase, insert phase, update phase,
// then link-table operations. The first error stops the plan; the
// enclosing transaction must then be rolled back by the caller.
func (p *FlushPlan) Execute(ctx context.Context, conn driver.Conn) (*FlushResult, error) {
	res := &FlushResult{}
	if err := p.executeDeletes(ctx, conn, res); err != nil {
		return res, err
	}
	if err := p.executeInserts(ctx, conn, res); err != nil {
		return res, err
	}
	if err := p.executeUpdates(ctx, conn, res); err != nil {
		return res, err
	}
	if err := p.executeLinks(ctx, conn); err != nil {
		return res, err
	}
	return res, nil
}

// groupByTable splits ops into runs of consecutive ops on one table.
func groupByTable(ops []*PendingOp) [][]*PendingOp {
	var out [][]*PendingOp
	for _, op := range ops {
		if n := len(out); n > 0 && out[n-1][0].Table == op.Table {
			out[n-1] = append(out[n-1], op)
			continue
		}
		out = append(out, []*PendingOp{op})
	}
	return out
}

// executeDeletes batches single-column-PK deletes into IN lists;
// composite keys fall back to per-row deletes.
func (p *FlushPlan) executeDeletes(ctx context.Context, conn driver.Conn, res *FlushResult) error {
	d := conn.Dialect()
	for _, group := range groupByTable(p.Deletes) {
		single := true
		for _, op := range group {
			if len(op.PKColumns) != 1 {
				single = false
				break
			}
		}
		if single && len(group) > 1 {
			pkCol := group[0].PKColumns[0]
			items := make([]any, len(group))
			for i, op := range group {
				items[i] = op.PKValues[0]
			}
			sql, params, err := query.Delete(group[0].Table).
				Filter(query.Col(pkCol).In(items...)).
				Build(d)
			if err != nil {
				return err
			}
			out, err := conn.Exec(ctx, sql, params)
			if err != nil {
				return err
			}
			res.Deleted += out.Affected
			continue
		}
		for _, op := range group {
			sql, params, err := deleteByPK(d, op)
			if err != nil {
				return err
			}
			out, err := conn.Exec(ctx, sql, params)
			if err != nil {
				return err
			}
			res.Deleted += out.Affected
		}
	}
	return nil
}

func deleteByPK(d dialect.Dialect, op *PendingOp) (string, []value.Value, error) {
	if len(op.PKValues) == 0 {
		return "", nil, sqlerr.New(sqlerr.Validation,
			"refusing to delete from %q without primary-key values", op.Table)
	}
	b := query.Delete(op.Table)
	for i, col := range op.PKColumns {
		b = b.Filter(query.Col(col).Eq(op.PKValues[i]))
	}
	return b.Build(d)
}

// executeInserts emits one multi-row statement per table run through
// the driver's batch primitive.
func (p *FlushPlan) executeInserts(ctx context.Context, conn driver.Conn, res *FlushResult) error {
	d := conn.Dialect()
	for _, group := range groupByTable(p.Inserts) {
		models := make([]model.Model, 0, len(group))
		for _, op := range group {
			models = append(models, op.Model)
		}
		stmts := query.InsertMany(models).Build(d)
		batch := make([]driver.BatchStatement, len(stmts))
		for i, s := range stmts {
			batch[i] = driver.BatchStatement{SQL: s.SQL, Args: s.Params}
		}
		if err := conn.Batch(ctx, batch); err != nil {
			return err
		}
		res.Inserted += int64(len(group))
	}
	return nil
}

// executeUpdates runs per-row, since each dirty row may touch
// different columns.
func (p *FlushPlan) executeUpdates(ctx context.Context, conn driver.Conn, res *FlushResult) error {
	d := conn.Dialect()
	for _, op := range p.Updates {
		if len(op.SetColumns) == 0 {
			continue
		}
		b := query.UpdateTable(op.Table)
		for i, col := range op.SetColumns {
			b = b.Set(col, op.SetValues[i])
		}
		if len(op.PKValues) == 0 {
			return sqlerr.New(sqlerr.Validation,
				"refusing to update %q without primary-key values", op.Table)
		}
		for i, col := range op.PKColumns {
			b = b.Filter(query.Col(col).Eq(op.PKValues[i]))
		}
		sql, params := b.Build(d)
		out, err := conn.Exec(ctx, sql, params)
		if err != nil {
			return err
		}
		res.Updated += out.Affected
	}
	return nil
}

// executeLinks runs the link-table operations after the main flush.
func (p *FlushPlan) executeLinks(ctx context.Context, conn driver.Conn) error {
	d := conn.Dialect()
	for _, link := range p.Links {
		sql, params := link.Build(d)
		if _, err := conn.Exec(ctx, sql, params); err != nil {
			return err
		}
	}
	return nil
}
