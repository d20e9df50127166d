package session

import (
	"context"

	"sqlmodel/internal/driver"
	"sqlmodel/internal/model"
	"sqlmodel/internal/query"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// Session owns a connection, an identity map, a change tracker, and a
// unit of work. A session is single-owner: hand it between goroutines,
// never share it.
type Session struct {
	conn    driver.Conn
	idmap   *IdentityMap
	tracker *ChangeTracker
	uow     *UnitOfWork
	tx      *driver.Tx
}

// New wraps an exclusively owned connection.
func New(conn driver.Conn) *Session {
	return &Session{
		conn:    conn,
		idmap:   NewIdentityMap(),
		tracker: NewChangeTracker(),
		uow:     NewUnitOfWork(),
	}
}

// Conn exposes the underlying connection.
func (s *Session) Conn() driver.Conn { return s.conn }

// UnitOfWork exposes the pending-operation buffer.
func (s *Session) UnitOfWork() *UnitOfWork { return s.uow }

// Tracker exposes the change tracker.
func (s *Session) Tracker() *ChangeTracker { return s.tracker }

// InTransaction reports whether a flush transaction is open.
func (s *Session) InTransaction() bool { return s.tx != nil && !s.tx.Finalized() }

// Get returns the identity-mapped object for proto's type and the
// given primary-key values, fetching it when not yet loaded. proto is
// the instance that will be populated on a database hit.
func (s *Session) Get(ctx context.Context, proto model.Model, pk []value.Value) (model.Model, error) {
	key := KeyFor(proto, pk)
	if obj, ok := s.idmap.Get(key); ok {
		return obj, nil
	}
	cols := proto.PrimaryKey()
	if len(cols) != len(pk) {
		return nil, sqlerr.New(sqlerr.Validation,
			"%s has %d primary-key columns, got %d values", proto.TableName(), len(cols), len(pk))
	}
	b := query.Select(proto.TableName())
	for i, c := range cols {
		b = b.Filter(query.Col(c).Eq(pk[i]))
	}
	sql, params := b.Build(s.conn.Dialect())
	rows, err := s.conn.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	row := rows.First()
	if row == nil {
		return nil, sqlerr.New(sqlerr.QueryNotFound, "no %s row for the given key", proto.TableName())
	}
	return s.materialize(proto, row)
}

// Load runs a pre-built query and materializes each row through
// factory, resolving against the identity map and snapshotting fresh
// objects.
func (s *Session) Load(ctx context.Context, factory func() model.Model, sql string, params []value.Value) ([]model.Model, error) {
	rows, err := s.conn.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.Model, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		obj, err := s.materialize(factory(), row)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// materialize populates proto from row, then resolves it against the
// identity map: on a hit the already-loaded object is returned and the
// fresh one discarded; on a miss the fresh object is snapshotted.
func (s *Session) materialize(proto model.Model, row *value.Row) (model.Model, error) {
	if err := proto.LoadRow(row); err != nil {
		return nil, err
	}
	obj, inserted := s.idmap.Resolve(proto)
	if inserted {
		if err := s.tracker.Snapshot(KeyOf(obj), obj); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Add registers obj for INSERT at the next flush and places it in the
// identity map.
func (s *Session) Add(obj model.Model) error {
	if err := model.Validate(obj); err != nil {
		return err
	}
	s.idmap.Put(KeyOf(obj), obj)
	s.uow.RegisterNew(obj)
	return nil
}

// MarkDirtyAuto diffs obj against its snapshot and registers an UPDATE
// only when at least one field changed.
func (s *Session) MarkDirtyAuto(obj model.Model) error {
	key := KeyOf(obj)
	if !s.tracker.IsDirty(key, obj) {
		return nil
	}
	changed, err := s.tracker.ChangedFields(key, obj)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	if err := model.Validate(obj); err != nil {
		return err
	}
	s.uow.RegisterDirty(obj, changed)
	return nil
}

// Delete registers obj for DELETE at the next flush.
func (s *Session) Delete(obj model.Model) {
	s.uow.RegisterDeleted(obj)
}

// Link buffers an m:n link insertion.
func (s *Session) Link(op LinkOp) {
	op.Unlink = false
	s.uow.RegisterLink(op)
}

// Unlink buffers an m:n link removal.
func (s *Session) Unlink(op LinkOp) {
	op.Unlink = true
	s.uow.RegisterLink(op)
}

// Flush opens a transaction when none is active, computes and runs the
// flush plan, refreshes snapshots, and leaves the transaction open for
// Commit or Rollback. A panic during execution rolls the transaction
// back before re-panicking.
func (s *Session) Flush(ctx context.Context) (res *FlushResult, err error) {
	plan, err := s.uow.ComputeFlushPlan()
	if err != nil {
		return nil, err
	}
	if !s.InTransaction() {
		tx, err := driver.Begin(ctx, s.conn, "")
		if err != nil {
			return nil, err
		}
		s.tx = tx
	}
	defer func() {
		if r := recover(); r != nil {
			_ = s.tx.Rollback(ctx)
			s.tx = nil
			panic(r)
		}
	}()
	res, err = plan.Execute(ctx, s.conn)
	if err != nil {
		return res, err
	}
	// Re-snapshot the survivors; deleted objects leave the map.
	for _, op := range plan.Inserts {
		if refreshErr := s.tracker.Refresh(op.Key, op.Model); refreshErr != nil {
			return res, refreshErr
		}
	}
	for _, op := range plan.Updates {
		if refreshErr := s.tracker.Refresh(op.Key, op.Model); refreshErr != nil {
			return res, refreshErr
		}
	}
	for _, op := range plan.Deletes {
		s.idmap.Remove(op.Key)
		s.tracker.Clear(op.Key)
	}
	s.uow.Clear()
	return res, nil
}

// Commit finalizes the open flush transaction and clears the pending
// buckets.
func (s *Session) Commit(ctx context.Context) error {
	if !s.InTransaction() {
		return sqlerr.New(sqlerr.TxAlreadyCommitted, "no transaction to commit")
	}
	if err := s.tx.Commit(ctx); err != nil {
		return err
	}
	s.tx = nil
	s.uow.Clear()
	return nil
}

// Rollback aborts the open flush transaction, discarding pending work
// and every stored snapshot without re-snapshotting.
func (s *Session) Rollback(ctx context.Context) error {
	if !s.InTransaction() {
		return sqlerr.New(sqlerr.TxAlreadyRolledBack, "no transaction to roll back")
	}
	if err := s.tx.Rollback(ctx); err != nil {
		return err
	}
	s.tx = nil
	s.uow.Clear()
	s.tracker.ClearAll()
	return nil
}

// Close rolls back any open transaction and closes the connection.
func (s *Session) Close(ctx context.Context) error {
	if s.InTransaction() {
		_ = s.tx.Rollback(ctx)
		s.tx = nil
	}
	return s.conn.Close(ctx)
}
