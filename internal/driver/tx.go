package driver

import (
	"context"

	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// IsolationLevel names the standard transaction isolation levels.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	ReadCommitted   IsolationLevel = "READ COMMITTED"
	RepeatableRead  IsolationLevel = "REPEATABLE READ"
	Serializable    IsolationLevel = "SERIALIZABLE"
)

// Tx is a transaction scoped to a connection. Commit and Rollback
// finalize the handle; any later use fails. Closing an unfinalized
// handle rolls back. Savepoints nest freely but must be released or
// rolled back LIFO.
type Tx struct {
	conn       Conn
	done       bool
	committed  bool
	savepoints []string
}

// Begin opens a transaction. The zero isolation level means the
// server default (READ COMMITTED on the shipped dialects). Nested
// Begin is not supported; use savepoints.
func Begin(ctx context.Context, conn Conn, isolation IsolationLevel) (*Tx, error) {
	if conn.TxStatus() != TxIdle {
		return nil, sqlerr.New(sqlerr.TxNestedNotSupported,
			"connection already has an open transaction; use savepoints")
	}
	if isolation != "" && isolation != ReadCommitted {
		if _, err := conn.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+string(isolation), nil); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Exec(ctx, "BEGIN", nil); err != nil {
		return nil, err
	}
	return &Tx{conn: conn}, nil
}

func (t *Tx) guard() error {
	if !t.done {
		return nil
	}
	if t.committed {
		return sqlerr.New(sqlerr.TxAlreadyCommitted, "transaction already committed")
	}
	return sqlerr.New(sqlerr.TxAlreadyRolledBack, "transaction already rolled back")
}

// Conn exposes the underlying connection for the session's flush plan.
func (t *Tx) Conn() Conn { return t.conn }

// Query runs a query inside the transaction.
func (t *Tx) Query(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.conn.Query(ctx, sql, args)
}

// QueryOne runs a query expected to produce exactly one row.
func (t *Tx) QueryOne(ctx context.Context, sql string, args []value.Value) (*value.Row, error) {
	rows, err := t.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows.Rows) == 0 {
		return nil, sqlerr.New(sqlerr.QueryNotFound, "no rows returned")
	}
	return rows.Rows[0], nil
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, args []value.Value) (*ExecResult, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.conn.Exec(ctx, sql, args)
}

// Savepoint establishes a named savepoint.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if err := t.guard(); err != nil {
		return err
	}
	d := t.conn.Dialect()
	if _, err := t.conn.Exec(ctx, "SAVEPOINT "+d.QuoteIdent(name), nil); err != nil {
		return err
	}
	t.savepoints = append(t.savepoints, name)
	return nil
}

// RollbackTo rewinds to a savepoint, preserving work done before it.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	if err := t.guard(); err != nil {
		return err
	}
	idx := t.findSavepoint(name)
	if idx < 0 {
		return sqlerr.New(sqlerr.TxSavepointNotFound, "savepoint %q not found", name)
	}
	d := t.conn.Dialect()
	if _, err := t.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+d.QuoteIdent(name), nil); err != nil {
		return err
	}
	// The savepoint itself survives a rollback-to; later ones do not.
	t.savepoints = t.savepoints[:idx+1]
	return nil
}

// Release makes a savepoint's work permanent within the transaction.
func (t *Tx) Release(ctx context.Context, name string) error {
	if err := t.guard(); err != nil {
		return err
	}
	idx := t.findSavepoint(name)
	if idx < 0 {
		return sqlerr.New(sqlerr.TxSavepointNotFound, "savepoint %q not found", name)
	}
	d := t.conn.Dialect()
	if _, err := t.conn.Exec(ctx, "RELEASE SAVEPOINT "+d.QuoteIdent(name), nil); err != nil {
		return err
	}
	t.savepoints = t.savepoints[:idx]
	return nil
}

func (t *Tx) findSavepoint(name string) int {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i] == name {
			return i
		}
	}
	return -1
}

// Commit finalizes the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}
	if _, err := t.conn.Exec(ctx, "COMMIT", nil); err != nil {
		return err
	}
	t.done = true
	t.committed = true
	t.savepoints = nil
	return nil
}

// Rollback aborts the transaction. Rolling back twice is an error;
// rolling back after commit is an error.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}
	if _, err := t.conn.Exec(ctx, "ROLLBACK", nil); err != nil {
		return err
	}
	t.done = true
	t.savepoints = nil
	return nil
}

// Close rolls back when the handle was never finalized; a finalized
// handle closes without touching the connection.
func (t *Tx) Close(ctx context.Context) error {
	if t.done {
		return nil
	}
	return t.Rollback(ctx)
}

// Finalized reports whether the handle has been committed or rolled
// back.
func (t *Tx) Finalized() bool { return t.done }
