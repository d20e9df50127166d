// Package sqlite implements the embedded SQLite backend over the
// ncruces/go-sqlite3 database/sql driver (pure-Go, WASM). Parameters
// are 1-indexed on the wire and result columns 0-indexed; temporal
// values round-trip as ISO-8601 text, UUIDs as 16-byte blobs, JSON and
// arrays as text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundles the WASM build

	"sqlmodel/internal/codec"
	"sqlmodel/internal/console"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// Conn is a single SQLite connection: one database/sql connection
// pinned from a single-connection pool so statement and transaction
// state stay on one underlying handle.
type Conn struct {
	cfg     *driver.Config
	console console.Console

	db   *sql.DB
	conn *sql.Conn

	state    driver.State
	txStatus driver.TxStatus

	registry *codec.Registry
	stmtSeq  int
}

// Connect opens (and creates, if needed) the database file.
func Connect(ctx context.Context, cfg *driver.Config, cons console.Console) (*Conn, error) {
	c := &Conn{
		cfg:      cfg,
		console:  cons,
		state:    driver.StateConnecting,
		registry: codec.SQLiteRegistry(),
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		console.Progress(cons, "connect", false)
		return nil, sqlerr.Wrap(sqlerr.ConnConnect, err, "open %s", cfg.Path)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		console.Progress(cons, "connect", false)
		return nil, mapErr(err, "")
	}
	c.db, c.conn = db, conn
	c.state = driver.StateReady
	console.Progress(cons, "connect", true)
	console.Connected(cons, sqlite3.Version(), cfg.Path, 0)
	return c, nil
}

// Dialect returns dialect.SQLite.
func (c *Conn) Dialect() dialect.Dialect { return dialect.SQLite }

// State returns the connection lifecycle state.
func (c *Conn) State() driver.State { return c.state }

// TxStatus returns the tracked transaction sub-state.
func (c *Conn) TxStatus() driver.TxStatus { return c.txStatus }

// ServerVersion returns the linked SQLite library version.
func (c *Conn) ServerVersion() string { return sqlite3.Version() }

// Ping checks the pinned connection.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.usable(""); err != nil {
		return err
	}
	return mapErr(c.conn.PingContext(ctx), "")
}

func (c *Conn) usable(sqlText string) error {
	switch c.state {
	case driver.StateReady:
	case driver.StateClosed:
		return sqlerr.New(sqlerr.ConnDisconnected, "connection closed")
	default:
		return sqlerr.New(sqlerr.Protocol, "connection not ready (%s)", c.state)
	}
	return driver.GuardTxFailed(c, sqlText)
}

// Query runs sql with 1-indexed positional parameters.
func (c *Conn) Query(ctx context.Context, sqlText string, args []value.Value) (*value.Rows, error) {
	if err := c.usable(sqlText); err != nil {
		return nil, err
	}
	bound, err := bindAll(args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := c.conn.QueryContext(ctx, sqlText, bound...)
	if err != nil {
		c.noteFailure(sqlText)
		return nil, mapErr(err, sqlText)
	}
	defer rows.Close()
	out, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	c.noteTxEdge(sqlText)
	console.QueryTiming(c.console, sqlText, time.Since(start), int64(len(out.Rows)))
	return out, nil
}

// Exec runs a statement and reports affected rows and the last rowid.
func (c *Conn) Exec(ctx context.Context, sqlText string, args []value.Value) (*driver.ExecResult, error) {
	if err := c.usable(sqlText); err != nil {
		return nil, err
	}
	bound, err := bindAll(args)
	if err != nil {
		return nil, err
	}
	res, err := c.conn.ExecContext(ctx, sqlText, bound...)
	if err != nil {
		c.noteFailure(sqlText)
		return nil, mapErr(err, sqlText)
	}
	c.noteTxEdge(sqlText)
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &driver.ExecResult{Affected: affected, LastInsertID: lastID}, nil
}

// Batch executes statements sequentially, stopping at the first error.
func (c *Conn) Batch(ctx context.Context, stmts []driver.BatchStatement) error {
	for _, s := range stmts {
		if _, err := c.Exec(ctx, s.SQL, s.Args); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pinned connection and the database handle.
func (c *Conn) Close(ctx context.Context) error {
	if c.state == driver.StateClosed {
		return nil
	}
	c.state = driver.StateClosed
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	return nil
}

// noteTxEdge tracks BEGIN/COMMIT/ROLLBACK so TxStatus mirrors the
// wire drivers' ready-for-query sub-state.
func (c *Conn) noteTxEdge(sqlText string) {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	switch {
	case strings.HasPrefix(head, "BEGIN"):
		c.txStatus = driver.TxInTransaction
	case strings.HasPrefix(head, "COMMIT"), strings.HasPrefix(head, "ROLLBACK TO"):
		if strings.HasPrefix(head, "ROLLBACK TO") {
			c.txStatus = driver.TxInTransaction
			return
		}
		c.txStatus = driver.TxIdle
	case strings.HasPrefix(head, "ROLLBACK"):
		c.txStatus = driver.TxIdle
	}
}

func (c *Conn) noteFailure(sqlText string) {
	if c.txStatus == driver.TxInTransaction {
		c.txStatus = driver.TxInFailed
	}
}

func bindAll(args []value.Value) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if a.IsDefault() {
			return nil, sqlerr.New(sqlerr.Serde, "DEFAULT cannot be sent as a parameter")
		}
		b, err := codec.LiteBind(a)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func scanAll(rows *sql.Rows) (*value.Rows, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, mapErr(err, "")
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, mapErr(err, "")
	}
	declared := make([]string, len(types))
	for i, t := range types {
		declared[i] = t.DatabaseTypeName()
	}
	out := &value.Rows{Header: value.NewHeader(names)}
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapErr(err, "")
		}
		vals := make([]value.Value, len(names))
		for i, r := range raw {
			v, err := codec.LiteUnbind(declared[i], r)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out.Rows = append(out.Rows, value.NewRow(out.Header, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "")
	}
	return out, nil
}

// mapErr normalizes sqlite errors into the taxonomy.
func mapErr(err error, sqlText string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return sqlerr.Wrap(sqlerr.Cancelled, err, "operation cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sqlerr.Wrap(sqlerr.Timeout, err, "operation timed out")
	}
	var se *sqlite3.Error
	if errors.As(err, &se) {
		kind := sqlerr.QueryDatabase
		switch se.Code() {
		case sqlite3.CONSTRAINT:
			kind = sqlerr.QueryConstraint
		case sqlite3.BUSY, sqlite3.LOCKED:
			kind = sqlerr.QueryTimeout
		case sqlite3.INTERRUPT:
			kind = sqlerr.QueryCancelled
		case sqlite3.AUTH, sqlite3.PERM:
			kind = sqlerr.QueryPermission
		case sqlite3.ERROR:
			if strings.Contains(se.Error(), "syntax") {
				kind = sqlerr.QuerySyntax
			}
		}
		e := sqlerr.Wrap(kind, err, "%s", se.Error())
		e.SQL = sqlText
		return e
	}
	e := sqlerr.Wrap(sqlerr.QueryDatabase, err, "sqlite")
	e.SQL = sqlText
	return e
}
