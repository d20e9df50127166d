// Package driver defines the Connection contract every dialect driver
// implements, the connection configuration and URL parsing, and the
// transaction handle built on top of a connection. A connection is
// single-threaded by contract: exclusive ownership is the concurrency
// mechanism, and per-connection operations are strictly serialized.
package driver

import (
	"context"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// State is the connection lifecycle state machine. Error is absorbing
// on any protocol breach; Disconnected is absorbing after a zero-byte
// read.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateInQuery
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateInQuery:
		return "in-query"
	case StateClosed:
		return "closed"
	default:
		return "error"
	}
}

// TxStatus is the ready-for-query transaction sub-state.
type TxStatus int

const (
	TxIdle TxStatus = iota
	TxInTransaction
	TxInFailed
)

func (t TxStatus) String() string {
	switch t {
	case TxInTransaction:
		return "in-transaction"
	case TxInFailed:
		return "in-failed-transaction"
	default:
		return "idle"
	}
}

// ExecResult reports the outcome of a non-SELECT statement.
type ExecResult struct {
	Affected     int64
	LastInsertID int64
}

// Stmt is a prepared statement owned by its connection and closed with
// it.
type Stmt interface {
	// ID is the driver-assigned statement identifier, unique for the
	// connection's lifetime.
	ID() string
	SQL() string
	ParamCount() int
	// ValidateParams confirms arity before any bytes are sent.
	ValidateParams(args []value.Value) error
	Query(ctx context.Context, args []value.Value) (*value.Rows, error)
	Exec(ctx context.Context, args []value.Value) (*ExecResult, error)
	Close(ctx context.Context) error
}

// Conn is the surface shared by the PostgreSQL, MySQL, and SQLite
// drivers. All blocking operations take a context; cancellation
// surfaces as a Cancelled-kind error.
type Conn interface {
	Dialect() dialect.Dialect
	State() State
	TxStatus() TxStatus
	ServerVersion() string

	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args []value.Value) (*value.Rows, error)
	Exec(ctx context.Context, sql string, args []value.Value) (*ExecResult, error)
	Prepare(ctx context.Context, sql string) (Stmt, error)
	// Batch executes statements sequentially, stopping at the first
	// error; the flush plan's batching primitive.
	Batch(ctx context.Context, stmts []BatchStatement) error
	Close(ctx context.Context) error
}

// BatchStatement is one statement of a batch.
type BatchStatement struct {
	SQL  string
	Args []value.Value
}

// Canceler is implemented by drivers that can abort an in-flight query
// over a side channel (PostgreSQL CancelRequest, MySQL KILL QUERY).
type Canceler interface {
	CancelInFlight(ctx context.Context) error
}

// CtxErr maps a context failure into the taxonomy: Cancelled for
// context.Canceled, Timeout for deadline expiry.
func CtxErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.Canceled:
		return sqlerr.Wrap(sqlerr.Cancelled, ctx.Err(), "operation cancelled")
	case context.DeadlineExceeded:
		return sqlerr.Wrap(sqlerr.Timeout, ctx.Err(), "operation timed out")
	default:
		return nil
	}
}

// GuardTxFailed refuses any statement other than ROLLBACK, ABORT, or
// RELEASE on a connection whose transaction is in the failed sub-state.
func GuardTxFailed(c Conn, sql string) error {
	if c.TxStatus() != TxInFailed {
		return nil
	}
	if isRollbackish(sql) {
		return nil
	}
	return sqlerr.New(sqlerr.TxAlreadyRolledBack,
		"transaction is aborted; only ROLLBACK or RELEASE is accepted")
}

func isRollbackish(sql string) bool {
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		rest := sql[i:]
		return hasFoldPrefix(rest, "ROLLBACK") || hasFoldPrefix(rest, "RELEASE") || hasFoldPrefix(rest, "ABORT")
	}
	return false
}

func hasFoldPrefix(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if a >= 'a' && a <= 'z' {
			a -= 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
