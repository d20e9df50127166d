package postgres

import (
	"context"
	"fmt"

	"sqlmodel/internal/codec"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
	"sqlmodel/internal/wire/pgwire"
)

// Stmt is a named server-side prepared statement.
type Stmt struct {
	conn       *Conn
	name       string
	sql        string
	paramOIDs  []int32
	fields     []pgwire.FieldDescription
	closed     bool
}

// stmtCache is the bounded per-connection statement cache. Eviction is
// FIFO; the evicted statement is closed on the wire.
type stmtCache struct {
	limit int
	order []string
	byKey map[string]*Stmt
}

func newStmtCache(limit int) *stmtCache {
	return &stmtCache{limit: limit, byKey: make(map[string]*Stmt)}
}

func (sc *stmtCache) get(sql string) *Stmt { return sc.byKey[sql] }

// put stores s and returns a statement to close when the cache is
// over its bound.
func (sc *stmtCache) put(sql string, s *Stmt) *Stmt {
	sc.byKey[sql] = s
	sc.order = append(sc.order, sql)
	if len(sc.order) <= sc.limit {
		return nil
	}
	oldest := sc.order[0]
	sc.order = sc.order[1:]
	victim := sc.byKey[oldest]
	delete(sc.byKey, oldest)
	return victim
}

func (sc *stmtCache) drop(sql string) {
	delete(sc.byKey, sql)
	for i, k := range sc.order {
		if k == sql {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
}

// Prepare parses and describes a named statement, caching it per
// connection.
func (c *Conn) Prepare(ctx context.Context, sql string) (driver.Stmt, error) {
	if err := c.usable(sql); err != nil {
		return nil, err
	}
	if cached := c.stmts.get(sql); cached != nil && !cached.closed {
		return cached, nil
	}
	c.stmtSeq++
	name := fmt.Sprintf("s%d", c.stmtSeq)

	c.writer.Reset()
	c.writer.Parse(name, sql, nil)
	c.writer.Describe('S', name)
	c.writer.Sync()
	if err := c.send(ctx); err != nil {
		return nil, err
	}

	s := &Stmt{conn: c, name: name, sql: sql}
	var firstErr error
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case pgwire.MsgParseComplete:
		case pgwire.MsgParameterDescription:
			oids, err := pgwire.ParseParameterDescription(msg.Body)
			if err != nil {
				return nil, err
			}
			s.paramOIDs = oids
		case pgwire.MsgRowDescription:
			fs, err := pgwire.ParseRowDescription(msg.Body)
			if err != nil {
				return nil, err
			}
			s.fields = fs
		case pgwire.MsgNoData:
			s.fields = nil
		case pgwire.MsgErrorResponse:
			if firstErr == nil {
				firstErr = c.backendError(msg.Body, sql)
			}
		case pgwire.MsgNoticeResponse:
			c.forwardNotice(msg.Body)
		case pgwire.MsgReadyForQuery:
			status, err := pgwire.ParseReadyForQuery(msg.Body)
			if err != nil {
				return nil, err
			}
			c.setTxStatus(status)
			if firstErr != nil {
				return nil, firstErr
			}
			if victim := c.stmts.put(sql, s); victim != nil {
				_ = victim.Close(ctx)
			}
			return s, nil
		default:
			return nil, sqlerr.New(sqlerr.Protocol, "unexpected message %q during prepare", string(msg.Type))
		}
	}
}

// extendedQuery is the one-shot parameterized path through the unnamed
// statement and portal.
func (c *Conn) extendedQuery(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	paramFormats, params, err := c.encodeParams(args, nil)
	if err != nil {
		return nil, err
	}
	c.writer.Reset()
	c.writer.Parse("", sql, nil)
	c.writer.Bind("", "", paramFormats, params, []int16{1})
	c.writer.Describe('P', "")
	c.writer.Execute("", 0)
	c.writer.Sync()
	if err := c.send(ctx); err != nil {
		return nil, err
	}
	c.state = driver.StateInQuery
	defer func() {
		if c.state == driver.StateInQuery {
			c.state = driver.StateReady
		}
	}()
	return c.collectResult(ctx, sql, nil)
}

// encodeParams picks text or binary per parameter from the registry
// and encodes accordingly. NULL is a nil payload (wire length -1). The
// DEFAULT placeholder must never reach here; the builders materialize
// it in SQL text.
func (c *Conn) encodeParams(args []value.Value, oids []int32) ([]int16, [][]byte, error) {
	formats := make([]int16, len(args))
	payloads := make([][]byte, len(args))
	for i, a := range args {
		if a.IsDefault() {
			return nil, nil, sqlerr.New(sqlerr.Serde, "DEFAULT cannot be sent as a parameter")
		}
		oid := codec.PreferredOID(a)
		if oids != nil && i < len(oids) && oids[i] != 0 {
			oid = oids[i]
		}
		// Arrays always travel in text form; their binary layout is
		// element-type dependent and the text form is universal.
		if c.registry.SupportsBinary(oid) && a.Kind() != value.KindArray {
			formats[i] = 1
			p, notNull, err := codec.PgEncodeBinary(a, oid)
			if err != nil {
				return nil, nil, err
			}
			if notNull {
				payloads[i] = p
			}
			continue
		}
		s, notNull, err := codec.PgEncodeText(a)
		if err != nil {
			return nil, nil, err
		}
		if notNull {
			payloads[i] = []byte(s)
		}
	}
	return formats, payloads, nil
}

// ID returns the driver-assigned statement name.
func (s *Stmt) ID() string { return s.name }

// SQL returns the original statement text.
func (s *Stmt) SQL() string { return s.sql }

// ParamCount returns the expected parameter arity.
func (s *Stmt) ParamCount() int { return len(s.paramOIDs) }

// ValidateParams confirms arity before any bytes are sent.
func (s *Stmt) ValidateParams(args []value.Value) error {
	if len(args) != len(s.paramOIDs) {
		return sqlerr.New(sqlerr.Validation,
			"statement %s expects %d parameters, got %d", s.name, len(s.paramOIDs), len(args))
	}
	return nil
}

// Query binds and executes the statement through an unnamed portal.
func (s *Stmt) Query(ctx context.Context, args []value.Value) (*value.Rows, error) {
	if s.closed {
		return nil, sqlerr.New(sqlerr.QueryDatabase, "statement %s is closed", s.name)
	}
	if err := s.ValidateParams(args); err != nil {
		return nil, err
	}
	c := s.conn
	if err := c.usable(s.sql); err != nil {
		return nil, err
	}
	paramFormats, params, err := c.encodeParams(args, s.paramOIDs)
	if err != nil {
		return nil, err
	}
	c.writer.Reset()
	c.writer.Bind("", s.name, paramFormats, params, []int16{1})
	c.writer.Execute("", 0)
	c.writer.Sync()
	if err := c.send(ctx); err != nil {
		return nil, err
	}
	c.state = driver.StateInQuery
	defer func() {
		if c.state == driver.StateInQuery {
			c.state = driver.StateReady
		}
	}()
	return c.collectResult(ctx, s.sql, s.fields)
}

// Exec executes the statement and reports affected rows.
func (s *Stmt) Exec(ctx context.Context, args []value.Value) (*driver.ExecResult, error) {
	rows, err := s.Query(ctx, args)
	if err != nil {
		return nil, err
	}
	return &driver.ExecResult{Affected: rows.Affected}, nil
}

// Close disposes the server-side statement with Close('S') + Sync.
func (s *Stmt) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	c := s.conn
	c.stmts.drop(s.sql)
	if c.State() != driver.StateReady {
		return nil
	}
	c.writer.Reset()
	c.writer.Close('S', s.name)
	c.writer.Sync()
	if err := c.send(ctx); err != nil {
		return err
	}
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return err
		}
		switch msg.Type {
		case pgwire.MsgCloseComplete:
		case pgwire.MsgNoticeResponse:
			c.forwardNotice(msg.Body)
		case pgwire.MsgErrorResponse:
			return c.backendError(msg.Body, s.sql)
		case pgwire.MsgReadyForQuery:
			status, perr := pgwire.ParseReadyForQuery(msg.Body)
			if perr != nil {
				return perr
			}
			c.setTxStatus(status)
			return nil
		default:
			return sqlerr.New(sqlerr.Protocol, "unexpected message %q during close", string(msg.Type))
		}
	}
}
