package mysql

import (
	"context"
	"strconv"

	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
	"sqlmodel/internal/wire/mywire"
)

// Stmt is a server-side prepared statement driven through the binary
// protocol.
type Stmt struct {
	conn       *Conn
	id         uint32
	sql        string
	numParams  int
	paramDefs  []*mywire.ColumnDefinition
	columnDefs []*mywire.ColumnDefinition
	closed     bool
}

// Prepare sends COM_STMT_PREPARE and consumes the PREPARE_OK header
// plus parameter and column definition blocks.
func (c *Conn) Prepare(ctx context.Context, sql string) (driver.Stmt, error) {
	if err := c.usable(sql); err != nil {
		return nil, err
	}
	if cached, ok := c.stmts[sql]; ok && !cached.closed {
		return cached, nil
	}
	c.writer.Reset()
	c.writer.WritePacket(mywire.StmtPrepare(sql))
	if err := c.send(ctx); err != nil {
		return nil, err
	}
	pkt, err := c.next(ctx)
	if err != nil {
		return nil, err
	}
	if len(pkt.Payload) > 0 && pkt.Payload[0] == mywire.HeaderErr {
		return nil, c.serverErr(pkt.Payload, sql)
	}
	ok, err := mywire.ParsePrepareOK(pkt.Payload)
	if err != nil {
		return nil, err
	}
	s := &Stmt{conn: c, id: ok.StmtID, sql: sql, numParams: int(ok.NumParams)}
	s.paramDefs, err = c.readDefinitions(ctx, int(ok.NumParams))
	if err != nil {
		return nil, err
	}
	s.columnDefs, err = c.readDefinitions(ctx, int(ok.NumColumns))
	if err != nil {
		return nil, err
	}
	c.cacheStmt(ctx, sql, s)
	return s, nil
}

// readDefinitions consumes n column-definition packets and the
// trailing EOF when the server still sends one.
func (c *Conn) readDefinitions(ctx context.Context, n int) ([]*mywire.ColumnDefinition, error) {
	if n == 0 {
		return nil, nil
	}
	defs := make([]*mywire.ColumnDefinition, 0, n)
	for i := 0; i < n; i++ {
		pkt, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		def, err := mywire.ParseColumnDefinition(pkt.Payload)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if c.capabilities&mywire.CapDeprecateEOF == 0 {
		pkt, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if !mywire.IsEOF(pkt.Payload) {
			return nil, sqlerr.New(sqlerr.Protocol, "expected EOF after definitions")
		}
	}
	return defs, nil
}

// cacheStmt stores s with FIFO eviction, closing the evicted statement.
func (c *Conn) cacheStmt(ctx context.Context, sql string, s *Stmt) {
	c.stmts[sql] = s
	c.stmtKeys = append(c.stmtKeys, sql)
	if len(c.stmtKeys) <= c.cfg.StmtCacheSize {
		return
	}
	oldest := c.stmtKeys[0]
	c.stmtKeys = c.stmtKeys[1:]
	if victim, ok := c.stmts[oldest]; ok {
		delete(c.stmts, oldest)
		_ = victim.Close(ctx)
	}
}

// ID returns the server-assigned statement id.
func (s *Stmt) ID() string { return strconv.FormatUint(uint64(s.id), 10) }

// SQL returns the original statement text.
func (s *Stmt) SQL() string { return s.sql }

// ParamCount returns the expected parameter arity.
func (s *Stmt) ParamCount() int { return s.numParams }

// ValidateParams confirms arity before any bytes are sent.
func (s *Stmt) ValidateParams(args []value.Value) error {
	if len(args) != s.numParams {
		return sqlerr.New(sqlerr.Validation,
			"statement %d expects %d parameters, got %d", s.id, s.numParams, len(args))
	}
	return nil
}

// Query executes through COM_STMT_EXECUTE and reads the binary
// resultset.
func (s *Stmt) Query(ctx context.Context, args []value.Value) (*value.Rows, error) {
	if s.closed {
		return nil, sqlerr.New(sqlerr.QueryDatabase, "statement %d is closed", s.id)
	}
	if err := s.ValidateParams(args); err != nil {
		return nil, err
	}
	c := s.conn
	if err := c.usable(s.sql); err != nil {
		return nil, err
	}
	payload, err := mywire.StmtExecute(s.id, args)
	if err != nil {
		return nil, err
	}
	c.writer.Reset()
	c.writer.WritePacket(payload)
	if err := c.send(ctx); err != nil {
		return nil, err
	}
	c.state = driver.StateInQuery
	defer func() {
		if c.state == driver.StateInQuery {
			c.state = driver.StateReady
		}
	}()
	return c.readResultSet(ctx, s.sql, true, nil)
}

// Exec executes and reports affected rows and the last insert id.
func (s *Stmt) Exec(ctx context.Context, args []value.Value) (*driver.ExecResult, error) {
	rows, err := s.Query(ctx, args)
	if err != nil {
		return nil, err
	}
	return &driver.ExecResult{Affected: rows.Affected, LastInsertID: rows.LastInsertID}, nil
}

// Reset issues COM_STMT_RESET, discarding accumulated long data
// without closing the statement.
func (s *Stmt) Reset(ctx context.Context) error {
	c := s.conn
	c.writer.Reset()
	c.writer.WritePacket(mywire.StmtReset(s.id))
	if err := c.send(ctx); err != nil {
		return err
	}
	pkt, err := c.next(ctx)
	if err != nil {
		return err
	}
	if len(pkt.Payload) > 0 && pkt.Payload[0] == mywire.HeaderErr {
		return c.serverErr(pkt.Payload, s.sql)
	}
	_, err = mywire.ParseOK(pkt.Payload)
	return err
}

// Close sends COM_STMT_CLOSE; the server does not reply.
func (s *Stmt) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	c := s.conn
	delete(c.stmts, s.sql)
	if c.State() != driver.StateReady {
		return nil
	}
	c.writer.Reset()
	c.writer.WritePacket(mywire.StmtClose(s.id))
	return c.send(ctx)
}
