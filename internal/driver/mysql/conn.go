// Package mysql implements the MySQL driver: handshake and
// authentication, the COM_QUERY text protocol, and the COM_STMT_*
// binary protocol, over the mywire framing layer.
package mysql

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"

	"sqlmodel/internal/codec"
	"sqlmodel/internal/console"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
	"sqlmodel/internal/wire/mywire"
)

// Conn is a single MySQL connection; exclusive ownership is the
// concurrency mechanism.
type Conn struct {
	cfg     *driver.Config
	console console.Console

	sock   net.Conn
	reader *mywire.Reader
	writer *mywire.Writer

	state    driver.State
	txStatus driver.TxStatus

	serverVersion string
	connectionID  uint32
	capabilities  uint32
	status        uint16

	registry *codec.Registry
	stmts    map[string]*Stmt
	stmtKeys []string
}

// Connect dials and drives the handshake to the first OK.
func Connect(ctx context.Context, cfg *driver.Config, cons console.Console) (*Conn, error) {
	c := &Conn{
		cfg:      cfg,
		console:  cons,
		reader:   mywire.NewReader(),
		writer:   mywire.NewWriter(),
		state:    driver.StateConnecting,
		registry: codec.MySQLRegistry(),
		stmts:    make(map[string]*Stmt),
	}
	d := net.Dialer{Timeout: cfg.ConnectTimeout()}
	sock, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		console.Progress(cons, "connect", false)
		c.state = driver.StateError
		return nil, connectErr(err)
	}
	if tc, ok := sock.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c.sock = sock
	console.Progress(cons, "connect", true)

	c.state = driver.StateAuthenticating
	if err := c.handshake(ctx); err != nil {
		c.fail()
		return nil, err
	}
	c.state = driver.StateReady
	console.Progress(cons, "ready", true)
	console.Connected(cons, c.serverVersion, cfg.Host, cfg.Port)
	return c, nil
}

func connectErr(err error) error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return sqlerr.Wrap(sqlerr.ConnDNSResolution, err, "resolve host")
	case strings.Contains(err.Error(), "connection refused"):
		return sqlerr.Wrap(sqlerr.ConnRefused, err, "connection refused")
	case strings.Contains(err.Error(), "timeout"):
		return sqlerr.Wrap(sqlerr.Timeout, err, "connect timed out")
	default:
		return sqlerr.Wrap(sqlerr.ConnConnect, err, "connect")
	}
}

// handshake consumes HandshakeV10, optionally upgrades to TLS, sends
// HandshakeResponse41, and resolves auth-switch / more-data exchanges
// until OK.
func (c *Conn) handshake(ctx context.Context) error {
	pkt, err := c.next(ctx)
	if err != nil {
		return err
	}
	if len(pkt.Payload) > 0 && pkt.Payload[0] == mywire.HeaderErr {
		return c.serverErr(pkt.Payload, "")
	}
	hs, err := mywire.ParseHandshake(pkt.Payload)
	if err != nil {
		return err
	}
	c.serverVersion = hs.ServerVersion
	c.connectionID = hs.ConnectionID

	caps := uint32(mywire.CapLongPassword | mywire.CapProtocol41 |
		mywire.CapSecureConnection | mywire.CapPluginAuth |
		mywire.CapMultiResults)
	if c.cfg.Database != "" {
		caps |= mywire.CapConnectWithDB
	}
	useTLS := c.cfg.SSL.WantsTLS() && hs.Capabilities&mywire.CapSSL != 0
	if c.cfg.SSL.Required() && hs.Capabilities&mywire.CapSSL == 0 {
		return sqlerr.New(sqlerr.ConnSsl, "server does not support TLS but ssl_mode=%s requires it", c.cfg.SSL)
	}
	seq := pkt.Seq + 1
	if useTLS {
		caps |= mywire.CapSSL
		// SSLRequest: the response header without user/auth, then
		// upgrade the stream.
		short := mywire.HandshakeResponse(caps, 0x2d, "", nil, "", "")[:32]
		c.writer.Reset()
		c.writer.SetSeq(seq)
		c.writer.WritePacket(short)
		if err := c.send(ctx); err != nil {
			return err
		}
		tlsCfg := &tls.Config{ServerName: strings.Trim(c.cfg.Host, "[]")}
		if c.cfg.SSL == driver.SSLPrefer || c.cfg.SSL == driver.SSLRequire || c.cfg.SSL == driver.SSLVerifyCa {
			tlsCfg.InsecureSkipVerify = true
		}
		tc := tls.Client(c.sock, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			console.Progress(c.console, "tls", false)
			return sqlerr.Wrap(sqlerr.ConnSsl, err, "tls handshake")
		}
		c.sock = tc
		console.Progress(c.console, "tls", true)
		seq++
	}

	c.capabilities = caps & hs.Capabilities
	plugin := hs.AuthPluginName
	if plugin == "" {
		plugin = "mysql_native_password"
	}
	authResp, err := authResponse(plugin, c.cfg.Password, hs.AuthPluginData)
	if err != nil {
		return err
	}
	resp := mywire.HandshakeResponse(caps, 0x2d, c.cfg.User, authResp, c.cfg.Database, plugin)
	c.writer.Reset()
	c.writer.SetSeq(seq)
	c.writer.WritePacket(resp)
	if err := c.send(ctx); err != nil {
		return err
	}
	return c.finishAuth(ctx, plugin, hs.AuthPluginData)
}

// finishAuth resolves OK / ERR / auth-switch / extra-data packets.
func (c *Conn) finishAuth(ctx context.Context, plugin string, seed []byte) error {
	for {
		pkt, err := c.next(ctx)
		if err != nil {
			return err
		}
		p := pkt.Payload
		if len(p) == 0 {
			return sqlerr.New(sqlerr.Protocol, "empty auth packet")
		}
		switch p[0] {
		case mywire.HeaderOK:
			ok, err := mywire.ParseOK(p)
			if err != nil {
				return err
			}
			c.applyStatus(ok.Status)
			console.Progress(c.console, "authenticate", true)
			return nil
		case mywire.HeaderErr:
			e := c.serverErr(p, "")
			console.Progress(c.console, "authenticate", false)
			return e
		case 0xfe: // auth switch request
			zero := strings.IndexByte(string(p[1:]), 0)
			if zero < 0 {
				return sqlerr.New(sqlerr.Protocol, "malformed auth switch request")
			}
			plugin = string(p[1 : 1+zero])
			seed = p[1+zero+1:]
			if n := len(seed); n > 0 && seed[n-1] == 0 {
				seed = seed[:n-1]
			}
			resp, err := authResponse(plugin, c.cfg.Password, seed)
			if err != nil {
				return err
			}
			c.writer.Reset()
			c.writer.SetSeq(pkt.Seq + 1)
			c.writer.WritePacket(resp)
			if err := c.send(ctx); err != nil {
				return err
			}
		case 0x01: // auth more data (caching_sha2_password)
			if len(p) == 2 && p[1] == 0x03 {
				// Fast-auth success marker; OK follows.
				continue
			}
			if len(p) == 2 && p[1] == 0x04 {
				// Full authentication: only safe over TLS.
				if _, isTLS := c.sock.(*tls.Conn); !isTLS {
					return sqlerr.New(sqlerr.ConnAuthentication,
						"caching_sha2_password full auth requires TLS")
				}
				c.writer.Reset()
				c.writer.SetSeq(pkt.Seq + 1)
				c.writer.WritePacket(append([]byte(c.cfg.Password), 0))
				if err := c.send(ctx); err != nil {
					return err
				}
				continue
			}
			return sqlerr.New(sqlerr.Protocol, "unexpected auth continuation byte 0x%02x", p[1])
		default:
			return sqlerr.New(sqlerr.Protocol, "unexpected auth packet header 0x%02x", p[0])
		}
	}
}

func (c *Conn) applyStatus(status uint16) {
	c.status = status
	if status&mywire.StatusInTrans != 0 {
		c.txStatus = driver.TxInTransaction
	} else {
		c.txStatus = driver.TxIdle
	}
}

func (c *Conn) serverErr(payload []byte, sql string) error {
	e, perr := mywire.ParseErr(payload)
	if perr != nil {
		return perr
	}
	err := sqlerr.QueryError(e.SQLState, e.Message, "", "", sql, 0)
	// A failed statement inside a transaction leaves it poisoned until
	// rollback, mirroring the ready-for-query sub-state.
	if c.txStatus == driver.TxInTransaction {
		c.txStatus = driver.TxInFailed
	}
	return err
}

// Dialect returns dialect.MySQL.
func (c *Conn) Dialect() dialect.Dialect { return dialect.MySQL }

// State returns the connection lifecycle state.
func (c *Conn) State() driver.State { return c.state }

// TxStatus returns the transaction sub-state.
func (c *Conn) TxStatus() driver.TxStatus { return c.txStatus }

// ServerVersion returns the handshake's server version.
func (c *Conn) ServerVersion() string { return c.serverVersion }

// Ping issues COM_PING.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.usable(""); err != nil {
		return err
	}
	c.writer.Reset()
	c.writer.WritePacket(mywire.Ping())
	if err := c.send(ctx); err != nil {
		return err
	}
	pkt, err := c.next(ctx)
	if err != nil {
		return err
	}
	if len(pkt.Payload) > 0 && pkt.Payload[0] == mywire.HeaderErr {
		return c.serverErr(pkt.Payload, "")
	}
	ok, err := mywire.ParseOK(pkt.Payload)
	if err != nil {
		return err
	}
	c.applyStatus(ok.Status)
	return nil
}

// Query runs sql; with args it prepares and executes through the
// binary protocol, without it uses COM_QUERY.
func (c *Conn) Query(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	if err := c.usable(sql); err != nil {
		return nil, err
	}
	start := time.Now()
	var rows *value.Rows
	var err error
	if len(args) > 0 {
		rows, err = c.paramQuery(ctx, sql, args)
	} else {
		rows, err = c.textQuery(ctx, sql)
	}
	if err == nil {
		console.QueryTiming(c.console, sql, time.Since(start), int64(len(rows.Rows)))
	}
	return rows, err
}

// paramQuery runs a one-shot prepared statement.
func (c *Conn) paramQuery(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	return stmt.Query(ctx, args)
}

// textQuery drives COM_QUERY and its text resultset.
func (c *Conn) textQuery(ctx context.Context, sql string) (*value.Rows, error) {
	c.writer.Reset()
	c.writer.WritePacket(mywire.Query(sql))
	if err := c.send(ctx); err != nil {
		return nil, err
	}
	c.state = driver.StateInQuery
	defer func() {
		if c.state == driver.StateInQuery {
			c.state = driver.StateReady
		}
	}()
	return c.readResultSet(ctx, sql, false, nil)
}

// readResultSet reads either an OK packet or a column-count-prefixed
// resultset. binaryRows selects the row decoding; the column
// definitions are always read from the wire, reusing cols' backing
// array when one is passed.
func (c *Conn) readResultSet(ctx context.Context, sql string, binaryRows bool, cols []*mywire.ColumnDefinition) (*value.Rows, error) {
	pkt, err := c.next(ctx)
	if err != nil {
		return nil, err
	}
	p := pkt.Payload
	if len(p) == 0 {
		return nil, sqlerr.New(sqlerr.Protocol, "empty response packet")
	}
	switch p[0] {
	case mywire.HeaderErr:
		return nil, c.serverErr(p, sql)
	case mywire.HeaderOK:
		ok, err := mywire.ParseOK(p)
		if err != nil {
			return nil, err
		}
		c.applyStatus(ok.Status)
		return &value.Rows{
			Header:       value.NewHeader(nil),
			Affected:     int64(ok.AffectedRows),
			LastInsertID: int64(ok.LastInsertID),
		}, nil
	}
	count, _, err := codec.ReadLenencInt(p)
	if err != nil {
		return nil, err
	}
	cols = cols[:0]
	for i := uint64(0); i < count; i++ {
		cp, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		def, err := mywire.ParseColumnDefinition(cp.Payload)
		if err != nil {
			return nil, err
		}
		cols = append(cols, def)
	}
	// EOF after column definitions unless deprecated.
	if c.capabilities&mywire.CapDeprecateEOF == 0 {
		ep, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if !mywire.IsEOF(ep.Payload) {
			return nil, sqlerr.New(sqlerr.Protocol, "expected EOF after column definitions")
		}
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	rows := &value.Rows{Header: value.NewHeader(names)}
	for {
		rp, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		rpp := rp.Payload
		if len(rpp) > 0 && rpp[0] == mywire.HeaderErr {
			return nil, c.serverErr(rpp, sql)
		}
		if mywire.IsEOF(rpp) {
			if ok, err := mywire.ParseOK(rpp); err == nil {
				c.applyStatus(ok.Status)
			}
			return rows, nil
		}
		var vals []value.Value
		if binaryRows {
			vals, err = mywire.ParseBinaryRow(rpp, cols)
		} else {
			vals, err = mywire.ParseTextRow(rpp, cols)
		}
		if err != nil {
			return nil, err
		}
		rows.Append(vals)
	}
}

// Exec runs a statement and reports affected rows and the last insert
// id.
func (c *Conn) Exec(ctx context.Context, sql string, args []value.Value) (*driver.ExecResult, error) {
	rows, err := c.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return &driver.ExecResult{Affected: rows.Affected, LastInsertID: rows.LastInsertID}, nil
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

// CancelInFlight opens a side connection and issues KILL QUERY for
// this connection's id.
func (c *Conn) CancelInFlight(ctx context.Context) error {
	side, err := Connect(ctx, c.cfg, nil)
	if err != nil {
		return err
	}
	defer side.Close(ctx)
	_, err = side.Exec(ctx, "KILL QUERY "+value.FormatInt(int64(c.connectionID)), nil)
	return err
}

// Close sends COM_QUIT best-effort and closes the socket.
func (c *Conn) Close(ctx context.Context) error {
	if c.state == driver.StateClosed {
		return nil
	}
	if c.sock != nil {
		if c.state == driver.StateReady {
			c.writer.Reset()
			c.writer.WritePacket(mywire.Quit())
			_ = c.send(ctx)
		}
		_ = c.sock.Close()
	}
	c.state = driver.StateClosed
	return nil
}

func (c *Conn) fail() {
	c.state = driver.StateError
	if c.sock != nil {
		_ = c.sock.Close()
	}
}

func (c *Conn) usable(sql string) error {
	switch c.state {
	case driver.StateReady:
	case driver.StateDisconnected:
		return sqlerr.New(sqlerr.ConnDisconnected, "connection lost")
	case driver.StateClosed:
		return sqlerr.New(sqlerr.ConnDisconnected, "connection closed")
	default:
		return sqlerr.New(sqlerr.Protocol, "connection not ready (%s)", c.state)
	}
	return driver.GuardTxFailed(c, sql)
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(c.cfg.QueryTimeout())
}

func (c *Conn) send(ctx context.Context) error {
	if err := driver.CtxErr(ctx); err != nil {
		return err
	}
	_ = c.sock.SetWriteDeadline(c.deadline(ctx))
	if _, err := c.sock.Write(c.writer.Bytes()); err != nil {
		return c.ioErr(ctx, err)
	}
	return nil
}

func (c *Conn) next(ctx context.Context) (*mywire.Packet, error) {
	buf := make([]byte, 8192)
	for {
		pkt, err := c.reader.Next()
		if err != nil {
			c.fail()
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		if err := driver.CtxErr(ctx); err != nil {
			return nil, err
		}
		_ = c.sock.SetReadDeadline(c.deadline(ctx))
		n, err := c.sock.Read(buf)
		if err != nil {
			return nil, c.ioErr(ctx, err)
		}
		if n == 0 {
			c.state = driver.StateDisconnected
			return nil, sqlerr.New(sqlerr.ConnDisconnected, "server closed the connection")
		}
		c.reader.Feed(buf[:n])
	}
}

func (c *Conn) ioErr(ctx context.Context, err error) error {
	if cerr := driver.CtxErr(ctx); cerr != nil {
		return cerr
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return sqlerr.Wrap(sqlerr.Timeout, err, "socket deadline exceeded")
	}
	c.state = driver.StateDisconnected
	return sqlerr.Wrap(sqlerr.IO, err, "socket")
}
