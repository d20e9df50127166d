// Package postgres implements the PostgreSQL driver: startup and
// authentication, the simple and extended query protocols, and
// side-channel cancellation, all over the pgwire framing layer.
package postgres

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"sqlmodel/internal/codec"
	"sqlmodel/internal/console"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
	"sqlmodel/internal/wire/pgwire"
)

// Conn is a single PostgreSQL connection. It is not safe for
// concurrent use; exclusive ownership is the concurrency mechanism.
type Conn struct {
	cfg     *driver.Config
	console console.Console

	sock   net.Conn
	reader *pgwire.Reader
	writer *pgwire.Writer

	state    driver.State
	txStatus driver.TxStatus

	serverVersion string
	params        map[string]string
	processID     int32
	secretKey     int32

	registry *codec.Registry
	stmts    *stmtCache
	stmtSeq  int
	scramSt  *scramState
}

// Connect dials, optionally upgrades to TLS, and drives the startup
// and authentication handshake to the first ReadyForQuery.
func Connect(ctx context.Context, cfg *driver.Config, cons console.Console) (*Conn, error) {
	c := &Conn{
		cfg:      cfg,
		console:  cons,
		reader:   pgwire.NewReader(),
		writer:   pgwire.NewWriter(),
		state:    driver.StateConnecting,
		params:   make(map[string]string),
		registry: codec.PostgresRegistry(),
	}
	c.stmts = newStmtCache(cfg.StmtCacheSize)

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

	if err := c.maybeUpgradeTLS(ctx); err != nil {
		c.fail()
		return nil, err
	}

	c.state = driver.StateAuthenticating
	if err := c.startup(ctx); err != nil {
		c.fail()
		return nil, err
	}
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

// maybeUpgradeTLS negotiates the SSLRequest dance per the configured
// mode: 'S' upgrades, 'N' continues plaintext unless the mode requires
// TLS, anything else is a protocol breach.
func (c *Conn) maybeUpgradeTLS(ctx context.Context) error {
	mode := c.cfg.SSL
	if mode == driver.SSLDisable {
		return nil
	}
	c.writer.Reset()
	c.writer.SSLRequest()
	if err := c.send(ctx); err != nil {
		return err
	}
	one := make([]byte, 1)
	if err := c.readFull(ctx, one); err != nil {
		return err
	}
	switch one[0] {
	case 'S':
		tlsCfg := &tls.Config{ServerName: strings.Trim(c.cfg.Host, "[]")}
		switch mode {
		case driver.SSLPrefer, driver.SSLRequire:
			tlsCfg.InsecureSkipVerify = true
		case driver.SSLVerifyCa:
			tlsCfg.InsecureSkipVerify = true
			tlsCfg.VerifyConnection = verifyChainOnly
		case driver.SSLVerifyFull:
			// Full verification is the crypto/tls default.
		}
		tc := tls.Client(c.sock, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			console.Progress(c.console, "tls", false)
			return sqlerr.Wrap(sqlerr.ConnSsl, err, "tls handshake")
		}
		c.sock = tc
		console.Progress(c.console, "tls", true)
		return nil
	case 'N':
		if mode.Required() {
			return sqlerr.New(sqlerr.ConnSsl, "server refused TLS but ssl_mode=%s requires it", mode)
		}
		return nil
	default:
		return sqlerr.New(sqlerr.Protocol, "unexpected SSLRequest response byte 0x%02x", one[0])
	}
}

// verifyChainOnly checks the certificate chain against the system
// trust store without matching the server name (ssl_mode=verify-ca).
func verifyChainOnly(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return sqlerr.New(sqlerr.ConnSsl, "server presented no certificate")
	}
	opts := x509.VerifyOptions{Intermediates: x509.NewCertPool()}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
		return sqlerr.Wrap(sqlerr.ConnSsl, err, "certificate chain verification")
	}
	return nil
}

// startup sends the StartupMessage and drives authentication through
// BackendKeyData and ParameterStatus to ReadyForQuery.
func (c *Conn) startup(ctx context.Context) error {
	params := map[string]string{
		"user":             c.cfg.User,
		"database":         c.cfg.Database,
		"application_name": c.cfg.ApplicationName,
	}
	c.writer.Reset()
	c.writer.Startup(params, []string{"user", "database", "application_name"})
	if err := c.send(ctx); err != nil {
		return err
	}
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return err
		}
		switch msg.Type {
		case pgwire.MsgAuthentication:
			if err := c.authenticate(ctx, msg.Body); err != nil {
				console.Progress(c.console, "authenticate", false)
				return err
			}
		case pgwire.MsgParameterStatus:
			name, val, err := pgwire.ParseParameterStatus(msg.Body)
			if err != nil {
				return err
			}
			c.params[name] = val
			if name == "server_version" {
				c.serverVersion = val
			}
		case pgwire.MsgBackendKeyData:
			pid, key, err := pgwire.ParseBackendKeyData(msg.Body)
			if err != nil {
				return err
			}
			c.processID, c.secretKey = pid, key
		case pgwire.MsgReadyForQuery:
			status, err := pgwire.ParseReadyForQuery(msg.Body)
			if err != nil {
				return err
			}
			c.setTxStatus(status)
			c.state = driver.StateReady
			console.Progress(c.console, "ready", true)
			return nil
		case pgwire.MsgErrorResponse:
			return c.backendError(msg.Body, "")
		case pgwire.MsgNoticeResponse:
			c.forwardNotice(msg.Body)
		default:
			return sqlerr.New(sqlerr.Protocol, "unexpected startup message %q", string(msg.Type))
		}
	}
}

func (c *Conn) setTxStatus(status byte) {
	switch status {
	case pgwire.TxInBlock:
		c.txStatus = driver.TxInTransaction
	case pgwire.TxFailed:
		c.txStatus = driver.TxInFailed
	default:
		c.txStatus = driver.TxIdle
	}
}

func (c *Conn) backendError(body []byte, sql string) error {
	f := pgwire.ParseErrorFields(body)
	return sqlerr.QueryError(f.Code, f.Message, f.Detail, f.Hint, sql, f.Position)
}

func (c *Conn) forwardNotice(body []byte) {
	f := pgwire.ParseErrorFields(body)
	console.Info(c.console, fmt.Sprintf("notice: %s", f.Message))
}

// Dialect returns dialect.Postgres.
func (c *Conn) Dialect() dialect.Dialect { return dialect.Postgres }

// State returns the connection lifecycle state.
func (c *Conn) State() driver.State { return c.state }

// TxStatus returns the last reported transaction sub-state.
func (c *Conn) TxStatus() driver.TxStatus { return c.txStatus }

// ServerVersion returns the server_version parameter.
func (c *Conn) ServerVersion() string { return c.serverVersion }

// Registry exposes the OID registry (used by introspection).
func (c *Conn) Registry() *codec.Registry { return c.registry }

// Ping issues an empty query round trip.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, "", nil)
	return err
}

// Query runs sql. With args it takes the extended-query path through
// an unnamed statement; without args it uses the simple protocol.
func (c *Conn) Query(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	if err := c.usable(sql); err != nil {
		return nil, err
	}
	start := time.Now()
	var rows *value.Rows
	var err error
	if len(args) > 0 {
		rows, err = c.extendedQuery(ctx, sql, args)
	} else {
		rows, err = c.simpleQuery(ctx, sql)
	}
	if err == nil {
		console.QueryTiming(c.console, sql, time.Since(start), int64(len(rows.Rows)))
	}
	return rows, err
}

// Exec runs a statement and reports the affected-row count.
func (c *Conn) Exec(ctx context.Context, sql string, args []value.Value) (*driver.ExecResult, error) {
	rows, err := c.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return &driver.ExecResult{Affected: rows.Affected}, nil
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

// usable refuses work on dead connections and enforces the failed-
// transaction guard.
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

// simpleQuery drives Query -> RowDescription/DataRow/CommandComplete ->
// ReadyForQuery.
func (c *Conn) simpleQuery(ctx context.Context, sql string) (*value.Rows, error) {
	c.writer.Reset()
	c.writer.Query(sql)
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

// collectResult consumes the backend stream until ReadyForQuery,
// materializing rows. fields, when non-nil, pre-seeds the header for
// the extended path (which received RowDescription at describe time).
func (c *Conn) collectResult(ctx context.Context, sql string, fields []pgwire.FieldDescription) (*value.Rows, error) {
	rows := &value.Rows{}
	if fields != nil {
		rows.Header = headerOf(fields)
	}
	var firstErr error
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case pgwire.MsgRowDescription:
			fs, err := pgwire.ParseRowDescription(msg.Body)
			if err != nil {
				return nil, err
			}
			fields = fs
			rows.Header = headerOf(fs)
		case pgwire.MsgDataRow:
			cols, err := pgwire.ParseDataRow(msg.Body)
			if err != nil {
				return nil, err
			}
			vals, err := c.decodeRow(fields, cols)
			if err != nil {
				return nil, err
			}
			rows.Append(vals)
		case pgwire.MsgCommandComplete:
			_, n := pgwire.ParseCommandComplete(msg.Body)
			rows.Affected = n
		case pgwire.MsgEmptyQueryResponse, pgwire.MsgParseComplete,
			pgwire.MsgBindComplete, pgwire.MsgCloseComplete, pgwire.MsgNoData:
			// Structural acknowledgements.
		case pgwire.MsgPortalSuspended:
			// A resume signal on bounded Execute, not an error.
		case pgwire.MsgErrorResponse:
			if firstErr == nil {
				firstErr = c.backendError(msg.Body, sql)
			}
		case pgwire.MsgNoticeResponse:
			c.forwardNotice(msg.Body)
		case pgwire.MsgParameterStatus:
			name, val, _ := pgwire.ParseParameterStatus(msg.Body)
			c.params[name] = val
		case pgwire.MsgReadyForQuery:
			status, err := pgwire.ParseReadyForQuery(msg.Body)
			if err != nil {
				return nil, err
			}
			c.setTxStatus(status)
			c.state = driver.StateReady
			if firstErr != nil {
				return nil, firstErr
			}
			if rows.Header == nil {
				rows.Header = value.NewHeader(nil)
			}
			return rows, nil
		default:
			return nil, sqlerr.New(sqlerr.Protocol, "unexpected message %q during query", string(msg.Type))
		}
	}
}

func headerOf(fields []pgwire.FieldDescription) *value.ColumnHeader {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return value.NewHeader(names)
}

func (c *Conn) decodeRow(fields []pgwire.FieldDescription, cols [][]byte) ([]value.Value, error) {
	if len(fields) != len(cols) {
		return nil, sqlerr.New(sqlerr.Protocol, "row has %d columns, description has %d", len(cols), len(fields))
	}
	vals := make([]value.Value, len(cols))
	for i, raw := range cols {
		v, err := codec.PgDecode(fields[i].TypeOID, fields[i].Format, raw)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// CancelInFlight opens a side channel and sends CancelRequest with the stored
// backend key to abort an in-flight query.
func (c *Conn) CancelInFlight(ctx context.Context) error {
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout()}
	side, err := d.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		return sqlerr.Wrap(sqlerr.ConnConnect, err, "open cancel channel")
	}
	defer side.Close()
	w := pgwire.NewWriter()
	w.CancelRequest(c.processID, c.secretKey)
	_, err = side.Write(w.Bytes())
	if err != nil {
		return sqlerr.Wrap(sqlerr.IO, err, "send cancel request")
	}
	return nil
}

// Close sends Terminate best-effort and closes the socket.
func (c *Conn) Close(ctx context.Context) error {
	if c.state == driver.StateClosed {
		return nil
	}
	if c.sock != nil {
		if c.state == driver.StateReady {
			c.writer.Reset()
			c.writer.Terminate()
			_ = c.send(ctx) // best-effort
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

// I/O plumbing. Deadlines come from the context when set, else from
// the configured query timeout.

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

// next returns one backend message, feeding socket bytes into the pull
// parser as needed.
func (c *Conn) next(ctx context.Context) (*pgwire.Message, error) {
	buf := make([]byte, 8192)
	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.fail()
			return nil, err
		}
		if msg != nil {
			return msg, nil
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

func (c *Conn) readFull(ctx context.Context, dst []byte) error {
	_ = c.sock.SetReadDeadline(c.deadline(ctx))
	read := 0
	for read < len(dst) {
		n, err := c.sock.Read(dst[read:])
		if err != nil {
			return c.ioErr(ctx, err)
		}
		if n == 0 {
			c.state = driver.StateDisconnected
			return sqlerr.New(sqlerr.ConnDisconnected, "server closed the connection")
		}
		read += n
	}
	return nil
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
