// Package sqlmodel is an object–relational mapping toolkit with its
// own wire-protocol drivers for PostgreSQL and MySQL, an embedded
// SQLite backend, typed SQL builders, and a unit-of-work session with
// identity mapping and change tracking.
package sqlmodel

import (
	"context"

	"sqlmodel/internal/console"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/driver/mysql"
	"sqlmodel/internal/driver/postgres"
	"sqlmodel/internal/driver/sqlite"
	"sqlmodel/internal/introspect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/session"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"

	_ "sqlmodel/internal/introspect/mysql"      // register introspecters
	_ "sqlmodel/internal/introspect/postgresql" //
	_ "sqlmodel/internal/introspect/sqlite"     //
)

// Re-exported core types.
type (
	Config    = driver.Config
	Conn      = driver.Conn
	Dialect   = dialect.Dialect
	Model     = model.Model
	FieldInfo = model.FieldInfo
	Session   = session.Session
	Value     = value.Value
	Row       = value.Row
	Rows      = value.Rows
	Console   = console.Console
	TableInfo = introspect.TableInfo
)

// Supported dialects.
const (
	Postgres = dialect.Postgres
	MySQL    = dialect.MySQL
	SQLite   = dialect.SQLite
)

// Connect opens a connection for cfg's dialect.
func Connect(ctx context.Context, cfg *Config, cons Console) (Conn, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	switch cfg.Dialect {
	case dialect.Postgres:
		return postgres.Connect(ctx, cfg, cons)
	case dialect.MySQL:
		return mysql.Connect(ctx, cfg, cons)
	case dialect.SQLite:
		return sqlite.Connect(ctx, cfg, cons)
	default:
		return nil, sqlerr.New(sqlerr.Config, "unsupported dialect %q", cfg.Dialect)
	}
}

// Open parses a connection URL and connects.
func Open(ctx context.Context, url string, cons Console) (Conn, error) {
	cfg, err := driver.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, cfg, cons)
}

// OpenSession connects and wraps the connection in a Session.
func OpenSession(ctx context.Context, url string, cons Console) (*Session, error) {
	conn, err := Open(ctx, url, cons)
	if err != nil {
		return nil, err
	}
	return session.New(conn), nil
}

// Get loads one object by primary key through a session's identity
// map, returning the typed instance.
func Get[M any, PM interface {
	Model
	*M
}](ctx context.Context, s *Session, pk ...Value) (PM, error) {
	proto := PM(new(M))
	obj, err := s.Get(ctx, proto, pk)
	if err != nil {
		return nil, err
	}
	typed, ok := obj.(PM)
	if !ok {
		return nil, sqlerr.TypeError(proto.TableName(), "unexpected model type", "")
	}
	return typed, nil
}

// Load runs a built query and materializes typed instances through a
// session.
func Load[M any, PM interface {
	Model
	*M
}](ctx context.Context, s *Session, sql string, params []Value) ([]PM, error) {
	objs, err := s.Load(ctx, func() Model { return PM(new(M)) }, sql, params)
	if err != nil {
		return nil, err
	}
	out := make([]PM, 0, len(objs))
	for _, o := range objs {
		typed, ok := o.(PM)
		if !ok {
			return nil, sqlerr.TypeError("model", "unexpected model type", "")
		}
		out = append(out, typed)
	}
	return out, nil
}

// Introspect describes one table of the connected database.
func Introspect(ctx context.Context, conn Conn, table string) (*TableInfo, error) {
	in, err := introspect.NewIntrospecter(conn.Dialect())
	if err != nil {
		return nil, err
	}
	return in.DescribeTable(ctx, conn, table)
}

// ListTables lists the connected database's tables.
func ListTables(ctx context.Context, conn Conn) ([]string, error) {
	in, err := introspect.NewIntrospecter(conn.Dialect())
	if err != nil {
		return nil, err
	}
	return in.ListTables(ctx, conn)
}

// SetDefaultConsole installs the process-wide console; nil clears it.
func SetDefaultConsole(c Console) { console.SetDefault(c) }
