// Package sqlite reads the live schema from sqlite_master and the
// table PRAGMAs.
package sqlite

import (
	"context"
	"sort"
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/introspect"
	"sqlmodel/internal/value"
)

func init() {
	introspect.Register(dialect.SQLite, New)
}

type sqliteIntrospecter struct{}

// New returns the SQLite introspecter.
func New() introspect.Introspecter {
	return &sqliteIntrospecter{}
}

func (i *sqliteIntrospecter) ListTables(ctx context.Context, conn driver.Conn) ([]string, error) {
	rows, err := conn.Query(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		s, err := value.AsString(row.Index(0), "")
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (i *sqliteIntrospecter) DescribeTable(ctx context.Context, conn driver.Conn, table string) (*introspect.TableInfo, error) {
	info := &introspect.TableInfo{Name: table}
	createSQL, err := i.createStatement(ctx, conn, table)
	if err != nil {
		return nil, err
	}
	if err := i.columns(ctx, conn, info, createSQL); err != nil {
		return nil, err
	}
	if err := i.foreignKeys(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.indexes(ctx, conn, info); err != nil {
		return nil, err
	}
	i.checks(info, createSQL)
	return info, nil
}

func (i *sqliteIntrospecter) createStatement(ctx context.Context, conn driver.Conn, table string) (string, error) {
	rows, err := conn.Query(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?1`,
		[]value.Value{value.Text(table)})
	if err != nil {
		return "", err
	}
	if row := rows.First(); row != nil {
		s, _ := row.NullString("sql")
		if s != nil {
			return *s, nil
		}
	}
	return "", nil
}

func (i *sqliteIntrospecter) columns(ctx context.Context, conn driver.Conn, info *introspect.TableInfo, createSQL string) error {
	rows, err := conn.Query(ctx,
		"PRAGMA table_info("+conn.Dialect().QuoteIdent(info.Name)+")", nil)
	if err != nil {
		return err
	}
	// pk is the 1-based position of a column inside the primary key.
	type pkCol struct {
		name string
		pos  int64
	}
	var pk []pkCol
	upperCreate := strings.ToUpper(createSQL)
	for _, row := range rows.Rows {
		name, _ := row.String("name")
		sqlType, _ := row.String("type")
		notNull, _ := row.Int64("notnull")
		def, _ := row.NullString("dflt_value")
		pkPos, _ := row.Int64("pk")
		auto := pkPos > 0 && strings.Contains(upperCreate, "AUTOINCREMENT") &&
			strings.Contains(strings.ToUpper(sqlType), "INT")
		info.Columns = append(info.Columns, introspect.ColumnInfo{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      notNull == 0,
			Default:       def,
			PrimaryKey:    pkPos > 0,
			AutoIncrement: auto,
		})
		if pkPos > 0 {
			pk = append(pk, pkCol{name: name, pos: pkPos})
		}
	}
	sort.Slice(pk, func(a, b int) bool { return pk[a].pos < pk[b].pos })
	for _, c := range pk {
		info.PrimaryKey = append(info.PrimaryKey, c.name)
	}
	return nil
}

func (i *sqliteIntrospecter) foreignKeys(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		"PRAGMA foreign_key_list("+conn.Dialect().QuoteIdent(info.Name)+")", nil)
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		col, _ := row.String("from")
		refTable, _ := row.String("table")
		refCol, _ := row.String("to")
		onDelete, _ := row.String("on_delete")
		onUpdate, _ := row.String("on_update")
		info.ForeignKeys = append(info.ForeignKeys, introspect.ForeignKeyInfo{
			Column: col, RefTable: refTable, RefColumn: refCol,
			OnDelete: onDelete, OnUpdate: onUpdate,
		})
	}
	return nil
}

func (i *sqliteIntrospecter) indexes(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		"PRAGMA index_list("+conn.Dialect().QuoteIdent(info.Name)+")", nil)
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("name")
		unique, _ := row.Int64("unique")
		origin, _ := row.String("origin")
		if origin == "pk" || strings.HasPrefix(name, "sqlite_autoindex_") {
			continue
		}
		cols, err := i.indexColumns(ctx, conn, name)
		if err != nil {
			return err
		}
		info.Indexes = append(info.Indexes, introspect.IndexInfo{
			Name: name, Columns: cols, Unique: unique == 1,
		})
	}
	return nil
}

// indexColumns preserves the seqno order reported by index_info.
func (i *sqliteIntrospecter) indexColumns(ctx context.Context, conn driver.Conn, index string) ([]string, error) {
	rows, err := conn.Query(ctx,
		"PRAGMA index_info("+conn.Dialect().QuoteIdent(index)+")", nil)
	if err != nil {
		return nil, err
	}
	type entry struct {
		seq  int64
		name string
	}
	var entries []entry
	for _, row := range rows.Rows {
		seq, _ := row.Int64("seqno")
		name, _ := row.String("name")
		entries = append(entries, entry{seq: seq, name: name})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].seq < entries[b].seq })
	out := make([]string, len(entries))
	for idx, e := range entries {
		out[idx] = e.name
	}
	return out, nil
}

// checks extracts CHECK constraints from the stored CREATE TABLE text;
// SQLite exposes no catalog view for them.
func (i *sqliteIntrospecter) checks(info *introspect.TableInfo, createSQL string) {
	upper := strings.ToUpper(createSQL)
	for from := 0; ; {
		at := strings.Index(upper[from:], "CHECK")
		if at < 0 {
			return
		}
		at += from
		open := strings.IndexByte(createSQL[at:], '(')
		if open < 0 {
			return
		}
		start := at + open
		depth := 0
		end := -1
		for j := start; j < len(createSQL); j++ {
			switch createSQL[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			return
		}
		expr := createSQL[start : end+1]
		info.Checks = append(info.Checks, introspect.CheckInfo{
			Expression: introspect.NormalizeCheck("CHECK" + expr),
		})
		from = end + 1
	}
}
