// Package mysql reads the live schema from information_schema.
package mysql

import (
	"context"
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/introspect"
	"sqlmodel/internal/value"
)

func init() {
	introspect.Register(dialect.MySQL, New)
}

type mysqlIntrospecter struct{}

// New returns the MySQL introspecter.
func New() introspect.Introspecter {
	return &mysqlIntrospecter{}
}

func (i *mysqlIntrospecter) ListTables(ctx context.Context, conn driver.Conn) ([]string, error) {
	rows, err := conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, nil)
	if err != nil {
		return nil, err
	}
	return firstColumn(rows)
}

func (i *mysqlIntrospecter) DescribeTable(ctx context.Context, conn driver.Conn, table string) (*introspect.TableInfo, error) {
	info := &introspect.TableInfo{Name: table}
	if err := i.columns(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.foreignKeys(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.indexes(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.checks(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.comment(ctx, conn, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (i *mysqlIntrospecter) columns(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT column_name, column_type, is_nullable, column_default,
		        column_key, extra
		 FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("column_name")
		sqlType, _ := row.String("column_type")
		nullable, _ := row.String("is_nullable")
		def, _ := row.NullString("column_default")
		key, _ := row.String("column_key")
		extra, _ := row.String("extra")
		isPK := key == "PRI"
		info.Columns = append(info.Columns, introspect.ColumnInfo{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      nullable == "YES",
			Default:       def,
			PrimaryKey:    isPK,
			AutoIncrement: strings.Contains(extra, "auto_increment"),
		})
		if isPK {
			info.PrimaryKey = append(info.PrimaryKey, name)
		}
	}
	return nil
}

func (i *mysqlIntrospecter) foreignKeys(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT kcu.constraint_name, kcu.column_name,
		        kcu.referenced_table_name, kcu.referenced_column_name,
		        rc.delete_rule, rc.update_rule
		 FROM information_schema.key_column_usage kcu
		 JOIN information_schema.referential_constraints rc
		   ON rc.constraint_name = kcu.constraint_name
		  AND rc.constraint_schema = kcu.table_schema
		 WHERE kcu.table_schema = DATABASE()
		   AND kcu.table_name = ?
		   AND kcu.referenced_table_name IS NOT NULL
		 ORDER BY kcu.constraint_name, kcu.ordinal_position`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("constraint_name")
		col, _ := row.String("column_name")
		refTable, _ := row.String("referenced_table_name")
		refCol, _ := row.String("referenced_column_name")
		onDelete, _ := row.String("delete_rule")
		onUpdate, _ := row.String("update_rule")
		info.ForeignKeys = append(info.ForeignKeys, introspect.ForeignKeyInfo{
			Name: name, Column: col,
			RefTable: refTable, RefColumn: refCol,
			OnDelete: onDelete, OnUpdate: onUpdate,
		})
	}
	return nil
}

func (i *mysqlIntrospecter) indexes(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	// seq_in_index preserves the composite column order.
	rows, err := conn.Query(ctx,
		`SELECT index_name, non_unique, column_name, seq_in_index
		 FROM information_schema.statistics
		 WHERE table_schema = DATABASE() AND table_name = ?
		   AND index_name <> 'PRIMARY'
		 ORDER BY index_name, seq_in_index`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	byName := make(map[string]*introspect.IndexInfo)
	var order []string
	for _, row := range rows.Rows {
		name, _ := row.String("index_name")
		nonUnique, _ := row.Int64("non_unique")
		col, _ := row.String("column_name")
		idx, ok := byName[name]
		if !ok {
			idx = &introspect.IndexInfo{Name: name, Unique: nonUnique == 0}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, col)
	}
	for _, name := range order {
		info.Indexes = append(info.Indexes, *byName[name])
	}
	return nil
}

func (i *mysqlIntrospecter) checks(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT cc.constraint_name, cc.check_clause
		 FROM information_schema.check_constraints cc
		 JOIN information_schema.table_constraints tc
		   ON tc.constraint_name = cc.constraint_name
		  AND tc.constraint_schema = cc.constraint_schema
		 WHERE tc.table_schema = DATABASE() AND tc.table_name = ?
		 ORDER BY cc.constraint_name`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		// The view only exists on MySQL 8.0.16+.
		return nil
	}
	for _, row := range rows.Rows {
		name, _ := row.String("constraint_name")
		clause, _ := row.String("check_clause")
		info.Checks = append(info.Checks, introspect.CheckInfo{
			Name:       name,
			Expression: introspect.NormalizeCheck(clause),
		})
	}
	return nil
}

func (i *mysqlIntrospecter) comment(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT table_comment FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_name = ?`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	if row := rows.First(); row != nil {
		if c, _ := row.NullString("table_comment"); c != nil {
			info.Comment = *c
		}
	}
	return nil
}

func firstColumn(rows *value.Rows) ([]string, error) {
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
