// Package postgresql reads the live schema from the pg_catalog and
// information_schema views.
package postgresql

import (
	"context"
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/introspect"
	"sqlmodel/internal/value"
)

func init() {
	introspect.Register(dialect.Postgres, New)
}

type postgresqlIntrospecter struct{}

// New returns the PostgreSQL introspecter.
func New() introspect.Introspecter {
	return &postgresqlIntrospecter{}
}

func (i *postgresqlIntrospecter) ListTables(ctx context.Context, conn driver.Conn) ([]string, error) {
	rows, err := conn.Query(ctx,
		`SELECT tablename FROM pg_catalog.pg_tables
		 WHERE schemaname = 'public' ORDER BY tablename`, nil)
	if err != nil {
		return nil, err
	}
	return firstColumn(rows)
}

func (i *postgresqlIntrospecter) DescribeTable(ctx context.Context, conn driver.Conn, table string) (*introspect.TableInfo, error) {
	info := &introspect.TableInfo{Name: table}
	if err := i.columns(ctx, conn, info); err != nil {
		return nil, err
	}
	if err := i.primaryKey(ctx, conn, info); err != nil {
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

func (i *postgresqlIntrospecter) columns(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT column_name, data_type, is_nullable, column_default, is_identity
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("column_name")
		sqlType, _ := row.String("data_type")
		nullable, _ := row.String("is_nullable")
		def, _ := row.NullString("column_default")
		identity, _ := row.String("is_identity")
		auto := identity == "YES" ||
			(def != nil && strings.HasPrefix(*def, "nextval("))
		info.Columns = append(info.Columns, introspect.ColumnInfo{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      nullable == "YES",
			Default:       def,
			AutoIncrement: auto,
		})
	}
	return nil
}

func (i *postgresqlIntrospecter) primaryKey(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON kcu.constraint_name = tc.constraint_name
		  AND kcu.table_schema = tc.table_schema
		 WHERE tc.table_schema = 'public'
		   AND tc.table_name = $1
		   AND tc.constraint_type = 'PRIMARY KEY'
		 ORDER BY kcu.ordinal_position`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	pk, err := firstColumn(rows)
	if err != nil {
		return err
	}
	info.PrimaryKey = pk
	pkSet := make(map[string]bool, len(pk))
	for _, c := range pk {
		pkSet[c] = true
	}
	for idx := range info.Columns {
		info.Columns[idx].PrimaryKey = pkSet[info.Columns[idx].Name]
	}
	return nil
}

func (i *postgresqlIntrospecter) foreignKeys(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT tc.constraint_name, kcu.column_name,
		        ccu.table_name AS ref_table, ccu.column_name AS ref_column,
		        rc.delete_rule, rc.update_rule
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON kcu.constraint_name = tc.constraint_name
		  AND kcu.table_schema = tc.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON ccu.constraint_name = tc.constraint_name
		  AND ccu.table_schema = tc.table_schema
		 JOIN information_schema.referential_constraints rc
		   ON rc.constraint_name = tc.constraint_name
		  AND rc.constraint_schema = tc.table_schema
		 WHERE tc.table_schema = 'public'
		   AND tc.table_name = $1
		   AND tc.constraint_type = 'FOREIGN KEY'
		 ORDER BY tc.constraint_name, kcu.ordinal_position`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("constraint_name")
		col, _ := row.String("column_name")
		refTable, _ := row.String("ref_table")
		refCol, _ := row.String("ref_column")
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

func (i *postgresqlIntrospecter) indexes(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	// unnest + ordinality preserves the composite column order.
	rows, err := conn.Query(ctx,
		`SELECT ic.relname AS index_name, ix.indisunique, a.attname, k.ord
		 FROM pg_catalog.pg_class t
		 JOIN pg_catalog.pg_index ix ON ix.indrelid = t.oid
		 JOIN pg_catalog.pg_class ic ON ic.oid = ix.indexrelid
		 JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		 JOIN pg_catalog.pg_attribute a
		   ON a.attrelid = t.oid AND a.attnum = k.attnum
		 WHERE t.relname = $1 AND NOT ix.indisprimary
		 ORDER BY ic.relname, k.ord`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	byName := make(map[string]*introspect.IndexInfo)
	var order []string
	for _, row := range rows.Rows {
		name, _ := row.String("index_name")
		unique, _ := row.Bool("indisunique")
		col, _ := row.String("attname")
		idx, ok := byName[name]
		if !ok {
			idx = &introspect.IndexInfo{Name: name, Unique: unique}
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

func (i *postgresqlIntrospecter) checks(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT con.conname, pg_get_constraintdef(con.oid) AS def
		 FROM pg_catalog.pg_constraint con
		 JOIN pg_catalog.pg_class t ON t.oid = con.conrelid
		 WHERE t.relname = $1 AND con.contype = 'c'
		 ORDER BY con.conname`,
		[]value.Value{value.Text(info.Name)})
	if err != nil {
		return err
	}
	for _, row := range rows.Rows {
		name, _ := row.String("conname")
		def, _ := row.String("def")
		info.Checks = append(info.Checks, introspect.CheckInfo{
			Name:       name,
			Expression: introspect.NormalizeCheck(def),
		})
	}
	return nil
}

func (i *postgresqlIntrospecter) comment(ctx context.Context, conn driver.Conn, info *introspect.TableInfo) error {
	rows, err := conn.Query(ctx,
		`SELECT obj_description(($1::text)::regclass, 'pg_class') AS comment`,
		[]value.Value{value.Text(conn.Dialect().QuoteIdent(info.Name))})
	if err != nil {
		// A missing table comment is not an error worth failing on.
		return nil
	}
	if row := rows.First(); row != nil {
		if c, _ := row.NullString("comment"); c != nil {
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
