package session

import (
	"context"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// team has no foreign keys; hero references teams.id. Together they
// exercise the flush-ordering rules.
type team struct {
	ID   *int64
	Name string
}

func (t *team) TableName() string    { return "teams" }
func (t *team) PrimaryKey() []string { return []string{"id"} }

func (t *team) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText},
	}
}

func optInt(p *int64) value.Value {
	if p == nil {
		return value.Null()
	}
	return value.BigInt(*p)
}

func (t *team) ToRow() []model.Field {
	return []model.Field{
		{Name: "id", Value: optInt(t.ID)},
		{Name: "name", Value: value.Text(t.Name)},
	}
}

func (t *team) LoadRow(row *value.Row) error {
	id, err := row.NullInt64("id")
	if err != nil {
		return err
	}
	t.ID = id
	name, err := row.String("name")
	if err != nil {
		return err
	}
	t.Name = name
	return nil
}

func (t *team) PrimaryKeyValue() []value.Value { return []value.Value{optInt(t.ID)} }
func (t *team) IsNew() bool                    { return t.ID == nil }

type hero struct {
	ID     *int64
	Name   string
	TeamID *int64
}

func (h *hero) TableName() string    { return "heroes" }
func (h *hero) PrimaryKey() []string { return []string{"id"} }

func (h *hero) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText},
		{Name: "team_id", Type: value.KindBigInt, Nullable: true, ForeignKey: "teams.id"},
	}
}

func (h *hero) ToRow() []model.Field {
	return []model.Field{
		{Name: "id", Value: optInt(h.ID)},
		{Name: "name", Value: value.Text(h.Name)},
		{Name: "team_id", Value: optInt(h.TeamID)},
	}
}

func (h *hero) LoadRow(row *value.Row) error {
	id, err := row.NullInt64("id")
	if err != nil {
		return err
	}
	h.ID = id
	name, err := row.String("name")
	if err != nil {
		return err
	}
	h.Name = name
	teamID, err := row.NullInt64("team_id")
	if err != nil {
		return err
	}
	h.TeamID = teamID
	return nil
}

func (h *hero) PrimaryKeyValue() []value.Value { return []value.Value{optInt(h.ID)} }
func (h *hero) IsNew() bool                    { return h.ID == nil }

func i64(v int64) *int64 { return &v }

// cycleA / cycleB declare mutually referencing foreign keys.
type cycleA struct{ ID int64 }

func (c *cycleA) TableName() string    { return "a" }
func (c *cycleA) PrimaryKey() []string { return []string{"id"} }
func (c *cycleA) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true},
		{Name: "b_id", Type: value.KindBigInt, ForeignKey: "b.id"},
	}
}
func (c *cycleA) ToRow() []model.Field {
	return []model.Field{{Name: "id", Value: value.BigInt(c.ID)}}
}
func (c *cycleA) LoadRow(*value.Row) error       { return nil }
func (c *cycleA) PrimaryKeyValue() []value.Value { return []value.Value{value.BigInt(c.ID)} }
func (c *cycleA) IsNew() bool                    { return false }

type cycleB struct{ ID int64 }

func (c *cycleB) TableName() string    { return "b" }
func (c *cycleB) PrimaryKey() []string { return []string{"id"} }
func (c *cycleB) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true},
		{Name: "a_id", Type: value.KindBigInt, ForeignKey: "a.id"},
	}
}
func (c *cycleB) ToRow() []model.Field {
	return []model.Field{{Name: "id", Value: value.BigInt(c.ID)}}
}
func (c *cycleB) LoadRow(*value.Row) error       { return nil }
func (c *cycleB) PrimaryKeyValue() []value.Value { return []value.Value{value.BigInt(c.ID)} }
func (c *cycleB) IsNew() bool                    { return false }

// fakeConn records every statement and serves canned query results.
type fakeConn struct {
	executed []string
	args     [][]value.Value
	results  map[string]*value.Rows
	txStatus driver.TxStatus
	d        dialect.Dialect
}

func newFakeConn() *fakeConn {
	return &fakeConn{results: make(map[string]*value.Rows), d: dialect.Postgres}
}

func (f *fakeConn) Dialect() dialect.Dialect    { return f.d }
func (f *fakeConn) State() driver.State         { return driver.StateReady }
func (f *fakeConn) TxStatus() driver.TxStatus   { return f.txStatus }
func (f *fakeConn) ServerVersion() string       { return "fake" }
func (f *fakeConn) Ping(context.Context) error  { return nil }
func (f *fakeConn) Close(context.Context) error { return nil }

func (f *fakeConn) Query(ctx context.Context, sql string, args []value.Value) (*value.Rows, error) {
	f.note(sql, args)
	if rows, ok := f.results[sql]; ok {
		return rows, nil
	}
	return &value.Rows{Header: value.NewHeader(nil)}, nil
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args []value.Value) (*driver.ExecResult, error) {
	f.note(sql, args)
	return &driver.ExecResult{Affected: 1}, nil
}

func (f *fakeConn) note(sql string, args []value.Value) {
	f.executed = append(f.executed, sql)
	f.args = append(f.args, args)
	switch sql {
	case "BEGIN":
		f.txStatus = driver.TxInTransaction
	case "COMMIT", "ROLLBACK":
		f.txStatus = driver.TxIdle
	}
}

func (f *fakeConn) Prepare(ctx context.Context, sql string) (driver.Stmt, error) {
	return nil, nil
}

func (f *fakeConn) Batch(ctx context.Context, stmts []driver.BatchStatement) error {
	for _, s := range stmts {
		if _, err := f.Exec(ctx, s.SQL, s.Args); err != nil {
			return err
		}
	}
	return nil
}
