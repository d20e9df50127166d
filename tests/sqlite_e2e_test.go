// End-to-end tests over the embedded SQLite backend: schema creation,
// session flush/commit, typed builders, and live introspection, all on
// a throwaway database file.
package tests

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/driver"
	"sqlmodel/internal/driver/sqlite"
	"sqlmodel/internal/model"
	"sqlmodel/internal/query"
	"sqlmodel/internal/schema"
	"sqlmodel/internal/session"
	"sqlmodel/internal/value"
)

type team struct {
	ID   *int64
	Name string
}

func (t *team) TableName() string    { return "teams" }
func (t *team) PrimaryKey() []string { return []string{"id"} }
func (t *team) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText, Unique: true},
	}
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
	Age    *int64
	TeamID *int64
}

func (h *hero) TableName() string    { return "heroes" }
func (h *hero) PrimaryKey() []string { return []string{"id"} }
func (h *hero) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText},
		{Name: "age", Type: value.KindBigInt, Nullable: true},
		{Name: "team_id", Type: value.KindBigInt, Nullable: true, ForeignKey: "teams.id"},
	}
}
func (h *hero) ToRow() []model.Field {
	return []model.Field{
		{Name: "id", Value: optInt(h.ID)},
		{Name: "name", Value: value.Text(h.Name)},
		{Name: "age", Value: optInt(h.Age)},
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
	age, err := row.NullInt64("age")
	if err != nil {
		return err
	}
	h.Age = age
	teamID, err := row.NullInt64("team_id")
	if err != nil {
		return err
	}
	h.TeamID = teamID
	return nil
}
func (h *hero) PrimaryKeyValue() []value.Value { return []value.Value{optInt(h.ID)} }
func (h *hero) IsNew() bool                    { return h.ID == nil }

func optInt(p *int64) value.Value {
	if p == nil {
		return value.Null()
	}
	return value.BigInt(*p)
}

func i64(v int64) *int64 { return &v }

func openSQLite(t *testing.T) driver.Conn {
	t.Helper()
	cfg := &driver.Config{
		Dialect: dialect.SQLite,
		Path:    filepath.Join(t.TempDir(), "e2e.db"),
	}
	require.NoError(t, cfg.Normalize())
	conn, err := sqlite.Connect(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func createSchema(t *testing.T, conn driver.Conn) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range schema.NewBuilder().
		AddModel(conn.Dialect(), &team{}).
		AddModel(conn.Dialect(), &hero{}).
		Statements() {
		_, err := conn.Exec(ctx, stmt, nil)
		require.NoError(t, err, "ddl: %s", stmt)
	}
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	s := session.New(conn)
	require.NoError(t, s.Add(&team{ID: i64(1), Name: "Avengers"}))
	require.NoError(t, s.Add(&hero{ID: i64(1), Name: "A", Age: i64(25), TeamID: i64(1)}))
	require.NoError(t, s.Add(&hero{ID: i64(2), Name: "B", Age: i64(45), TeamID: i64(1)}))

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Inserted)
	require.NoError(t, s.Commit(ctx))

	// Read back through a fresh session.
	s2 := session.New(conn)
	obj, err := s2.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	h := obj.(*hero)
	assert.Equal(t, "A", h.Name)
	require.NotNil(t, h.Age)
	assert.Equal(t, int64(25), *h.Age)

	// Identity: the same key yields the same object.
	again, err := s2.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	assert.Same(t, obj, again)
}

func TestSQLiteDirtyUpdateFlow(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	s := session.New(conn)
	require.NoError(t, s.Add(&hero{ID: i64(1), Name: "before", Age: i64(10)}))
	_, err := s.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))

	s2 := session.New(conn)
	obj, err := s2.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	h := obj.(*hero)
	h.Name = "after"
	require.NoError(t, s2.MarkDirtyAuto(h))

	res, err := s2.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated)
	require.NoError(t, s2.Commit(ctx))

	rows, err := conn.Query(ctx, `SELECT "name", "age" FROM "heroes" WHERE "id" = ?1`,
		[]value.Value{value.BigInt(1)})
	require.NoError(t, err)
	row := rows.First()
	require.NotNil(t, row)
	name, err := row.String("name")
	require.NoError(t, err)
	assert.Equal(t, "after", name)
	// Untouched columns survive a partial update.
	age, err := row.Int64("age")
	require.NoError(t, err)
	assert.Equal(t, int64(10), age)
}

func TestSQLiteBulkInsertMixedDefaults(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	models := []model.Model{
		&hero{ID: i64(1), Name: "A", Age: i64(25)},
		&hero{Name: "B", Age: i64(45)},
	}
	stmts := query.InsertMany(models).Build(conn.Dialect())
	require.Len(t, stmts, 2)
	for _, st := range stmts {
		_, err := conn.Exec(ctx, st.SQL, st.Params)
		require.NoError(t, err)
	}

	rows, err := conn.Query(ctx, `SELECT COUNT(*) AS n FROM "heroes"`, nil)
	require.NoError(t, err)
	n, err := rows.First().Int64("n")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The auto-increment row received a generated id.
	rows, err = conn.Query(ctx, `SELECT "id" FROM "heroes" WHERE "name" = ?1`,
		[]value.Value{value.Text("B")})
	require.NoError(t, err)
	id, err := rows.First().Int64("id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestSQLiteTransactionRollback(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	tx, err := driver.Begin(ctx, conn, "")
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO "teams" ("id", "name") VALUES (?1, ?2)`,
		[]value.Value{value.BigInt(1), value.Text("gone")})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	rows, err := conn.Query(ctx, `SELECT COUNT(*) AS n FROM "teams"`, nil)
	require.NoError(t, err)
	n, err := rows.First().Int64("n")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteSavepoints(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	tx, err := driver.Begin(ctx, conn, "")
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO "teams" ("id", "name") VALUES (1, 'kept')`, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Savepoint(ctx, "sp"))
	_, err = tx.Exec(ctx, `INSERT INTO "teams" ("id", "name") VALUES (2, 'discarded')`, nil)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo(ctx, "sp"))
	require.NoError(t, tx.Commit(ctx))

	rows, err := conn.Query(ctx, `SELECT "name" FROM "teams" ORDER BY "id"`, nil)
	require.NoError(t, err)
	require.Len(t, rows.Rows, 1)
	name, _ := rows.Rows[0].String("name")
	assert.Equal(t, "kept", name)
}

func TestSQLiteIntrospection(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	tables, err := sqlmodel.ListTables(ctx, conn)
	require.NoError(t, err)
	assert.Contains(t, tables, "teams")
	assert.Contains(t, tables, "heroes")

	info, err := sqlmodel.Introspect(ctx, conn, "heroes")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, info.PrimaryKey)

	var cols []string
	for _, c := range info.Columns {
		cols = append(cols, c.Name)
	}
	assert.Equal(t, []string{"id", "name", "age", "team_id"}, cols)

	require.Len(t, info.ForeignKeys, 1)
	assert.Equal(t, "team_id", info.ForeignKeys[0].Column)
	assert.Equal(t, "teams", info.ForeignKeys[0].RefTable)
	assert.Equal(t, "id", info.ForeignKeys[0].RefColumn)
}

func TestSQLitePreparedStatements(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	createSchema(t, conn)

	stmt, err := conn.Prepare(ctx, `INSERT INTO "teams" ("id", "name") VALUES (?1, ?2)`)
	require.NoError(t, err)
	assert.Equal(t, 2, stmt.ParamCount())

	assert.Error(t, stmt.ValidateParams(nil))
	_, err = stmt.Exec(ctx, []value.Value{value.BigInt(1), value.Text("T")})
	require.NoError(t, err)
	require.NoError(t, stmt.Close(ctx))
}
