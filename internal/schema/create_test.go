package schema

import (
	"testing"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// team / hero exercise primary keys, uniques, defaults, and a foreign
// key with referential actions.
type team struct{}

func (*team) TableName() string    { return "teams" }
func (*team) PrimaryKey() []string { return []string{"id"} }
func (*team) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText, Unique: true, Precision: 120},
		{Name: "motto", Type: value.KindText, Nullable: true, Default: "'none'"},
	}
}
func (*team) ToRow() []model.Field            { return nil }
func (*team) LoadRow(*value.Row) error        { return nil }
func (*team) PrimaryKeyValue() []value.Value  { return nil }
func (*team) IsNew() bool                     { return true }

type hero struct{}

func (*hero) TableName() string    { return "heroes" }
func (*hero) PrimaryKey() []string { return []string{"id"} }
func (*hero) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText},
		{Name: "team_id", Type: value.KindBigInt, Nullable: true,
			ForeignKey: "teams.id", OnDelete: model.SetNull, OnUpdate: model.Cascade,
			Index: "idx_heroes_team"},
	}
}
func (*hero) ToRow() []model.Field            { return nil }
func (*hero) LoadRow(*value.Row) error        { return nil }
func (*hero) PrimaryKeyValue() []value.Value  { return nil }
func (*hero) IsNew() bool                     { return true }

func TestCreateTablePostgres(t *testing.T) {
	sql := NewCreateTable(&team{}).Build(dialect.Postgres)
	assert.Equal(t,
		`CREATE TABLE "teams" (`+
			`"id" BIGINT GENERATED BY DEFAULT AS IDENTITY, `+
			`"name" VARCHAR(120) NOT NULL, `+
			`"motto" TEXT DEFAULT 'none', `+
			`PRIMARY KEY ("id"), `+
			`CONSTRAINT "uk_name" UNIQUE ("name"))`,
		sql)
}

func TestCreateTableForeignKey(t *testing.T) {
	sql := NewCreateTable(&hero{}).IfNotExists().Build(dialect.Postgres)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS")
	assert.Contains(t, sql,
		`CONSTRAINT "fk_heroes_team_id" FOREIGN KEY ("team_id") REFERENCES "teams" ("id") ON DELETE SET NULL ON UPDATE CASCADE`)
}

func TestCreateTableSQLiteInlinePrimaryKey(t *testing.T) {
	sql := NewCreateTable(&team{}).Build(dialect.SQLite)
	assert.Contains(t, sql, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.NotContains(t, sql, `PRIMARY KEY ("id")`)
}

func TestCreateTableMySQLParses(t *testing.T) {
	// The emitted MySQL DDL must be valid per a real MySQL parser.
	p := parser.New()
	for _, m := range []model.Model{&team{}, &hero{}} {
		sql := NewCreateTable(m).IfNotExists().Build(dialect.MySQL)
		_, _, err := p.Parse(sql, "", "")
		require.NoError(t, err, "generated DDL failed to parse: %s", sql)
	}
}

func TestCreateIndex(t *testing.T) {
	sql := NewCreateIndex("idx_heroes_team", "heroes", "team_id").
		IfNotExists().Build(dialect.Postgres)
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_heroes_team" ON "heroes" ("team_id")`, sql)

	sql = NewCreateIndex("uk_pair", "pairs", "a", "b").Unique().Build(dialect.Postgres)
	assert.Equal(t, `CREATE UNIQUE INDEX "uk_pair" ON "pairs" ("a", "b")`, sql)

	// MySQL has no IF NOT EXISTS for indexes.
	sql = NewCreateIndex("i", "t", "c").IfNotExists().Build(dialect.MySQL)
	assert.Equal(t, "CREATE INDEX `i` ON `t` (`c`)", sql)
}

func TestDropTable(t *testing.T) {
	assert.Equal(t, `DROP TABLE "heroes"`, NewDropTable("heroes").Build(dialect.Postgres))
	assert.Equal(t, `DROP TABLE IF EXISTS "heroes"`,
		NewDropTable("heroes").IfExists().Build(dialect.Postgres))
}

func TestBuilderAggregatesModelStatements(t *testing.T) {
	stmts := NewBuilder().
		AddModel(dialect.Postgres, &team{}).
		AddModel(dialect.Postgres, &hero{}).
		Statements()
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "teams"`)
	assert.Contains(t, stmts[1], `CREATE TABLE IF NOT EXISTS "heroes"`)
	assert.Contains(t, stmts[2], `CREATE INDEX IF NOT EXISTS "idx_heroes_team"`)
}
