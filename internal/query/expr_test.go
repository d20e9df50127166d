package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

func buildExpr(t *testing.T, d dialect.Dialect, e Expr) (string, []value.Value) {
	t.Helper()
	fb := NewFragment(d)
	e.Build(fb)
	return fb.SQL.String(), fb.Params
}

func TestPlaceholderStyles(t *testing.T) {
	e := Col("a").Eq(1)
	sql, _ := buildExpr(t, dialect.Postgres, e)
	assert.Equal(t, `"a" = $1`, sql)
	sql, _ = buildExpr(t, dialect.SQLite, e)
	assert.Equal(t, `"a" = ?1`, sql)
	sql, _ = buildExpr(t, dialect.MySQL, e)
	assert.Equal(t, "`a` = ?", sql)
}

func TestPlaceholderOrderMatchesParams(t *testing.T) {
	e := And(Col("a").Eq(1), Col("b").Eq(2), Col("c").Eq(3))
	sql, params := buildExpr(t, dialect.Postgres, e)
	assert.Equal(t, `("a" = $1 AND "b" = $2 AND "c" = $3)`, sql)
	require.Len(t, params, 3)
	for i, p := range params {
		got, _ := p.IntVal()
		assert.Equal(t, int64(i+1), got)
	}
}

func TestInList(t *testing.T) {
	sql, params := buildExpr(t, dialect.Postgres, Col("id").In(1, 2, 3))
	assert.Equal(t, `"id" IN ($1, $2, $3)`, sql)
	assert.Len(t, params, 3)
}

func TestInSubqueryRenumbers(t *testing.T) {
	e := And(
		Col("age").Gt(18),
		Col("team_id").InSubquery(`SELECT "id" FROM "teams" WHERE "size" > $1`, value.Int(5)),
	)
	sql, params := buildExpr(t, dialect.Postgres, e)
	assert.Equal(t, `("age" > $1 AND "team_id" IN (SELECT "id" FROM "teams" WHERE "size" > $2))`, sql)
	assert.Len(t, params, 2)
}

func TestBetween(t *testing.T) {
	sql, params := buildExpr(t, dialect.Postgres, Col("age").Between(18, 65))
	assert.Equal(t, `"age" BETWEEN $1 AND $2`, sql)
	assert.Len(t, params, 2)
}

func TestLikeAndEscape(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Col("name").Like("A%"))
	assert.Equal(t, `"name" LIKE $1`, sql)

	sql, _ = buildExpr(t, dialect.Postgres, Col("name").Like(`100\%`).WithEscape(`\`))
	assert.Equal(t, `"name" LIKE $1 ESCAPE '\'`, sql)
}

func TestILike(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Col("name").ILike("a%"))
	assert.Equal(t, `"name" ILIKE $1`, sql)

	// Off PostgreSQL, ILIKE is emulated with LOWER().
	sql, _ = buildExpr(t, dialect.SQLite, Col("name").ILike("a%"))
	assert.Equal(t, `LOWER("name") LIKE LOWER(?1)`, sql)
}

func TestNullChecks(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Col("age").IsNull())
	assert.Equal(t, `"age" IS NULL`, sql)
	sql, _ = buildExpr(t, dialect.Postgres, Col("age").IsNotNull())
	assert.Equal(t, `"age" IS NOT NULL`, sql)
}

func TestFunctionAndCase(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Fn("COALESCE", Col("age"), 0))
	assert.Equal(t, `COALESCE("age", $1)`, sql)

	c := Case().
		When(Col("age").Lt(18), "minor").
		When(Col("age").Lt(65), "adult").
		Else("senior")
	sql, params := buildExpr(t, dialect.Postgres, c)
	assert.Equal(t,
		`CASE WHEN "age" < $1 THEN $2 WHEN "age" < $3 THEN $4 ELSE $5 END`, sql)
	assert.Len(t, params, 5)
}

func TestCast(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Cast(Col("age"), "TEXT"))
	assert.Equal(t, `CAST("age" AS TEXT)`, sql)
}

func TestNotAndOr(t *testing.T) {
	e := Not(Or(Col("a").Eq(1), Col("b").Eq(2)))
	sql, _ := buildExpr(t, dialect.Postgres, e)
	assert.Equal(t, `NOT (("a" = $1 OR "b" = $2))`, sql)
}

func TestArithmeticKeepsParens(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Col("a").Add(Col("b")))
	assert.Equal(t, `("a" + "b")`, sql)
}

func TestDottedIdentQuoting(t *testing.T) {
	sql, _ := buildExpr(t, dialect.Postgres, Col("t.c"))
	assert.Equal(t, `"t"."c"`, sql)
	sql, _ = buildExpr(t, dialect.Postgres, Col("t.*"))
	assert.Equal(t, `"t".*`, sql)
}

func TestSelectBuilder(t *testing.T) {
	sql, params := Select("heroes", "id", "name").
		Filter(Col("age").Ge(18)).
		Join(LeftJoin, "teams", Col("heroes.team_id").Eq(Col("teams.id"))).
		GroupBy(Col("name")).
		Having(Fn("COUNT", Raw("*")).Gt(1)).
		OrderBy(Col("name").Asc().NullsLast()).
		Limit(10).
		Offset(5).
		Build(dialect.Postgres)
	assert.Equal(t,
		`SELECT "id", "name" FROM "heroes"`+
			` LEFT JOIN "teams" ON "heroes"."team_id" = "teams"."id"`+
			` WHERE "age" >= $1 GROUP BY "name" HAVING COUNT(*) > $2`+
			` ORDER BY "name" ASC NULLS LAST LIMIT 10 OFFSET 5`, sql)
	assert.Len(t, params, 2)
}

func TestRawQueryBind(t *testing.T) {
	sql, params := NewRaw("SELECT * FROM t WHERE a = $1 AND b = $2").
		Bind(1).Bind("x").Build()
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", sql)
	assert.Len(t, params, 2)
}

func TestRenumberPlaceholders(t *testing.T) {
	out := RenumberPlaceholders(dialect.Postgres, `SELECT $1, $2 WHERE x = '$1'`, 2)
	assert.Equal(t, `SELECT $3, $4 WHERE x = '$1'`, out)

	out = RenumberPlaceholders(dialect.SQLite, "a = ?1 AND b = ?2", 1)
	assert.Equal(t, "a = ?2 AND b = ?3", out)

	// MySQL's bare ? carries no number.
	out = RenumberPlaceholders(dialect.MySQL, "a = ? AND b = ?", 5)
	assert.Equal(t, "a = ? AND b = ?", out)
}
