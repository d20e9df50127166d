package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

func TestUpdateFromModelUsesPrimaryKeyWhere(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A", Age: i64(30)}
	sql, params := Update(h).Build(dialect.Postgres)
	assert.Equal(t, `UPDATE "heroes" SET "name" = $1, "age" = $2 WHERE "id" = $3`, sql)
	require.Len(t, params, 3)
	assert.True(t, params[2].Equal(value.BigInt(7)))
}

func TestUpdateExplicitSetsComeFirst(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A", Age: i64(30)}
	sql, params := Update(h).Set("name", "B").Build(dialect.Postgres)
	// The explicit set wins; the model's name column is not repeated.
	assert.Equal(t, `UPDATE "heroes" SET "name" = $1, "age" = $2 WHERE "id" = $3`, sql)
	assert.True(t, params[0].Equal(value.Text("B")))
}

func TestUpdateSetOnlyRestrictsModelColumns(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A", Age: i64(30)}
	sql, _ := Update(h).SetOnly("age").Build(dialect.Postgres)
	assert.Equal(t, `UPDATE "heroes" SET "age" = $1 WHERE "id" = $2`, sql)
}

func TestUpdateEmptySetIsNoOp(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A"}
	sql, params := Update(h).SetOnly("nonexistent").Build(dialect.Postgres)
	assert.Empty(t, sql)
	assert.Empty(t, params)
}

func TestUpdateExtraFilter(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A", Age: i64(30)}
	sql, _ := Update(h).Filter(Col("age").Gt(18)).Build(dialect.Postgres)
	assert.Contains(t, sql, `WHERE ("id" = $3 AND "age" > $4)`)
}

func TestUpdateReturning(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A"}
	sql, _ := Update(h).Returning().Build(dialect.Postgres)
	assert.Contains(t, sql, "RETURNING *")
}

func TestUpdateTableWithoutModel(t *testing.T) {
	sql, params := UpdateTable("heroes").
		Set("age", 99).
		Filter(Col("name").Eq("A")).
		Build(dialect.MySQL)
	assert.Equal(t, "UPDATE `heroes` SET `age` = ? WHERE `name` = ?", sql)
	assert.Len(t, params, 2)
}

func TestDeleteModelByPrimaryKey(t *testing.T) {
	h := &hero{ID: i64(7), Name: "A"}
	sql, params, err := DeleteModel(h).Build(dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "heroes" WHERE "id" = $1`, sql)
	assert.Len(t, params, 1)
}

func TestDeleteRefusesWhereLessWithPrimaryKey(t *testing.T) {
	h := &hero{Name: "A"} // nil id still declares a pk column
	b := DeleteBuilder{table: h.TableName(), hasPK: true}
	_, _, err := b.Build(dialect.Postgres)
	require.Error(t, err)
}

func TestDeleteWithFilter(t *testing.T) {
	sql, params, err := Delete("heroes").
		Filter(Col("age").Lt(18)).
		Build(dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "heroes" WHERE "age" < ?1`, sql)
	assert.Len(t, params, 1)
}

func TestDeleteReturning(t *testing.T) {
	h := &hero{ID: i64(7)}
	sql, _, err := DeleteModel(h).Returning().Build(dialect.Postgres)
	require.NoError(t, err)
	assert.Contains(t, sql, "RETURNING *")
}

func TestDeleteCompositeKey(t *testing.T) {
	p := &pkOnly{A: 1, B: 2}
	sql, params, err := DeleteModel(p).Build(dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "pairs" WHERE ("a" = $1 AND "b" = $2)`, sql)
	assert.Len(t, params, 2)
}
