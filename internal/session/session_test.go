package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/model"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

func heroRows(cols []string, rows ...[]value.Value) *value.Rows {
	out := &value.Rows{Header: value.NewHeader(cols)}
	for _, r := range rows {
		out.Append(r)
	}
	return out
}

func TestSessionGetUsesIdentityMap(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	conn.results[`SELECT * FROM "heroes" WHERE "id" = $1`] = heroRows(
		[]string{"id", "name", "team_id"},
		[]value.Value{value.BigInt(1), value.Text("A"), value.Null()},
	)
	s := New(conn)

	obj, err := s.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	h := obj.(*hero)
	assert.Equal(t, "A", h.Name)

	// Second call returns the same object without touching the wire.
	queries := len(conn.executed)
	again, err := s.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	assert.Same(t, obj, again)
	assert.Equal(t, queries, len(conn.executed))
}

func TestSessionGetNotFound(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := New(conn)
	_, err := s.Get(ctx, &hero{}, []value.Value{value.BigInt(404)})
	assert.Equal(t, sqlerr.QueryNotFound, sqlerr.KindOf(err))
}

func TestSessionLoadSnapshotsFreshObjects(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	sql := `SELECT * FROM "heroes"`
	conn.results[sql] = heroRows(
		[]string{"id", "name", "team_id"},
		[]value.Value{value.BigInt(1), value.Text("A"), value.Null()},
		[]value.Value{value.BigInt(2), value.Text("B"), value.Null()},
	)
	s := New(conn)
	objs, err := s.Load(ctx, func() model.Model { return &hero{} }, sql, nil)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	// Loaded objects are snapshotted: untouched means clean.
	for _, o := range objs {
		assert.False(t, s.Tracker().IsDirty(KeyOf(o), o))
	}

	// Loading again resolves through the identity map.
	again, err := s.Load(ctx, func() model.Model { return &hero{} }, sql, nil)
	require.NoError(t, err)
	assert.Same(t, objs[0], again[0])
	assert.Same(t, objs[1], again[1])
}

func TestSessionFlushCommit(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := New(conn)

	require.NoError(t, s.Add(&team{ID: i64(1), Name: "T"}))
	require.NoError(t, s.Add(&hero{ID: i64(10), Name: "H", TeamID: i64(1)}))

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)
	assert.True(t, s.InTransaction())

	// BEGIN first, then teams before heroes.
	assert.Equal(t, "BEGIN", conn.executed[0])
	teamIdx := indexContaining(conn.executed, `INSERT INTO "teams"`)
	heroIdx := indexContaining(conn.executed, `INSERT INTO "heroes"`)
	require.GreaterOrEqual(t, teamIdx, 0)
	require.GreaterOrEqual(t, heroIdx, 0)
	assert.Less(t, teamIdx, heroIdx)

	require.NoError(t, s.Commit(ctx))
	assert.False(t, s.InTransaction())
	assert.Contains(t, conn.executed, "COMMIT")

	ins, upd, del := s.UnitOfWork().Pending()
	assert.Zero(t, ins+upd+del)
}

func TestSessionMarkDirtyAuto(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	conn.results[`SELECT * FROM "heroes" WHERE "id" = $1`] = heroRows(
		[]string{"id", "name", "team_id"},
		[]value.Value{value.BigInt(1), value.Text("A"), value.Null()},
	)
	s := New(conn)
	obj, err := s.Get(ctx, &hero{}, []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	h := obj.(*hero)

	// Untouched object: no update registered.
	require.NoError(t, s.MarkDirtyAuto(h))
	_, upd, _ := s.UnitOfWork().Pending()
	assert.Zero(t, upd)

	h.Name = "B"
	require.NoError(t, s.MarkDirtyAuto(h))
	_, upd, _ = s.UnitOfWork().Pending()
	assert.Equal(t, 1, upd)

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated)
	updIdx := indexContaining(conn.executed, `UPDATE "heroes" SET "name" = $1`)
	assert.GreaterOrEqual(t, updIdx, 0)
}

func TestSessionDeleteFlow(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := New(conn)
	h := &hero{ID: i64(3), Name: "gone"}
	s.Delete(h)

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.GreaterOrEqual(t, indexContaining(conn.executed, `DELETE FROM "heroes"`), 0)
}

func TestSessionRollbackClearsState(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := New(conn)
	require.NoError(t, s.Add(&team{ID: i64(1), Name: "T"}))
	_, err := s.Flush(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Rollback(ctx))
	assert.Contains(t, conn.executed, "ROLLBACK")
	assert.False(t, s.InTransaction())
	ins, _, _ := s.UnitOfWork().Pending()
	assert.Zero(t, ins)
}

func TestSessionLinkOpsRunAfterMainFlush(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := New(conn)
	require.NoError(t, s.Add(&team{ID: i64(1), Name: "T"}))
	s.Link(Link("hero_teams", "hero_id", value.BigInt(9), "team_id", value.BigInt(1)))

	_, err := s.Flush(ctx)
	require.NoError(t, err)
	insertIdx := indexContaining(conn.executed, `INSERT INTO "teams"`)
	linkIdx := indexContaining(conn.executed, `INSERT INTO "hero_teams"`)
	require.GreaterOrEqual(t, linkIdx, 0)
	assert.Less(t, insertIdx, linkIdx)

	require.NoError(t, s.Commit(ctx))
}

func TestSessionCommitWithoutTransaction(t *testing.T) {
	s := New(newFakeConn())
	assert.Error(t, s.Commit(context.Background()))
	assert.Error(t, s.Rollback(context.Background()))
}

func TestSessionAddValidates(t *testing.T) {
	s := New(newFakeConn())
	// hero has no validation rules, so Add succeeds even when empty.
	assert.NoError(t, s.Add(&hero{Name: ""}))
}

func indexContaining(list []string, substr string) int {
	for i, s := range list {
		if strings.Contains(s, substr) {
			return i
		}
	}
	return -1
}
