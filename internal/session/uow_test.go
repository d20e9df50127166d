package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

func TestObjectKeyEquality(t *testing.T) {
	a1 := &hero{ID: i64(1)}
	a2 := &hero{ID: i64(1), Name: "different payload"}
	b := &hero{ID: i64(2)}
	tm := &team{ID: i64(1)}

	assert.Equal(t, KeyOf(a1), KeyOf(a2))
	assert.NotEqual(t, KeyOf(a1), KeyOf(b))
	// Same primary key, different model type: different keys.
	assert.NotEqual(t, KeyOf(a1), KeyOf(tm))
}

func TestIdentityMapUniqueness(t *testing.T) {
	im := NewIdentityMap()
	first := &hero{ID: i64(1), Name: "loaded"}
	resolved, inserted := im.Resolve(first)
	require.True(t, inserted)
	assert.Same(t, first, resolved)

	// A second load of the same key returns the existing object and
	// discards the fresh one.
	second := &hero{ID: i64(1), Name: "reloaded"}
	resolved, inserted = im.Resolve(second)
	assert.False(t, inserted)
	assert.Same(t, first, resolved)
	assert.Equal(t, 1, im.Len())
}

func TestChangeTrackerIdempotence(t *testing.T) {
	tr := NewChangeTracker()
	h := &hero{ID: i64(1), Name: "A", TeamID: i64(2)}
	key := KeyOf(h)
	require.NoError(t, tr.Snapshot(key, h))
	assert.False(t, tr.IsDirty(key, h))

	h.Name = "B"
	assert.True(t, tr.IsDirty(key, h))
	changed, err := tr.ChangedFields(key, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, changed)

	h.TeamID = nil
	changed, err = tr.ChangedFields(key, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "team_id"}, changed)
}

func TestChangeTrackerNoSnapshotMeansAllChanged(t *testing.T) {
	tr := NewChangeTracker()
	h := &hero{ID: i64(1), Name: "A"}
	key := KeyOf(h)
	assert.True(t, tr.IsDirty(key, h))
	changed, err := tr.ChangedFields(key, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "team_id"}, changed)
}

func TestChangeTrackerRefreshAndClear(t *testing.T) {
	tr := NewChangeTracker()
	h := &hero{ID: i64(1), Name: "A"}
	key := KeyOf(h)
	require.NoError(t, tr.Snapshot(key, h))
	h.Name = "B"
	require.NoError(t, tr.Refresh(key, h))
	assert.False(t, tr.IsDirty(key, h))

	tr.Clear(key)
	assert.False(t, tr.HasSnapshot(key))

	require.NoError(t, tr.Snapshot(key, h))
	tr.ClearAll()
	assert.False(t, tr.HasSnapshot(key))
}

func TestFlushPlanInsertOrdering(t *testing.T) {
	// Inserts run parents before children regardless of call order.
	u := NewUnitOfWork()
	u.RegisterNew(&hero{ID: i64(10), Name: "H", TeamID: i64(1)})
	u.RegisterNew(&team{ID: i64(1), Name: "T"})

	plan, err := u.ComputeFlushPlan()
	require.NoError(t, err)
	require.Len(t, plan.Inserts, 2)
	assert.Equal(t, "teams", plan.Inserts[0].Table)
	assert.Equal(t, "heroes", plan.Inserts[1].Table)
}

func TestFlushPlanDeleteOrdering(t *testing.T) {
	// Deletes run children before parents.
	u := NewUnitOfWork()
	u.RegisterDeleted(&team{ID: i64(1), Name: "T"})
	u.RegisterDeleted(&hero{ID: i64(10), Name: "H"})

	plan, err := u.ComputeFlushPlan()
	require.NoError(t, err)
	require.Len(t, plan.Deletes, 2)
	assert.Equal(t, "heroes", plan.Deletes[0].Table)
	assert.Equal(t, "teams", plan.Deletes[1].Table)
}

func TestRegisterDirtyKeepsOnlyChangedColumns(t *testing.T) {
	u := NewUnitOfWork()
	h := &hero{ID: i64(5), Name: "B", TeamID: i64(2)}
	u.RegisterDirty(h, []string{"name"})
	require.Len(t, u.updates, 1)
	assert.Equal(t, []string{"name"}, u.updates[0].SetColumns)
	// Primary-key columns never enter the SET list.
	u.RegisterDirty(h, []string{"id"})
	assert.Len(t, u.updates, 1)
}

func TestCycleDetection(t *testing.T) {
	u := NewUnitOfWork()
	u.RegisterModel(&cycleA{})
	u.RegisterModel(&cycleB{})

	cycle := u.DetectCycle()
	require.NotNil(t, cycle)
	// The reported path walks the complete cycle.
	assert.GreaterOrEqual(t, len(cycle.Tables), 3)
	assert.Equal(t, cycle.Tables[0], cycle.Tables[len(cycle.Tables)-1])
	assert.Contains(t, cycle.Tables, "a")
	assert.Contains(t, cycle.Tables, "b")

	_, err := u.ComputeFlushPlan()
	require.Error(t, err)
	var ce *CycleError
	assert.ErrorAs(t, err, &ce)
}

func TestAcyclicGraphPasses(t *testing.T) {
	u := NewUnitOfWork()
	u.RegisterModel(&team{})
	u.RegisterModel(&hero{})
	assert.Nil(t, u.DetectCycle())
}

func TestEmptyPKDeleteRefused(t *testing.T) {
	u := NewUnitOfWork()
	u.RegisterDeleted(&hero{Name: "no id"})
	// Key values exist (a Null id), so the plan is produced; the
	// refusal applies to models with no PK values at all.
	u2 := NewUnitOfWork()
	u2.deletes = append(u2.deletes, &PendingOp{Kind: OpDelete, Table: "heroes"})
	_, err := u2.ComputeFlushPlan()
	require.Error(t, err)
}

func TestReconcileLinks(t *testing.T) {
	spec := LinkSpec{Table: "hero_teams", LocalCol: "hero_id", RemoteCol: "team_id"}
	current := []value.Value{value.BigInt(1), value.BigInt(2)}
	desired := []value.Value{value.BigInt(2), value.BigInt(3)}

	ops := ReconcileLinks(spec, value.BigInt(9), current, desired)
	require.Len(t, ops, 2)

	var links, unlinks int
	for _, op := range ops {
		if op.Unlink {
			unlinks++
			got, _ := op.RemoteVal.IntVal()
			assert.Equal(t, int64(1), got)
		} else {
			links++
			got, _ := op.RemoteVal.IntVal()
			assert.Equal(t, int64(3), got)
		}
	}
	assert.Equal(t, 1, links)
	assert.Equal(t, 1, unlinks)
}

func TestLinkOpSQL(t *testing.T) {
	link := Link("hero_teams", "hero_id", value.BigInt(1), "team_id", value.BigInt(2))
	sql, params := link.Build(dialect.Postgres)
	assert.Equal(t, `INSERT INTO "hero_teams" ("hero_id", "team_id") VALUES ($1, $2)`, sql)
	assert.Len(t, params, 2)

	unlink := Unlink("hero_teams", "hero_id", value.BigInt(1), "team_id", value.BigInt(2))
	sql, params = unlink.Build(dialect.Postgres)
	assert.Equal(t, `DELETE FROM "hero_teams" WHERE "hero_id" = $1 AND "team_id" = $2`, sql)
	assert.Len(t, params, 2)
}
