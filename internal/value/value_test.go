package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/sqlerr"
)

func TestRowNameLookup(t *testing.T) {
	header := NewHeader([]string{"id", "name", "name"})
	row := NewRow(header, []Value{BigInt(7), Text("first"), Text("second")})

	v, ok := row.Get("id")
	require.True(t, ok)
	i, err := AsInt64(v, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), i)

	// Duplicate column names resolve to the first match.
	v, ok = row.Get("name")
	require.True(t, ok)
	s, err := AsString(v, "name")
	require.NoError(t, err)
	assert.Equal(t, "first", s)

	_, ok = row.Get("missing")
	assert.False(t, ok)
}

func TestTypedExtractionErrors(t *testing.T) {
	header := NewHeader([]string{"age"})
	row := NewRow(header, []Value{Text("not a number")})

	_, err := row.Int64("age")
	require.Error(t, err)
	var e *sqlerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, sqlerr.TypeConversion, e.Kind)
	assert.Equal(t, "bigint", e.Expected)
	assert.Equal(t, "text", e.Actual)
	assert.Equal(t, "age", e.Column)
}

func TestRangeCheckedConversions(t *testing.T) {
	_, err := AsInt8(Int(300), "c")
	assert.Error(t, err)

	v, err := AsInt8(Int(100), "c")
	require.NoError(t, err)
	assert.Equal(t, int8(100), v)

	_, err = AsUint64(BigInt(-1), "c")
	assert.Error(t, err)

	u, err := AsUint32(BigInt(42), "c")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u)
}

func TestWideningToFloat(t *testing.T) {
	f, err := AsFloat64(Int(42), "c")
	require.NoError(t, err)
	assert.Equal(t, 42.0, f)

	f, err = AsFloat64(Decimal("3.25"), "c")
	require.NoError(t, err)
	assert.Equal(t, 3.25, f)
}

func TestNullHandling(t *testing.T) {
	header := NewHeader([]string{"v"})
	row := NewRow(header, []Value{Null()})

	p, err := row.NullInt64("v")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = row.Int64("v")
	assert.Error(t, err)
}

func TestUUIDFromBytes(t *testing.T) {
	raw := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	u, err := AsUUID(Bytes(raw[:]), "c")
	require.NoError(t, err)
	assert.Equal(t, raw, u)

	u2, err := AsUUID(UUID(raw), "c")
	require.NoError(t, err)
	assert.Equal(t, raw, u2)
}

func TestEqual(t *testing.T) {
	assert.True(t, BigInt(1).Equal(BigInt(1)))
	// Kinds matter, not just payloads.
	assert.False(t, BigInt(1).Equal(Int(1)))
	assert.True(t, Null().Equal(Null()))
	assert.True(t, Array([]Value{Text("a")}).Equal(Array([]Value{Text("a")})))
	assert.False(t, Array([]Value{Text("a")}).Equal(Array([]Value{Text("b")})))

	tree1 := map[string]any{"a": 1.0, "b": []any{true}}
	tree2 := map[string]any{"b": []any{true}, "a": 1.0}
	assert.True(t, JSON(tree1).Equal(JSON(tree2)))
}

func TestDecimalPreservesPrecision(t *testing.T) {
	v := Decimal("123456789012345678901234567890.000000001")
	s, ok := v.StringVal()
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890.000000001", s)

	d, ok := v.DecimalVal()
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890.000000001", d.String())
}

func TestSnapshotEncodingDistinguishesKinds(t *testing.T) {
	a, err := BigInt(5).MarshalJSON()
	require.NoError(t, err)
	b, err := Int(5).MarshalJSON()
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(b))
}

func TestDefaultPlaceholder(t *testing.T) {
	v := Default()
	assert.True(t, v.IsDefault())
	assert.False(t, v.IsNull())
	assert.Equal(t, "DEFAULT", v.String())
}
