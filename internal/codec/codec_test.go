package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/value"
)

func TestCivilCalendar(t *testing.T) {
	cases := []struct {
		days int32
		text string
	}{
		{0, "1970-01-01"},
		{10957, "2000-01-01"},
		{-1, "1969-12-31"},
		{19723, "2024-01-01"},
		{11016, "2000-02-29"}, // leap day
	}
	for _, tc := range cases {
		assert.Equal(t, tc.text, FormatDate(tc.days))
		parsed, err := ParseDate(tc.text)
		require.NoError(t, err)
		assert.Equal(t, tc.days, parsed)
	}
}

func TestDateRoundTripThroughPgBinary(t *testing.T) {
	// "2000-01-01" is Unix day 10957 and PG binary date 0.
	days, err := ParseDate("2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, int32(10957), days)

	bin, notNull, err := PgEncodeBinary(value.Date(days), OIDDate)
	require.NoError(t, err)
	require.True(t, notNull)
	assert.Equal(t, []byte{0, 0, 0, 0}, bin)

	decoded, err := PgDecode(OIDDate, 1, bin)
	require.NoError(t, err)
	back, _ := decoded.IntVal()
	assert.Equal(t, int64(10957), back)
	assert.Equal(t, "2000-01-01", FormatDate(int32(back)))
}

func TestPgBinaryIntRoundTrip(t *testing.T) {
	bin, notNull, err := PgEncodeBinary(value.Int(42), OIDInt4)
	require.NoError(t, err)
	require.True(t, notNull)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x2A}, bin)

	decoded, err := PgDecode(OIDInt4, 1, bin)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(value.Int(42)))
}

func TestPgTimestampEpochShift(t *testing.T) {
	// 2000-01-01T00:00:00 UTC in Unix microseconds.
	us := int64(946_684_800_000_000)
	bin, _, err := PgEncodeBinary(value.Timestamp(us), OIDTimestamp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, bin)

	decoded, err := PgDecode(OIDTimestamp, 1, bin)
	require.NoError(t, err)
	back, _ := decoded.IntVal()
	assert.Equal(t, us, back)
}

func TestPgFloatSpecials(t *testing.T) {
	for _, tc := range []struct {
		f    float64
		text string
	}{
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	} {
		s, notNull, err := PgEncodeText(value.Double(tc.f))
		require.NoError(t, err)
		require.True(t, notNull)
		assert.Equal(t, tc.text, s)

		decoded, err := PgDecode(OIDFloat8, 0, []byte(tc.text))
		require.NoError(t, err)
		f, _ := decoded.FloatVal()
		if math.IsNaN(tc.f) {
			assert.True(t, math.IsNaN(f))
		} else {
			assert.Equal(t, tc.f, f)
		}
	}
}

func TestByteaTextFormats(t *testing.T) {
	s, _, err := PgEncodeText(value.Bytes([]byte{0xde, 0xad}))
	require.NoError(t, err)
	assert.Equal(t, `\xdead`, s)

	b, err := DecodeByteaText(`\xdead`)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, b)

	b, err = DecodeByteaText(`a\\b\101`)
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', '\\', 'b', 'A'}, b)

	// Strict: a stray backslash is rejected.
	_, err = DecodeByteaText(`bad\`)
	assert.Error(t, err)
}

func TestJSONBVersionByte(t *testing.T) {
	bin, _, err := PgEncodeBinary(value.JSON(map[string]any{"a": true}), OIDJSONB)
	require.NoError(t, err)
	require.NotEmpty(t, bin)
	assert.Equal(t, byte(1), bin[0])

	decoded, err := PgDecode(OIDJSONB, 1, bin)
	require.NoError(t, err)
	tree, ok := decoded.JSONVal()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": true}, tree)

	_, err = PgDecode(OIDJSONB, 1, []byte(`{"a":true}`))
	assert.Error(t, err, "missing version byte must be rejected")
}

func TestUUIDCanonicalText(t *testing.T) {
	v, err := value.ParseUUID("550E8400-E29B-41D4-A716-446655440000")
	require.NoError(t, err)
	s, _, err := PgEncodeText(v)
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", s)
}

func TestPgArrayTextEncoding(t *testing.T) {
	arr := value.Array([]value.Value{value.Text("a b"), value.Null(), value.Int(3)})
	s, _, err := PgEncodeText(arr)
	require.NoError(t, err)
	assert.Equal(t, `{"a b",NULL,3}`, s)
}

func TestLenencIntRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 0xFA, 0xFB, 0xFFFF, 0x10000, 0xFFFFFF, 0x1000000, math.MaxUint64} {
		enc := AppendLenencInt(nil, v)
		dec, n, err := ReadLenencInt(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, v, dec)
	}
}

func TestLenencStringRoundTrip(t *testing.T) {
	enc := AppendLenencString(nil, "hello")
	s, n, err := ReadLenencString(enc)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	assert.Equal(t, len(enc), n)
}

func TestMySQLBinaryIntegersLittleEndian(t *testing.T) {
	enc, err := MyEncodeBinary(nil, value.Int(42))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2A, 0x00, 0x00, 0x00}, enc)

	decoded, n, err := MyDecodeBinary(MyTypeLong, false, enc)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, decoded.Equal(value.Int(42)))
}

func TestMySQLBinaryDate(t *testing.T) {
	days, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	enc, err := MyEncodeBinary(nil, value.Date(days))
	require.NoError(t, err)
	// {length 4, year u16le, month, day}
	assert.Equal(t, []byte{4, 0xE8, 0x07, 3, 15}, enc)

	decoded, n, err := MyDecodeBinary(MyTypeDate, false, enc)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	got, _ := decoded.IntVal()
	assert.Equal(t, int64(days), got)
}

func TestMySQLBinaryDatetimeMicroseconds(t *testing.T) {
	us, err := ParseTimestamp("2024-03-15 10:30:45.123456")
	require.NoError(t, err)
	enc, err := MyEncodeBinary(nil, value.Timestamp(us))
	require.NoError(t, err)
	assert.Equal(t, byte(11), enc[0])

	decoded, _, err := MyDecodeBinary(MyTypeDatetime, false, enc)
	require.NoError(t, err)
	back, _ := decoded.IntVal()
	assert.Equal(t, us, back)
}

func TestMySQLUnsignedWidening(t *testing.T) {
	// A u32 above i32 max surfaces as BigInt.
	raw := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	decoded, _, err := MyDecodeBinary(MyTypeLong, true, raw)
	require.NoError(t, err)
	got, _ := decoded.IntVal()
	assert.Equal(t, int64(0xFFFFFFFF), got)
	assert.Equal(t, value.KindBigInt, decoded.Kind())
}

func TestSQLiteTemporalBindings(t *testing.T) {
	us, err := ParseTimestamp("2024-03-15T10:30:45")
	require.NoError(t, err)
	bound, err := LiteBind(value.Timestamp(us))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T10:30:45", bound)

	back, err := LiteUnbind("DATETIME", "2024-03-15T10:30:45")
	require.NoError(t, err)
	got, _ := back.IntVal()
	assert.Equal(t, us, got)
}

func TestSQLiteUUIDAsBlob(t *testing.T) {
	raw := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	bound, err := LiteBind(value.UUID(raw))
	require.NoError(t, err)
	assert.Equal(t, raw[:], bound)

	back, err := LiteUnbind("UUID", raw[:])
	require.NoError(t, err)
	u, ok := back.UUIDVal()
	require.True(t, ok)
	assert.Equal(t, raw, u)
}

func TestArraysAsJSONTextOffPostgres(t *testing.T) {
	arr := value.Array([]value.Value{value.Int(1), value.Text("two")})
	bound, err := LiteBind(arr)
	require.NoError(t, err)
	assert.Equal(t, `[1,"two"]`, bound)
}

func TestRegistries(t *testing.T) {
	pg := PostgresRegistry()
	info, ok := pg.Get(OIDInt4)
	require.True(t, ok)
	assert.Equal(t, "int4", info.Name)
	assert.Equal(t, int16(4), info.Size)
	assert.Equal(t, int32(OIDInt4Array), info.ArrayID)
	assert.True(t, pg.SupportsBinary(OIDInt4))
	assert.False(t, pg.SupportsBinary(OIDNumeric))
	assert.Equal(t, CatArray, pg.Category(OIDInt4Array))

	elem, ok := pg.Get(OIDInt4Array)
	require.True(t, ok)
	assert.Equal(t, int32(OIDInt4), elem.ElemID)

	my := MySQLRegistry()
	blob, ok := my.Get(MyTypeBlob)
	require.True(t, ok)
	assert.Equal(t, CatBinary, blob.Cat)

	lite := SQLiteRegistry()
	intInfo, ok := lite.ByName("INTEGER")
	require.True(t, ok)
	assert.Equal(t, int32(LiteClassInteger), intInfo.ID)
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	us, err := ParseTimeOfDay("13:45:30.5")
	require.NoError(t, err)
	assert.Equal(t, int64((13*3600+45*60+30)*1_000_000+500_000), us)
	assert.Equal(t, "13:45:30.5", FormatTimeOfDay(us))
}
