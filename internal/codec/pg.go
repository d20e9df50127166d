package codec

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// PostgreSQL built-in type OIDs.
const (
	OIDBool        = 16
	OIDBytea       = 17
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDOID         = 26
	OIDJSON        = 114
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDVarchar     = 1043
	OIDDate        = 1082
	OIDTime        = 1083
	OIDTimestamp   = 1114
	OIDTimestampTz = 1184
	OIDNumeric     = 1700
	OIDUUID        = 2950
	OIDJSONB       = 3802

	OIDBoolArray        = 1000
	OIDByteaArray       = 1001
	OIDInt2Array        = 1005
	OIDInt4Array        = 1007
	OIDTextArray        = 1009
	OIDInt8Array        = 1016
	OIDFloat4Array      = 1021
	OIDFloat8Array      = 1022
	OIDNumericArray     = 1231
	OIDUUIDArray        = 2951
	OIDTimestampArray   = 1115
	OIDTimestampTzArray = 1185
)

// PostgreSQL temporal epochs are 2000-01-01; ours are Unix.
const (
	pgDateEpochDays       = 10957
	pgTimestampEpochMicro = 946_684_800_000_000
)

// PostgresRegistry returns the OID registry for the PostgreSQL driver.
func PostgresRegistry() *Registry {
	return NewRegistry([]TypeInfo{
		{ID: OIDBool, Name: "bool", Cat: CatBoolean, Size: 1, ArrayID: OIDBoolArray, Binary: true},
		{ID: OIDBytea, Name: "bytea", Cat: CatBinary, Size: SizeVariable, ArrayID: OIDByteaArray, Binary: true},
		{ID: OIDInt2, Name: "int2", Cat: CatNumeric, Size: 2, ArrayID: OIDInt2Array, Binary: true},
		{ID: OIDInt4, Name: "int4", Cat: CatNumeric, Size: 4, ArrayID: OIDInt4Array, Binary: true},
		{ID: OIDInt8, Name: "int8", Cat: CatNumeric, Size: 8, ArrayID: OIDInt8Array, Binary: true},
		{ID: OIDOID, Name: "oid", Cat: CatNumeric, Size: 4, Binary: true},
		{ID: OIDFloat4, Name: "float4", Cat: CatNumeric, Size: 4, ArrayID: OIDFloat4Array, Binary: true},
		{ID: OIDFloat8, Name: "float8", Cat: CatNumeric, Size: 8, ArrayID: OIDFloat8Array, Binary: true},
		{ID: OIDNumeric, Name: "numeric", Cat: CatNumeric, Size: SizeVariable, ArrayID: OIDNumericArray},
		{ID: OIDText, Name: "text", Cat: CatString, Size: SizeVariable, ArrayID: OIDTextArray, Binary: true},
		{ID: OIDVarchar, Name: "varchar", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: OIDDate, Name: "date", Cat: CatDateTime, Size: 4, Binary: true},
		{ID: OIDTime, Name: "time", Cat: CatDateTime, Size: 8, Binary: true},
		{ID: OIDTimestamp, Name: "timestamp", Cat: CatDateTime, Size: 8, ArrayID: OIDTimestampArray, Binary: true},
		{ID: OIDTimestampTz, Name: "timestamptz", Cat: CatDateTime, Size: 8, ArrayID: OIDTimestampTzArray, Binary: true},
		{ID: OIDUUID, Name: "uuid", Cat: CatUUID, Size: 16, ArrayID: OIDUUIDArray, Binary: true},
		{ID: OIDJSON, Name: "json", Cat: CatJSON, Size: SizeVariable},
		{ID: OIDJSONB, Name: "jsonb", Cat: CatJSON, Size: SizeVariable, Binary: true},

		{ID: OIDBoolArray, Name: "_bool", Cat: CatArray, Size: SizeVariable, ElemID: OIDBool},
		{ID: OIDByteaArray, Name: "_bytea", Cat: CatArray, Size: SizeVariable, ElemID: OIDBytea},
		{ID: OIDInt2Array, Name: "_int2", Cat: CatArray, Size: SizeVariable, ElemID: OIDInt2},
		{ID: OIDInt4Array, Name: "_int4", Cat: CatArray, Size: SizeVariable, ElemID: OIDInt4},
		{ID: OIDInt8Array, Name: "_int8", Cat: CatArray, Size: SizeVariable, ElemID: OIDInt8},
		{ID: OIDTextArray, Name: "_text", Cat: CatArray, Size: SizeVariable, ElemID: OIDText},
		{ID: OIDFloat4Array, Name: "_float4", Cat: CatArray, Size: SizeVariable, ElemID: OIDFloat4},
		{ID: OIDFloat8Array, Name: "_float8", Cat: CatArray, Size: SizeVariable, ElemID: OIDFloat8},
		{ID: OIDNumericArray, Name: "_numeric", Cat: CatArray, Size: SizeVariable, ElemID: OIDNumeric},
		{ID: OIDUUIDArray, Name: "_uuid", Cat: CatArray, Size: SizeVariable, ElemID: OIDUUID},
		{ID: OIDTimestampArray, Name: "_timestamp", Cat: CatArray, Size: SizeVariable, ElemID: OIDTimestamp},
		{ID: OIDTimestampTzArray, Name: "_timestamptz", Cat: CatArray, Size: SizeVariable, ElemID: OIDTimestampTz},
	})
}

// PreferredOID maps a value kind to the OID used for parameter typing.
func PreferredOID(v value.Value) int32 {
	switch v.Kind() {
	case value.KindBool:
		return OIDBool
	case value.KindTinyInt, value.KindSmallInt:
		return OIDInt2
	case value.KindInt:
		return OIDInt4
	case value.KindBigInt:
		return OIDInt8
	case value.KindFloat:
		return OIDFloat4
	case value.KindDouble:
		return OIDFloat8
	case value.KindDecimal:
		return OIDNumeric
	case value.KindBytes:
		return OIDBytea
	case value.KindDate:
		return OIDDate
	case value.KindTime:
		return OIDTime
	case value.KindTimestamp:
		return OIDTimestamp
	case value.KindTimestampTz:
		return OIDTimestampTz
	case value.KindUUID:
		return OIDUUID
	case value.KindJSON:
		return OIDJSONB
	default:
		return OIDText
	}
}

// PgEncodeText renders v in the PostgreSQL text format. The second
// return is false for SQL NULL.
func PgEncodeText(v value.Value) (string, bool, error) {
	switch v.Kind() {
	case value.KindNull:
		return "", false, nil
	case value.KindBool:
		b, _ := v.BoolVal()
		if b {
			return "t", true, nil
		}
		return "f", true, nil
	case value.KindTinyInt, value.KindSmallInt, value.KindInt, value.KindBigInt:
		i, _ := v.IntVal()
		return strconv.FormatInt(i, 10), true, nil
	case value.KindFloat, value.KindDouble:
		f, _ := v.FloatVal()
		return pgFormatFloat(f), true, nil
	case value.KindDecimal, value.KindText:
		s, _ := v.StringVal()
		return s, true, nil
	case value.KindBytes:
		b, _ := v.BytesVal()
		return `\x` + hex.EncodeToString(b), true, nil
	case value.KindDate:
		d, _ := v.IntVal()
		return FormatDate(int32(d)), true, nil
	case value.KindTime:
		t, _ := v.IntVal()
		return FormatTimeOfDay(t), true, nil
	case value.KindTimestamp, value.KindTimestampTz:
		us, _ := v.IntVal()
		return FormatTimestamp(us, ' '), true, nil
	case value.KindUUID:
		u, _ := v.UUIDVal()
		return uuid.UUID(u).String(), true, nil
	case value.KindJSON:
		tree, _ := v.JSONVal()
		b, err := json.Marshal(tree)
		if err != nil {
			return "", false, sqlerr.Wrap(sqlerr.Serde, err, "encode json")
		}
		return string(b), true, nil
	case value.KindArray:
		elems, _ := v.ArrayVal()
		return pgEncodeArrayText(elems)
	default:
		return "", false, sqlerr.New(sqlerr.Serde, "cannot encode %s as a parameter", v.Kind())
	}
}

// pgFormatFloat renders IEEE-754 specials the way PostgreSQL spells
// them.
func pgFormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func pgEncodeArrayText(elems []value.Value) (string, bool, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		if e.IsNull() {
			b.WriteString("NULL")
			continue
		}
		s, _, err := PgEncodeText(e)
		if err != nil {
			return "", false, err
		}
		if needsArrayQuoting(s) {
			b.WriteByte('"')
			b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s))
			b.WriteByte('"')
		} else {
			b.WriteString(s)
		}
	}
	b.WriteByte('}')
	return b.String(), true, nil
}

func needsArrayQuoting(s string) bool {
	if s == "" || strings.EqualFold(s, "null") {
		return true
	}
	return strings.ContainsAny(s, `{},"\ `)
}

// PgEncodeBinary renders v in the PostgreSQL binary format for oid.
// The bool result is false for SQL NULL (wire length -1).
func PgEncodeBinary(v value.Value, oid int32) ([]byte, bool, error) {
	if v.IsNull() {
		return nil, false, nil
	}
	switch oid {
	case OIDBool:
		b, ok := v.BoolVal()
		if !ok {
			return nil, false, binaryMismatch(v, "bool")
		}
		if b {
			return []byte{1}, true, nil
		}
		return []byte{0}, true, nil
	case OIDInt2:
		i, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "int2")
		}
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(int16(i)))
		return out, true, nil
	case OIDInt4, OIDOID:
		i, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "int4")
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(int32(i)))
		return out, true, nil
	case OIDInt8:
		i, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "int8")
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(i))
		return out, true, nil
	case OIDFloat4:
		f, ok := v.FloatVal()
		if !ok {
			return nil, false, binaryMismatch(v, "float4")
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(float32(f)))
		return out, true, nil
	case OIDFloat8:
		f, ok := v.FloatVal()
		if !ok {
			return nil, false, binaryMismatch(v, "float8")
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(f))
		return out, true, nil
	case OIDBytea:
		b, ok := v.BytesVal()
		if !ok {
			return nil, false, binaryMismatch(v, "bytea")
		}
		return b, true, nil
	case OIDDate:
		d, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "date")
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(int32(d)-pgDateEpochDays))
		return out, true, nil
	case OIDTime:
		t, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "time")
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(t))
		return out, true, nil
	case OIDTimestamp, OIDTimestampTz:
		us, ok := v.IntVal()
		if !ok {
			return nil, false, binaryMismatch(v, "timestamp")
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(us-pgTimestampEpochMicro))
		return out, true, nil
	case OIDUUID:
		u, ok := v.UUIDVal()
		if !ok {
			return nil, false, binaryMismatch(v, "uuid")
		}
		return append([]byte(nil), u[:]...), true, nil
	case OIDJSONB:
		tree, ok := v.JSONVal()
		if !ok {
			return nil, false, binaryMismatch(v, "jsonb")
		}
		text, err := json.Marshal(tree)
		if err != nil {
			return nil, false, sqlerr.Wrap(sqlerr.Serde, err, "encode jsonb")
		}
		// JSONB binary leads with a version byte of 1.
		return append([]byte{1}, text...), true, nil
	default:
		// Fall back to the text representation in a binary envelope.
		s, notNull, err := PgEncodeText(v)
		if err != nil || !notNull {
			return nil, notNull, err
		}
		return []byte(s), true, nil
	}
}

func binaryMismatch(v value.Value, want string) error {
	return sqlerr.TypeError(want, v.Kind().String(), "")
}

// PgDecode decodes a wire column. format 0 is text, 1 binary; data is
// nil for SQL NULL.
func PgDecode(oid int32, format int16, data []byte) (value.Value, error) {
	if data == nil {
		return value.Null(), nil
	}
	if format == 1 {
		return pgDecodeBinary(oid, data)
	}
	return pgDecodeText(oid, string(data))
}

func pgDecodeText(oid int32, s string) (value.Value, error) {
	switch oid {
	case OIDBool:
		return value.Bool(s == "t" || s == "true"), nil
	case OIDInt2:
		i, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return value.Null(), decodeErr(err, "int2", s)
		}
		return value.SmallInt(int16(i)), nil
	case OIDInt4, OIDOID:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return value.Null(), decodeErr(err, "int4", s)
		}
		return value.Int(int32(i)), nil
	case OIDInt8:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value.Null(), decodeErr(err, "int8", s)
		}
		return value.BigInt(i), nil
	case OIDFloat4:
		f, err := pgParseFloat(s, 32)
		if err != nil {
			return value.Null(), err
		}
		return value.Float(float32(f)), nil
	case OIDFloat8:
		f, err := pgParseFloat(s, 64)
		if err != nil {
			return value.Null(), err
		}
		return value.Double(f), nil
	case OIDNumeric:
		return value.Decimal(s), nil
	case OIDBytea:
		b, err := DecodeByteaText(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Bytes(b), nil
	case OIDDate:
		d, err := ParseDate(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Date(d), nil
	case OIDTime:
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Time(t), nil
	case OIDTimestamp:
		us, err := ParseTimestamp(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Timestamp(us), nil
	case OIDTimestampTz:
		us, err := ParseTimestamp(stripTzOffset(s))
		if err != nil {
			return value.Null(), err
		}
		return value.TimestampTz(us), nil
	case OIDUUID:
		return value.ParseUUID(s)
	case OIDJSON, OIDJSONB:
		var tree any
		if err := json.Unmarshal([]byte(s), &tree); err != nil {
			return value.Null(), decodeErr(err, "json", s)
		}
		return value.JSON(tree), nil
	default:
		return value.Text(s), nil
	}
}

// stripTzOffset removes a trailing +HH[:MM] / -HH[:MM] zone suffix from
// a timestamptz literal. Only the suffix after the time-of-day part is
// considered, so date hyphens are untouched.
func stripTzOffset(s string) string {
	sep := strings.IndexAny(s, "T ")
	if sep < 0 {
		return s
	}
	for i := len(s) - 1; i > sep; i-- {
		if s[i] == '+' || s[i] == '-' {
			return s[:i]
		}
	}
	return s
}

func pgParseFloat(s string, bits int) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, decodeErr(err, "float", s)
	}
	return f, nil
}

func pgDecodeBinary(oid int32, data []byte) (value.Value, error) {
	switch oid {
	case OIDBool:
		if len(data) != 1 {
			return value.Null(), lengthErr("bool", 1, len(data))
		}
		return value.Bool(data[0] != 0), nil
	case OIDInt2:
		if len(data) != 2 {
			return value.Null(), lengthErr("int2", 2, len(data))
		}
		return value.SmallInt(int16(binary.BigEndian.Uint16(data))), nil
	case OIDInt4, OIDOID:
		if len(data) != 4 {
			return value.Null(), lengthErr("int4", 4, len(data))
		}
		return value.Int(int32(binary.BigEndian.Uint32(data))), nil
	case OIDInt8:
		if len(data) != 8 {
			return value.Null(), lengthErr("int8", 8, len(data))
		}
		return value.BigInt(int64(binary.BigEndian.Uint64(data))), nil
	case OIDFloat4:
		if len(data) != 4 {
			return value.Null(), lengthErr("float4", 4, len(data))
		}
		return value.Float(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case OIDFloat8:
		if len(data) != 8 {
			return value.Null(), lengthErr("float8", 8, len(data))
		}
		return value.Double(math.Float64frombits(binary.BigEndian.Uint64(data))), nil
	case OIDBytea:
		return value.Bytes(append([]byte(nil), data...)), nil
	case OIDDate:
		if len(data) != 4 {
			return value.Null(), lengthErr("date", 4, len(data))
		}
		return value.Date(int32(binary.BigEndian.Uint32(data)) + pgDateEpochDays), nil
	case OIDTime:
		if len(data) != 8 {
			return value.Null(), lengthErr("time", 8, len(data))
		}
		return value.Time(int64(binary.BigEndian.Uint64(data))), nil
	case OIDTimestamp:
		if len(data) != 8 {
			return value.Null(), lengthErr("timestamp", 8, len(data))
		}
		return value.Timestamp(int64(binary.BigEndian.Uint64(data)) + pgTimestampEpochMicro), nil
	case OIDTimestampTz:
		if len(data) != 8 {
			return value.Null(), lengthErr("timestamptz", 8, len(data))
		}
		return value.TimestampTz(int64(binary.BigEndian.Uint64(data)) + pgTimestampEpochMicro), nil
	case OIDUUID:
		if len(data) != 16 {
			return value.Null(), lengthErr("uuid", 16, len(data))
		}
		var u [16]byte
		copy(u[:], data)
		return value.UUID(u), nil
	case OIDJSONB:
		if len(data) < 1 || data[0] != 1 {
			return value.Null(), sqlerr.New(sqlerr.Protocol, "jsonb binary payload missing version byte")
		}
		var tree any
		if err := json.Unmarshal(data[1:], &tree); err != nil {
			return value.Null(), decodeErr(err, "jsonb", "")
		}
		return value.JSON(tree), nil
	default:
		return pgDecodeText(oid, string(data))
	}
}

// DecodeByteaText decodes PostgreSQL's text bytea formats: the \x hex
// form and the legacy backslash-escape form. Stray backslashes are
// rejected.
func DecodeByteaText(s string) ([]byte, error) {
	if strings.HasPrefix(s, `\x`) {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, sqlerr.Wrap(sqlerr.Protocol, err, "malformed hex bytea")
		}
		return b, nil
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			out = append(out, '\\')
			i += 2
			continue
		}
		if i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			n, _ := strconv.ParseUint(s[i+1:i+4], 8, 16)
			if n > 255 {
				return nil, sqlerr.New(sqlerr.Protocol, "bytea octal escape out of range")
			}
			out = append(out, byte(n))
			i += 4
			continue
		}
		return nil, sqlerr.New(sqlerr.Protocol, "stray backslash in bytea text at offset %d", i)
	}
	return out, nil
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

func decodeErr(err error, typ, raw string) error {
	return sqlerr.Wrap(sqlerr.Serde, err, "decode %s from %q", typ, raw)
}

func lengthErr(typ string, want, got int) error {
	return sqlerr.New(sqlerr.Protocol, "%s payload is %d bytes, want %d", typ, got, want)
}
