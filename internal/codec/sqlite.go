package codec

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// SQLite storage classes.
const (
	LiteClassInteger = 1
	LiteClassFloat   = 2
	LiteClassText    = 3
	LiteClassBlob    = 4
	LiteClassNull    = 5
)

// SQLiteRegistry returns the storage-class registry. SQLite has no
// binary wire format; everything is bound through the C-API shims.
func SQLiteRegistry() *Registry {
	return NewRegistry([]TypeInfo{
		{ID: LiteClassInteger, Name: "INTEGER", Cat: CatNumeric, Size: 8},
		{ID: LiteClassFloat, Name: "REAL", Cat: CatNumeric, Size: 8},
		{ID: LiteClassText, Name: "TEXT", Cat: CatString, Size: SizeVariable},
		{ID: LiteClassBlob, Name: "BLOB", Cat: CatBinary, Size: SizeVariable},
		{ID: LiteClassNull, Name: "NULL", Cat: CatUnknown, Size: 0},
	})
}

// LiteBind converts a value to the Go binding the SQLite layer passes
// through database/sql: int64, float64, string, []byte, or nil.
// Temporal kinds round-trip as ISO-8601 text with a 'T' separator,
// UUIDs as 16-byte blobs, JSON and arrays as text.
func LiteBind(v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		b, _ := v.BoolVal()
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case value.KindTinyInt, value.KindSmallInt, value.KindInt, value.KindBigInt:
		i, _ := v.IntVal()
		return i, nil
	case value.KindFloat, value.KindDouble:
		f, _ := v.FloatVal()
		return f, nil
	case value.KindDecimal, value.KindText:
		s, _ := v.StringVal()
		return s, nil
	case value.KindBytes:
		b, _ := v.BytesVal()
		return b, nil
	case value.KindDate:
		d, _ := v.IntVal()
		return FormatDate(int32(d)), nil
	case value.KindTime:
		t, _ := v.IntVal()
		return FormatTimeOfDay(t), nil
	case value.KindTimestamp, value.KindTimestampTz:
		us, _ := v.IntVal()
		return FormatTimestamp(us, 'T'), nil
	case value.KindUUID:
		b, _ := v.BytesVal()
		return b, nil
	case value.KindJSON:
		tree, _ := v.JSONVal()
		b, err := json.Marshal(tree)
		if err != nil {
			return nil, sqlerr.Wrap(sqlerr.Serde, err, "encode json")
		}
		return string(b), nil
	case value.KindArray:
		return arrayAsJSONText(v)
	default:
		return nil, sqlerr.New(sqlerr.Serde, "cannot bind %s", v.Kind())
	}
}

// LiteUnbind converts a scanned database/sql value back into the union,
// guided by the column's declared type when one is known.
func LiteUnbind(declared string, raw any) (value.Value, error) {
	if raw == nil {
		return value.Null(), nil
	}
	decl := strings.ToUpper(declared)
	switch rv := raw.(type) {
	case int64:
		if strings.Contains(decl, "BOOL") {
			return value.Bool(rv != 0), nil
		}
		return value.BigInt(rv), nil
	case float64:
		return value.Double(rv), nil
	case []byte:
		if len(rv) == 16 && strings.Contains(decl, "UUID") {
			var u [16]byte
			copy(u[:], rv)
			return value.UUID(u), nil
		}
		return value.Bytes(append([]byte(nil), rv...)), nil
	case string:
		return liteUnbindText(decl, rv)
	case bool:
		return value.Bool(rv), nil
	default:
		return value.Null(), sqlerr.New(sqlerr.Serde, "unsupported scan type %T", raw)
	}
}

func liteUnbindText(decl, s string) (value.Value, error) {
	switch {
	case strings.Contains(decl, "DATETIME") || strings.Contains(decl, "TIMESTAMP"):
		us, err := ParseTimestamp(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Timestamp(us), nil
	case decl == "DATE":
		d, err := ParseDate(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Date(d), nil
	case decl == "TIME":
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Time(t), nil
	case strings.Contains(decl, "DECIMAL") || strings.Contains(decl, "NUMERIC"):
		return value.Decimal(s), nil
	case strings.Contains(decl, "JSON"):
		var tree any
		if err := json.Unmarshal([]byte(s), &tree); err != nil {
			return value.Null(), decodeErr(err, "json", s)
		}
		return value.JSON(tree), nil
	case strings.Contains(decl, "UUID"):
		return value.ParseUUID(s)
	default:
		return value.Text(s), nil
	}
}

// LiteStorageClass reports the storage class a value lands in, used by
// the introspector and tests.
func LiteStorageClass(v value.Value) int32 {
	switch v.Kind() {
	case value.KindNull, value.KindDefault:
		return LiteClassNull
	case value.KindBool, value.KindTinyInt, value.KindSmallInt, value.KindInt, value.KindBigInt:
		return LiteClassInteger
	case value.KindFloat, value.KindDouble:
		return LiteClassFloat
	case value.KindBytes, value.KindUUID:
		return LiteClassBlob
	default:
		return LiteClassText
	}
}

// LiteQuoteLiteral renders a value as a SQLite SQL literal, used when a
// statement cannot carry parameters (PRAGMA arguments).
func LiteQuoteLiteral(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "NULL"
	case value.KindBool:
		b, _ := v.BoolVal()
		if b {
			return "1"
		}
		return "0"
	case value.KindFloat, value.KindDouble:
		f, _ := v.FloatVal()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case value.KindText, value.KindDecimal:
		s, _ := v.StringVal()
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case value.KindUUID:
		u, _ := v.UUIDVal()
		return "'" + uuid.UUID(u).String() + "'"
	default:
		i, _ := v.IntVal()
		return strconv.FormatInt(i, 10)
	}
}
