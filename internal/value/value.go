// Package value defines the tagged union of SQL values exchanged between
// the drivers, the builders, and the session, together with the Row type
// produced by queries.
package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind discriminates the Value union.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindTinyInt
	KindSmallInt
	KindInt
	KindBigInt
	KindFloat
	KindDouble
	KindDecimal
	KindText
	KindBytes
	KindDate        // days since the Unix epoch, signed 32-bit
	KindTime        // microseconds since midnight, signed 64-bit
	KindTimestamp   // microseconds since the Unix epoch, UTC
	KindTimestampTz // same payload, timezone-aware
	KindUUID        // 16 bytes
	KindJSON        // parsed tree
	KindArray
	// KindDefault is a builder-only placeholder meaning "emit the
	// literal DEFAULT"; it never crosses the wire.
	KindDefault
)

var kindNames = [...]string{
	"null", "bool", "tinyint", "smallint", "int", "bigint",
	"float", "double", "decimal", "text", "bytes",
	"date", "time", "timestamp", "timestamptz",
	"uuid", "json", "array", "default",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a tagged union over the SQL types the toolkit understands.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	arr  []Value
	js   any
}

// Constructors.

func Null() Value                { return Value{} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func TinyInt(v int8) Value       { return Value{kind: KindTinyInt, i: int64(v)} }
func SmallInt(v int16) Value     { return Value{kind: KindSmallInt, i: int64(v)} }
func Int(v int32) Value          { return Value{kind: KindInt, i: int64(v)} }
func BigInt(v int64) Value       { return Value{kind: KindBigInt, i: v} }
func Float(v float32) Value      { return Value{kind: KindFloat, f: float64(v)} }
func Double(v float64) Value     { return Value{kind: KindDouble, f: v} }
func Decimal(s string) Value     { return Value{kind: KindDecimal, s: s} }
func Text(s string) Value        { return Value{kind: KindText, s: s} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, raw: b} }
func Date(days int32) Value      { return Value{kind: KindDate, i: int64(days)} }
func Time(micros int64) Value    { return Value{kind: KindTime, i: micros} }
func Timestamp(us int64) Value   { return Value{kind: KindTimestamp, i: us} }
func TimestampTz(us int64) Value { return Value{kind: KindTimestampTz, i: us} }
func JSON(tree any) Value        { return Value{kind: KindJSON, js: tree} }
func Array(vs []Value) Value     { return Value{kind: KindArray, arr: vs} }
func Default() Value             { return Value{kind: KindDefault} }

// UUID builds a Uuid value from 16 raw bytes.
func UUID(b [16]byte) Value {
	return Value{kind: KindUUID, raw: append([]byte(nil), b[:]...)}
}

// ParseUUID builds a Uuid value from its canonical text form.
func ParseUUID(s string) (Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Value{}, err
	}
	return UUID(u), nil
}

// Kind returns the discriminant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsDefault reports whether v is the DEFAULT placeholder.
func (v Value) IsDefault() bool { return v.kind == KindDefault }

// Raw payload accessors. Each returns the payload and whether the kind
// matched; typed conversion with error reporting lives in convert.go.

func (v Value) BoolVal() (bool, bool) { return v.b, v.kind == KindBool }

// IntVal returns the integral payload for any integer-carrying kind
// (including Date/Time/Timestamp payloads).
func (v Value) IntVal() (int64, bool) {
	switch v.kind {
	case KindTinyInt, KindSmallInt, KindInt, KindBigInt,
		KindDate, KindTime, KindTimestamp, KindTimestampTz:
		return v.i, true
	}
	return 0, false
}

func (v Value) FloatVal() (float64, bool) {
	return v.f, v.kind == KindFloat || v.kind == KindDouble
}

func (v Value) StringVal() (string, bool) {
	return v.s, v.kind == KindText || v.kind == KindDecimal
}

func (v Value) BytesVal() ([]byte, bool) {
	return v.raw, v.kind == KindBytes || v.kind == KindUUID
}

func (v Value) ArrayVal() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) JSONVal() (any, bool) { return v.js, v.kind == KindJSON }

// DecimalVal parses a Decimal variant with shopspring/decimal,
// preserving the stored precision.
func (v Value) DecimalVal() (decimal.Decimal, bool) {
	if v.kind != KindDecimal {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(v.s)
	return d, err == nil
}

// UUIDVal returns the 16 UUID bytes.
func (v Value) UUIDVal() ([16]byte, bool) {
	var out [16]byte
	if v.kind == KindUUID && len(v.raw) == 16 {
		copy(out[:], v.raw)
		return out, true
	}
	return out, false
}

// Equal reports deep equality of kind and payload. JSON trees compare
// structurally.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindDefault:
		return true
	case KindBool:
		return v.b == o.b
	case KindFloat, KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindDecimal, KindText:
		return v.s == o.s
	case KindBytes, KindUUID:
		return bytes.Equal(v.raw, o.raw)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindJSON:
		a, _ := json.Marshal(canonicalJSON(v.js))
		b, _ := json.Marshal(canonicalJSON(o.js))
		return bytes.Equal(a, b)
	default:
		return v.i == o.i
	}
}

// String renders a human-oriented literal, used in logs and error text.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindDefault:
		return "DEFAULT"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDecimal:
		return v.s
	case KindText:
		return v.s
	case KindBytes:
		return "\\x" + hex.EncodeToString(v.raw)
	case KindUUID:
		u, _ := uuid.FromBytes(v.raw)
		return u.String()
	case KindJSON:
		b, _ := json.Marshal(v.js)
		return string(b)
	case KindArray:
		return fmt.Sprintf("%v", v.arr)
	default:
		return strconv.FormatInt(v.i, 10)
	}
}

// MarshalJSON encodes the value as a {"t": kind, "v": payload} pair so
// snapshots distinguish kinds that share a payload representation.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNull, KindDefault:
		payload = nil
	case KindBool:
		payload = v.b
	case KindFloat, KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			payload = strconv.FormatFloat(v.f, 'g', -1, 64)
		} else {
			payload = v.f
		}
	case KindDecimal, KindText:
		payload = v.s
	case KindBytes:
		payload = hex.EncodeToString(v.raw)
	case KindUUID:
		u, _ := uuid.FromBytes(v.raw)
		payload = u.String()
	case KindJSON:
		payload = canonicalJSON(v.js)
	case KindArray:
		payload = v.arr
	default:
		payload = v.i
	}
	return json.Marshal(map[string]any{"t": v.kind.String(), "v": payload})
}

// canonicalJSON normalizes a parsed JSON tree so structurally equal
// trees serialize identically (map keys sorted by encoding/json,
// numeric types unified).
func canonicalJSON(tree any) any {
	switch t := tree.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = canonicalJSON(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalJSON(e)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return t
	}
}
