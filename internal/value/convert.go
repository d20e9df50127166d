package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"sqlmodel/internal/sqlerr"
)

// Typed extraction. Every conversion failure is a sqlerr.TypeConversion
// error recording the expected type name, the actual kind, and, when
// the caller extracted by name, the column.

func typeErr(expected string, v Value, column string) error {
	return sqlerr.TypeError(expected, v.Kind().String(), column)
}

// AsBool converts to bool.
func AsBool(v Value, column string) (bool, error) {
	if b, ok := v.BoolVal(); ok {
		return b, nil
	}
	return false, typeErr("bool", v, column)
}

// AsInt64 converts any integer kind to int64.
func AsInt64(v Value, column string) (int64, error) {
	if i, ok := v.IntVal(); ok {
		return i, nil
	}
	return 0, typeErr("bigint", v, column)
}

// AsInt32 converts with range checking.
func AsInt32(v Value, column string) (int32, error) {
	i, err := AsInt64(v, column)
	if err != nil {
		return 0, typeErr("int", v, column)
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, typeErr("int", v, column)
	}
	return int32(i), nil
}

// AsInt16 converts with range checking.
func AsInt16(v Value, column string) (int16, error) {
	i, err := AsInt64(v, column)
	if err != nil || i < math.MinInt16 || i > math.MaxInt16 {
		return 0, typeErr("smallint", v, column)
	}
	return int16(i), nil
}

// AsInt8 converts with range checking.
func AsInt8(v Value, column string) (int8, error) {
	i, err := AsInt64(v, column)
	if err != nil || i < math.MinInt8 || i > math.MaxInt8 {
		return 0, typeErr("tinyint", v, column)
	}
	return int8(i), nil
}

// AsUint64 converts a non-negative integer.
func AsUint64(v Value, column string) (uint64, error) {
	i, err := AsInt64(v, column)
	if err != nil || i < 0 {
		return 0, typeErr("unsigned bigint", v, column)
	}
	return uint64(i), nil
}

// AsUint32 converts with range checking.
func AsUint32(v Value, column string) (uint32, error) {
	u, err := AsUint64(v, column)
	if err != nil || u > math.MaxUint32 {
		return 0, typeErr("unsigned int", v, column)
	}
	return uint32(u), nil
}

// AsFloat64 converts floats, and widens any integer kind. The widening
// is explicit here rather than hidden in the union.
func AsFloat64(v Value, column string) (float64, error) {
	if f, ok := v.FloatVal(); ok {
		return f, nil
	}
	if i, ok := v.IntVal(); ok {
		return float64(i), nil
	}
	if d, ok := v.DecimalVal(); ok {
		f, _ := d.Float64()
		return f, nil
	}
	return 0, typeErr("double", v, column)
}

// AsFloat32 narrows through AsFloat64; the lossy cast is the caller's
// explicit choice of target type.
func AsFloat32(v Value, column string) (float32, error) {
	f, err := AsFloat64(v, column)
	if err != nil {
		return 0, typeErr("float", v, column)
	}
	return float32(f), nil
}

// AsString converts Text and Decimal variants.
func AsString(v Value, column string) (string, error) {
	if s, ok := v.StringVal(); ok {
		return s, nil
	}
	return "", typeErr("text", v, column)
}

// AsBytes converts Bytes (and the raw form of Uuid).
func AsBytes(v Value, column string) ([]byte, error) {
	if b, ok := v.BytesVal(); ok {
		return b, nil
	}
	return nil, typeErr("bytes", v, column)
}

// AsUUID converts a Uuid variant or exactly 16 raw bytes.
func AsUUID(v Value, column string) ([16]byte, error) {
	if u, ok := v.UUIDVal(); ok {
		return u, nil
	}
	if b, ok := v.BytesVal(); ok && len(b) == 16 {
		var out [16]byte
		copy(out[:], b)
		return out, nil
	}
	var zero [16]byte
	return zero, typeErr("uuid", v, column)
}

// AsJSON returns the parsed tree of a Json variant, or parses a Text
// variant holding JSON.
func AsJSON(v Value, column string) (any, error) {
	if t, ok := v.JSONVal(); ok {
		return t, nil
	}
	if s, ok := v.StringVal(); ok {
		var tree any
		if err := json.Unmarshal([]byte(s), &tree); err == nil {
			return tree, nil
		}
	}
	return nil, typeErr("json", v, column)
}

// Row-level typed accessors: extraction by name attaches the column to
// any conversion failure; NULL surfaces as a conversion failure for the
// non-pointer forms and as ok=false for the Null* forms.

func (r *Row) named(name string) (Value, error) {
	v, ok := r.Get(name)
	if !ok {
		return Null(), sqlerr.New(sqlerr.QueryNotFound, "no column %q", name)
	}
	return v, nil
}

func (r *Row) Bool(name string) (bool, error) {
	v, err := r.named(name)
	if err != nil {
		return false, err
	}
	return AsBool(v, name)
}

func (r *Row) Int64(name string) (int64, error) {
	v, err := r.named(name)
	if err != nil {
		return 0, err
	}
	return AsInt64(v, name)
}

func (r *Row) Float64(name string) (float64, error) {
	v, err := r.named(name)
	if err != nil {
		return 0, err
	}
	return AsFloat64(v, name)
}

func (r *Row) String(name string) (string, error) {
	v, err := r.named(name)
	if err != nil {
		return "", err
	}
	return AsString(v, name)
}

func (r *Row) Bytes(name string) ([]byte, error) {
	v, err := r.named(name)
	if err != nil {
		return nil, err
	}
	return AsBytes(v, name)
}

// NullInt64 returns (nil, nil) for SQL NULL.
func (r *Row) NullInt64(name string) (*int64, error) {
	v, err := r.named(name)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	i, err := AsInt64(v, name)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// NullString returns (nil, nil) for SQL NULL.
func (r *Row) NullString(name string) (*string, error) {
	v, err := r.named(name)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	s, err := AsString(v, name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Describe renders "name=value" pairs for diagnostics.
func (r *Row) Describe() string {
	out := ""
	for i, n := range r.header.Names() {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", n, r.values[i])
	}
	return out
}

// FormatInt is a shared decimal formatter used by the codecs.
func FormatInt(i int64) string { return strconv.FormatInt(i, 10) }
