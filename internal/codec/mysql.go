package codec

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"

	"github.com/google/uuid"

	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// MySQL protocol field-type codes.
const (
	MyTypeDecimal    = 0x00
	MyTypeTiny       = 0x01
	MyTypeShort      = 0x02
	MyTypeLong       = 0x03
	MyTypeFloat      = 0x04
	MyTypeDouble     = 0x05
	MyTypeNull       = 0x06
	MyTypeTimestamp  = 0x07
	MyTypeLongLong   = 0x08
	MyTypeInt24      = 0x09
	MyTypeDate       = 0x0a
	MyTypeTime       = 0x0b
	MyTypeDatetime   = 0x0c
	MyTypeYear       = 0x0d
	MyTypeVarchar    = 0x0f
	MyTypeBit        = 0x10
	MyTypeJSON       = 0xf5
	MyTypeNewDecimal = 0xf6
	MyTypeEnum       = 0xf7
	MyTypeSet        = 0xf8
	MyTypeTinyBlob   = 0xf9
	MyTypeMedBlob    = 0xfa
	MyTypeLongBlob   = 0xfb
	MyTypeBlob       = 0xfc
	MyTypeVarString  = 0xfd
	MyTypeString     = 0xfe
	MyTypeGeometry   = 0xff
)

// MyUnsignedFlag is OR-ed into a parameter's flags byte for unsigned
// columns.
const MyUnsignedFlag = 0x80

// MySQLRegistry returns the field-type registry for the MySQL driver.
func MySQLRegistry() *Registry {
	return NewRegistry([]TypeInfo{
		{ID: MyTypeTiny, Name: "tinyint", Cat: CatNumeric, Size: 1, Binary: true},
		{ID: MyTypeShort, Name: "smallint", Cat: CatNumeric, Size: 2, Binary: true},
		{ID: MyTypeInt24, Name: "mediumint", Cat: CatNumeric, Size: 4, Binary: true},
		{ID: MyTypeLong, Name: "int", Cat: CatNumeric, Size: 4, Binary: true},
		{ID: MyTypeLongLong, Name: "bigint", Cat: CatNumeric, Size: 8, Binary: true},
		{ID: MyTypeFloat, Name: "float", Cat: CatNumeric, Size: 4, Binary: true},
		{ID: MyTypeDouble, Name: "double", Cat: CatNumeric, Size: 8, Binary: true},
		{ID: MyTypeNewDecimal, Name: "decimal", Cat: CatNumeric, Size: SizeVariable, Binary: true},
		{ID: MyTypeYear, Name: "year", Cat: CatNumeric, Size: 2, Binary: true},
		{ID: MyTypeVarchar, Name: "varchar", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: MyTypeVarString, Name: "var_string", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: MyTypeString, Name: "char", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: MyTypeEnum, Name: "enum", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: MyTypeSet, Name: "set", Cat: CatString, Size: SizeVariable, Binary: true},
		{ID: MyTypeBlob, Name: "blob", Cat: CatBinary, Size: SizeVariable, Binary: true},
		{ID: MyTypeTinyBlob, Name: "tinyblob", Cat: CatBinary, Size: SizeVariable, Binary: true},
		{ID: MyTypeMedBlob, Name: "mediumblob", Cat: CatBinary, Size: SizeVariable, Binary: true},
		{ID: MyTypeLongBlob, Name: "longblob", Cat: CatBinary, Size: SizeVariable, Binary: true},
		{ID: MyTypeDate, Name: "date", Cat: CatDateTime, Size: SizeVariable, Binary: true},
		{ID: MyTypeTime, Name: "time", Cat: CatDateTime, Size: SizeVariable, Binary: true},
		{ID: MyTypeDatetime, Name: "datetime", Cat: CatDateTime, Size: SizeVariable, Binary: true},
		{ID: MyTypeTimestamp, Name: "timestamp", Cat: CatDateTime, Size: SizeVariable, Binary: true},
		{ID: MyTypeJSON, Name: "json", Cat: CatJSON, Size: SizeVariable, Binary: true},
		{ID: MyTypeBit, Name: "bit", Cat: CatBinary, Size: SizeVariable, Binary: true},
		{ID: MyTypeGeometry, Name: "geometry", Cat: CatGeometric, Size: SizeVariable, Binary: true},
		{ID: MyTypeNull, Name: "null", Cat: CatUnknown, Size: 0, Binary: true},
	})
}

// MyParamType maps a value to its binary-protocol (type, flags) pair.
func MyParamType(v value.Value) (byte, byte) {
	switch v.Kind() {
	case value.KindNull, value.KindDefault:
		return MyTypeNull, 0
	case value.KindBool, value.KindTinyInt:
		return MyTypeTiny, 0
	case value.KindSmallInt:
		return MyTypeShort, 0
	case value.KindInt:
		return MyTypeLong, 0
	case value.KindBigInt:
		return MyTypeLongLong, 0
	case value.KindFloat:
		return MyTypeFloat, 0
	case value.KindDouble:
		return MyTypeDouble, 0
	case value.KindDecimal:
		return MyTypeNewDecimal, 0
	case value.KindDate:
		return MyTypeDate, 0
	case value.KindTime:
		return MyTypeTime, 0
	case value.KindTimestamp, value.KindTimestampTz:
		return MyTypeDatetime, 0
	case value.KindBytes, value.KindUUID:
		return MyTypeBlob, 0
	default:
		// Text, JSON, and arrays travel as strings.
		return MyTypeVarString, 0
	}
}

// MyEncodeBinary appends the binary-protocol payload of v to dst.
// NULL values contribute no bytes (they live in the NULL bitmap).
func MyEncodeBinary(dst []byte, v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindNull, value.KindDefault:
		return dst, nil
	case value.KindBool:
		b, _ := v.BoolVal()
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case value.KindTinyInt:
		i, _ := v.IntVal()
		return append(dst, byte(i)), nil
	case value.KindSmallInt:
		i, _ := v.IntVal()
		return binary.LittleEndian.AppendUint16(dst, uint16(int16(i))), nil
	case value.KindInt:
		i, _ := v.IntVal()
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(i))), nil
	case value.KindBigInt:
		i, _ := v.IntVal()
		return binary.LittleEndian.AppendUint64(dst, uint64(i)), nil
	case value.KindFloat:
		f, _ := v.FloatVal()
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(f))), nil
	case value.KindDouble:
		f, _ := v.FloatVal()
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil
	case value.KindDecimal, value.KindText:
		s, _ := v.StringVal()
		return AppendLenencString(dst, s), nil
	case value.KindBytes, value.KindUUID:
		b, _ := v.BytesVal()
		return AppendLenencBytes(dst, b), nil
	case value.KindDate:
		d, _ := v.IntVal()
		return myAppendDate(dst, int32(d)), nil
	case value.KindTime:
		t, _ := v.IntVal()
		return myAppendTime(dst, t), nil
	case value.KindTimestamp, value.KindTimestampTz:
		us, _ := v.IntVal()
		return myAppendDatetime(dst, us), nil
	case value.KindJSON:
		tree, _ := v.JSONVal()
		text, err := json.Marshal(tree)
		if err != nil {
			return dst, sqlerr.Wrap(sqlerr.Serde, err, "encode json")
		}
		return AppendLenencBytes(dst, text), nil
	case value.KindArray:
		// MySQL has no array type; arrays travel as JSON text.
		text, err := arrayAsJSONText(v)
		if err != nil {
			return dst, err
		}
		return AppendLenencString(dst, text), nil
	default:
		return dst, sqlerr.New(sqlerr.Serde, "cannot encode %s as a mysql parameter", v.Kind())
	}
}

// myAppendDate encodes {length, year u16le, month u8, day u8}; a
// zero-date is just length 0.
func myAppendDate(dst []byte, days int32) []byte {
	y, m, d := CivilFromDays(days)
	if y == 0 && m == 0 && d == 0 {
		return append(dst, 0)
	}
	dst = append(dst, 4)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(y))
	return append(dst, byte(m), byte(d))
}

// myAppendTime encodes the sign flag, days part, h/m/s, and optional
// microseconds.
func myAppendTime(dst []byte, micros int64) []byte {
	neg := byte(0)
	if micros < 0 {
		neg = 1
		micros = -micros
	}
	us := micros % 1_000_000
	sec := micros / 1_000_000
	days := uint32(sec / 86400)
	h, mi, s := byte((sec/3600)%24), byte((sec/60)%60), byte(sec%60)
	if micros == 0 {
		return append(dst, 0)
	}
	if us == 0 {
		dst = append(dst, 8, neg)
		dst = binary.LittleEndian.AppendUint32(dst, days)
		return append(dst, h, mi, s)
	}
	dst = append(dst, 12, neg)
	dst = binary.LittleEndian.AppendUint32(dst, days)
	dst = append(dst, h, mi, s)
	return binary.LittleEndian.AppendUint32(dst, uint32(us))
}

// myAppendDatetime encodes {year u16, month, day, hour, min, sec,
// optional microseconds u32}.
func myAppendDatetime(dst []byte, micros int64) []byte {
	days := micros / 86_400_000_000
	rem := micros % 86_400_000_000
	if rem < 0 {
		days--
		rem += 86_400_000_000
	}
	y, mo, d := CivilFromDays(int32(days))
	us := rem % 1_000_000
	sec := rem / 1_000_000
	h, mi, s := byte(sec/3600), byte((sec/60)%60), byte(sec%60)
	if us == 0 {
		dst = append(dst, 7)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(y))
		return append(dst, byte(mo), byte(d), h, mi, s)
	}
	dst = append(dst, 11)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(y))
	dst = append(dst, byte(mo), byte(d), h, mi, s)
	return binary.LittleEndian.AppendUint32(dst, uint32(us))
}

// MyDecodeBinary decodes one binary-protocol column value, returning
// the decoded value and the bytes consumed. unsigned reflects the
// column definition's unsigned flag.
func MyDecodeBinary(fieldType byte, unsigned bool, data []byte) (value.Value, int, error) {
	switch fieldType {
	case MyTypeNull:
		return value.Null(), 0, nil
	case MyTypeTiny:
		if len(data) < 1 {
			return value.Null(), 0, shortRead("tiny")
		}
		if unsigned {
			return value.SmallInt(int16(data[0])), 1, nil
		}
		return value.TinyInt(int8(data[0])), 1, nil
	case MyTypeShort, MyTypeYear:
		if len(data) < 2 {
			return value.Null(), 0, shortRead("short")
		}
		u := binary.LittleEndian.Uint16(data)
		if unsigned {
			return value.Int(int32(u)), 2, nil
		}
		return value.SmallInt(int16(u)), 2, nil
	case MyTypeLong, MyTypeInt24:
		if len(data) < 4 {
			return value.Null(), 0, shortRead("long")
		}
		u := binary.LittleEndian.Uint32(data)
		if unsigned {
			return value.BigInt(int64(u)), 4, nil
		}
		return value.Int(int32(u)), 4, nil
	case MyTypeLongLong:
		if len(data) < 8 {
			return value.Null(), 0, shortRead("longlong")
		}
		// Unsigned bigints above the signed range would wrap; the
		// signed pass-through matches the column contract.
		return value.BigInt(int64(binary.LittleEndian.Uint64(data))), 8, nil
	case MyTypeFloat:
		if len(data) < 4 {
			return value.Null(), 0, shortRead("float")
		}
		return value.Float(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil
	case MyTypeDouble:
		if len(data) < 8 {
			return value.Null(), 0, shortRead("double")
		}
		return value.Double(math.Float64frombits(binary.LittleEndian.Uint64(data))), 8, nil
	case MyTypeDate, MyTypeDatetime, MyTypeTimestamp:
		return myDecodeTemporal(fieldType, data)
	case MyTypeTime:
		return myDecodeTime(data)
	case MyTypeNewDecimal, MyTypeDecimal:
		s, n, err := ReadLenencString(data)
		if err != nil {
			return value.Null(), 0, err
		}
		return value.Decimal(s), n, nil
	case MyTypeJSON:
		b, n, err := ReadLenencBytes(data)
		if err != nil {
			return value.Null(), 0, err
		}
		var tree any
		if jerr := json.Unmarshal(b, &tree); jerr != nil {
			return value.Null(), 0, decodeErr(jerr, "json", string(b))
		}
		return value.JSON(tree), n, nil
	case MyTypeTinyBlob, MyTypeMedBlob, MyTypeLongBlob, MyTypeBlob, MyTypeBit, MyTypeGeometry:
		b, n, err := ReadLenencBytes(data)
		if err != nil {
			return value.Null(), 0, err
		}
		return value.Bytes(append([]byte(nil), b...)), n, nil
	default:
		s, n, err := ReadLenencString(data)
		if err != nil {
			return value.Null(), 0, err
		}
		return value.Text(s), n, nil
	}
}

func myDecodeTemporal(fieldType byte, data []byte) (value.Value, int, error) {
	if len(data) < 1 {
		return value.Null(), 0, shortRead("temporal")
	}
	l := int(data[0])
	if len(data) < 1+l {
		return value.Null(), 0, shortRead("temporal")
	}
	p := data[1 : 1+l]
	var y, mo, d int
	var h, mi, s byte
	var us uint32
	if l >= 4 {
		y = int(binary.LittleEndian.Uint16(p))
		mo, d = int(p[2]), int(p[3])
	}
	if l >= 7 {
		h, mi, s = p[4], p[5], p[6]
	}
	if l >= 11 {
		us = binary.LittleEndian.Uint32(p[7:])
	}
	days := DaysFromCivil(y, mo, d)
	if l == 0 {
		days = 0
	}
	if fieldType == MyTypeDate {
		return value.Date(days), 1 + l, nil
	}
	micros := int64(days)*86_400_000_000 +
		(int64(h)*3600+int64(mi)*60+int64(s))*1_000_000 + int64(us)
	return value.Timestamp(micros), 1 + l, nil
}

func myDecodeTime(data []byte) (value.Value, int, error) {
	if len(data) < 1 {
		return value.Null(), 0, shortRead("time")
	}
	l := int(data[0])
	if l == 0 {
		return value.Time(0), 1, nil
	}
	if len(data) < 1+l || l < 8 {
		return value.Null(), 0, shortRead("time")
	}
	p := data[1 : 1+l]
	neg := p[0] == 1
	days := binary.LittleEndian.Uint32(p[1:])
	h, mi, s := p[5], p[6], p[7]
	var us uint32
	if l >= 12 {
		us = binary.LittleEndian.Uint32(p[8:])
	}
	micros := (int64(days)*86400+int64(h)*3600+int64(mi)*60+int64(s))*1_000_000 + int64(us)
	if neg {
		micros = -micros
	}
	return value.Time(micros), 1 + l, nil
}

// MyDecodeText decodes a text-protocol column using the column's field
// type.
func MyDecodeText(fieldType byte, unsigned bool, s string) (value.Value, error) {
	switch fieldType {
	case MyTypeTiny:
		i, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return value.Null(), decodeErr(err, "tinyint", s)
		}
		if unsigned {
			return value.SmallInt(int16(i)), nil
		}
		return value.TinyInt(int8(i)), nil
	case MyTypeShort, MyTypeYear:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return value.Null(), decodeErr(err, "smallint", s)
		}
		if unsigned {
			return value.Int(int32(i)), nil
		}
		return value.SmallInt(int16(i)), nil
	case MyTypeLong, MyTypeInt24:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value.Null(), decodeErr(err, "int", s)
		}
		if unsigned {
			return value.BigInt(i), nil
		}
		return value.Int(int32(i)), nil
	case MyTypeLongLong:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value.Null(), decodeErr(err, "bigint", s)
		}
		return value.BigInt(i), nil
	case MyTypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return value.Null(), decodeErr(err, "float", s)
		}
		return value.Float(float32(f)), nil
	case MyTypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value.Null(), decodeErr(err, "double", s)
		}
		return value.Double(f), nil
	case MyTypeNewDecimal, MyTypeDecimal:
		return value.Decimal(s), nil
	case MyTypeDate:
		d, err := ParseDate(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Date(d), nil
	case MyTypeTime:
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Time(t), nil
	case MyTypeDatetime, MyTypeTimestamp:
		us, err := ParseTimestamp(s)
		if err != nil {
			return value.Null(), err
		}
		return value.Timestamp(us), nil
	case MyTypeJSON:
		var tree any
		if err := json.Unmarshal([]byte(s), &tree); err != nil {
			return value.Null(), decodeErr(err, "json", s)
		}
		return value.JSON(tree), nil
	case MyTypeTinyBlob, MyTypeMedBlob, MyTypeLongBlob, MyTypeBlob, MyTypeBit, MyTypeGeometry:
		return value.Bytes([]byte(s)), nil
	default:
		return value.Text(s), nil
	}
}

// arrayAsJSONText serializes an Array value as JSON text for dialects
// without native arrays.
func arrayAsJSONText(v value.Value) (string, error) {
	elems, _ := v.ArrayVal()
	parts := make([]any, len(elems))
	for i, e := range elems {
		parts[i] = plainJSON(e)
	}
	b, err := json.Marshal(parts)
	if err != nil {
		return "", sqlerr.Wrap(sqlerr.Serde, err, "encode array")
	}
	return string(b), nil
}

func plainJSON(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.BoolVal()
		return b
	case value.KindFloat, value.KindDouble:
		f, _ := v.FloatVal()
		return f
	case value.KindText, value.KindDecimal:
		s, _ := v.StringVal()
		return s
	case value.KindJSON:
		t, _ := v.JSONVal()
		return t
	case value.KindArray:
		elems, _ := v.ArrayVal()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = plainJSON(e)
		}
		return out
	case value.KindUUID:
		u, _ := v.UUIDVal()
		return uuid.UUID(u).String()
	default:
		i, _ := v.IntVal()
		return i
	}
}

func shortRead(typ string) error {
	return sqlerr.New(sqlerr.Protocol, "short %s payload", typ)
}
