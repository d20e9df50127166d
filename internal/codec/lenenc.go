package codec

import (
	"encoding/binary"

	"sqlmodel/internal/sqlerr"
)

// MySQL length-encoded integers: values below 0xFB fit one byte;
// 0xFC/0xFD/0xFE introduce 2-, 3-, and 8-byte little-endian forms.

// AppendLenencInt appends the length-encoded form of v.
func AppendLenencInt(dst []byte, v uint64) []byte {
	switch {
	case v < 0xFB:
		return append(dst, byte(v))
	case v <= 0xFFFF:
		dst = append(dst, 0xFC)
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case v <= 0xFFFFFF:
		dst = append(dst, 0xFD, byte(v), byte(v>>8), byte(v>>16))
		return dst
	default:
		dst = append(dst, 0xFE)
		return binary.LittleEndian.AppendUint64(dst, v)
	}
}

// ReadLenencInt decodes a length-encoded integer, returning the value
// and bytes consumed.
func ReadLenencInt(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, shortRead("length-encoded int")
	}
	switch first := data[0]; {
	case first < 0xFB:
		return uint64(first), 1, nil
	case first == 0xFC:
		if len(data) < 3 {
			return 0, 0, shortRead("length-encoded int")
		}
		return uint64(binary.LittleEndian.Uint16(data[1:])), 3, nil
	case first == 0xFD:
		if len(data) < 4 {
			return 0, 0, shortRead("length-encoded int")
		}
		return uint64(data[1]) | uint64(data[2])<<8 | uint64(data[3])<<16, 4, nil
	case first == 0xFE:
		if len(data) < 9 {
			return 0, 0, shortRead("length-encoded int")
		}
		return binary.LittleEndian.Uint64(data[1:]), 9, nil
	default:
		return 0, 0, sqlerr.New(sqlerr.Protocol, "invalid length-encoded int prefix 0x%02x", data[0])
	}
}

// AppendLenencBytes appends a length-prefixed byte string.
func AppendLenencBytes(dst, b []byte) []byte {
	dst = AppendLenencInt(dst, uint64(len(b)))
	return append(dst, b...)
}

// AppendLenencString appends a length-prefixed string.
func AppendLenencString(dst []byte, s string) []byte {
	dst = AppendLenencInt(dst, uint64(len(s)))
	return append(dst, s...)
}

// ReadLenencBytes decodes a length-prefixed byte string, returning the
// payload (aliasing data) and total bytes consumed.
func ReadLenencBytes(data []byte) ([]byte, int, error) {
	l, n, err := ReadLenencInt(data)
	if err != nil {
		return nil, 0, err
	}
	end := n + int(l)
	if len(data) < end {
		return nil, 0, shortRead("length-encoded string")
	}
	return data[n:end], end, nil
}

// ReadLenencString decodes a length-prefixed string.
func ReadLenencString(data []byte) (string, int, error) {
	b, n, err := ReadLenencBytes(data)
	if err != nil {
		return "", 0, err
	}
	return string(b), n, nil
}
