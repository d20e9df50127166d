package pgwire

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"sqlmodel/internal/sqlerr"
)

// Reader is a ring-buffered pull parser over the backend byte stream.
// Feed appends raw socket bytes; Next decodes at most one complete
// message per call and returns nil when more bytes are needed. The
// driver loops: Next, and on nil, read more from the socket and Feed.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns an empty reader.
func NewReader() *Reader {
	return &Reader{buf: make([]byte, 0, 4096)}
}

// Feed appends incoming bytes.
func (r *Reader) Feed(data []byte) {
	// Compact once the consumed prefix dominates the buffer.
	if r.off > 0 && r.off*2 > len(r.buf) {
		r.buf = append(r.buf[:0], r.buf[r.off:]...)
		r.off = 0
	}
	r.buf = append(r.buf, data...)
}

// Buffered returns the number of undecoded bytes held.
func (r *Reader) Buffered() int { return len(r.buf) - r.off }

// Next decodes the next complete message, or returns nil when the
// buffer holds a partial frame. The returned body aliases the internal
// buffer and is valid until the following Next or Feed.
func (r *Reader) Next() (*Message, error) {
	avail := r.buf[r.off:]
	if len(avail) < 5 {
		return nil, nil
	}
	msgType := avail[0]
	length := int(int32(binary.BigEndian.Uint32(avail[1:5])))
	if length < 4 {
		return nil, sqlerr.New(sqlerr.Protocol, "invalid message length %d for type %q", length, string(msgType))
	}
	total := 1 + length
	if len(avail) < total {
		return nil, nil
	}
	r.off += total
	return &Message{Type: msgType, Body: avail[5:total]}, nil
}

// Body parsers for the backend messages the driver consumes.

// ParseAuthentication returns the auth sub-code and remaining payload.
func ParseAuthentication(body []byte) (int32, []byte, error) {
	if len(body) < 4 {
		return 0, nil, sqlerr.New(sqlerr.Protocol, "short authentication body")
	}
	return int32(binary.BigEndian.Uint32(body)), body[4:], nil
}

// ParseParameterStatus returns the (name, value) pair.
func ParseParameterStatus(body []byte) (string, string, error) {
	parts := bytes.SplitN(body, []byte{0}, 3)
	if len(parts) < 2 {
		return "", "", sqlerr.New(sqlerr.Protocol, "short ParameterStatus body")
	}
	return string(parts[0]), string(parts[1]), nil
}

// ParseBackendKeyData returns the cancellation (processID, secretKey).
func ParseBackendKeyData(body []byte) (int32, int32, error) {
	if len(body) < 8 {
		return 0, 0, sqlerr.New(sqlerr.Protocol, "short BackendKeyData body")
	}
	return int32(binary.BigEndian.Uint32(body)), int32(binary.BigEndian.Uint32(body[4:])), nil
}

// ParseReadyForQuery returns the transaction-status byte.
func ParseReadyForQuery(body []byte) (byte, error) {
	if len(body) < 1 {
		return 0, sqlerr.New(sqlerr.Protocol, "short ReadyForQuery body")
	}
	switch body[0] {
	case TxIdle, TxInBlock, TxFailed:
		return body[0], nil
	}
	return 0, sqlerr.New(sqlerr.Protocol, "unknown transaction status %q", string(body[0]))
}

// ParseRowDescription decodes the field list.
func ParseRowDescription(body []byte) ([]FieldDescription, error) {
	if len(body) < 2 {
		return nil, sqlerr.New(sqlerr.Protocol, "short RowDescription body")
	}
	n := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	fields := make([]FieldDescription, 0, n)
	for i := 0; i < n; i++ {
		zero := bytes.IndexByte(body, 0)
		if zero < 0 || len(body) < zero+1+18 {
			return nil, sqlerr.New(sqlerr.Protocol, "truncated RowDescription field")
		}
		name := string(body[:zero])
		p := body[zero+1:]
		fields = append(fields, FieldDescription{
			Name:         name,
			TableOID:     int32(binary.BigEndian.Uint32(p)),
			ColumnAttr:   int16(binary.BigEndian.Uint16(p[4:])),
			TypeOID:      int32(binary.BigEndian.Uint32(p[6:])),
			TypeSize:     int16(binary.BigEndian.Uint16(p[10:])),
			TypeModifier: int32(binary.BigEndian.Uint32(p[12:])),
			Format:       int16(binary.BigEndian.Uint16(p[16:])),
		})
		body = p[18:]
	}
	return fields, nil
}

// ParseDataRow decodes column payloads; nil means SQL NULL.
func ParseDataRow(body []byte) ([][]byte, error) {
	if len(body) < 2 {
		return nil, sqlerr.New(sqlerr.Protocol, "short DataRow body")
	}
	n := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	cols := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(body) < 4 {
			return nil, sqlerr.New(sqlerr.Protocol, "truncated DataRow column")
		}
		l := int(int32(binary.BigEndian.Uint32(body)))
		body = body[4:]
		if l == -1 {
			cols = append(cols, nil)
			continue
		}
		if l < 0 || len(body) < l {
			return nil, sqlerr.New(sqlerr.Protocol, "truncated DataRow column")
		}
		cols = append(cols, body[:l])
		body = body[l:]
	}
	return cols, nil
}

// ParseCommandComplete returns the command tag and its trailing row
// count, when present.
func ParseCommandComplete(body []byte) (string, int64) {
	tag := string(bytes.TrimSuffix(body, []byte{0}))
	fields := bytes.Fields([]byte(tag))
	if len(fields) == 0 {
		return tag, 0
	}
	if n, err := strconv.ParseInt(string(fields[len(fields)-1]), 10, 64); err == nil {
		return tag, n
	}
	return tag, 0
}

// ParseParameterDescription returns the parameter type OIDs.
func ParseParameterDescription(body []byte) ([]int32, error) {
	if len(body) < 2 {
		return nil, sqlerr.New(sqlerr.Protocol, "short ParameterDescription body")
	}
	n := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	if len(body) < 4*n {
		return nil, sqlerr.New(sqlerr.Protocol, "truncated ParameterDescription body")
	}
	oids := make([]int32, n)
	for i := range oids {
		oids[i] = int32(binary.BigEndian.Uint32(body[4*i:]))
	}
	return oids, nil
}

// ParseErrorFields decodes the tagged fields of an ErrorResponse or
// NoticeResponse.
func ParseErrorFields(body []byte) ErrorFields {
	var f ErrorFields
	for len(body) > 0 && body[0] != 0 {
		tag := body[0]
		body = body[1:]
		zero := bytes.IndexByte(body, 0)
		if zero < 0 {
			break
		}
		val := string(body[:zero])
		body = body[zero+1:]
		switch tag {
		case 'S':
			f.Severity = val
		case 'C':
			f.Code = val
		case 'M':
			f.Message = val
		case 'D':
			f.Detail = val
		case 'H':
			f.Hint = val
		case 'P':
			if p, err := strconv.Atoi(val); err == nil {
				f.Position = p
			}
		}
	}
	return f
}

// ParseSASLMechanisms decodes the mechanism list of an
// AuthenticationSASL payload.
func ParseSASLMechanisms(payload []byte) []string {
	var out []string
	for len(payload) > 0 && payload[0] != 0 {
		zero := bytes.IndexByte(payload, 0)
		if zero < 0 {
			break
		}
		out = append(out, string(payload[:zero]))
		payload = payload[zero+1:]
	}
	return out
}
