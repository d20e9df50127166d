package mywire

import (
	"bytes"
	"encoding/binary"

	"sqlmodel/internal/codec"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// Command payload builders. Each returns a payload for Writer.WritePacket
// after Writer.Reset (sequence 0).

// Query builds a COM_QUERY payload.
func Query(sql string) []byte {
	out := make([]byte, 0, 1+len(sql))
	out = append(out, ComQuery)
	return append(out, sql...)
}

// StmtPrepare builds a COM_STMT_PREPARE payload; the SQL follows the
// command byte byte-for-byte.
func StmtPrepare(sql string) []byte {
	out := make([]byte, 0, 1+len(sql))
	out = append(out, ComStmtPrepare)
	return append(out, sql...)
}

// StmtClose builds a COM_STMT_CLOSE payload.
func StmtClose(stmtID uint32) []byte {
	out := make([]byte, 0, 5)
	out = append(out, ComStmtClose)
	return binary.LittleEndian.AppendUint32(out, stmtID)
}

// StmtReset builds a COM_STMT_RESET payload, discarding accumulated
// long data without closing the statement.
func StmtReset(stmtID uint32) []byte {
	out := make([]byte, 0, 5)
	out = append(out, ComStmtReset)
	return binary.LittleEndian.AppendUint32(out, stmtID)
}

// Ping builds a COM_PING payload.
func Ping() []byte { return []byte{ComPing} }

// Quit builds a COM_QUIT payload.
func Quit() []byte { return []byte{ComQuit} }

// InitDB builds a COM_INIT_DB payload.
func InitDB(name string) []byte {
	out := make([]byte, 0, 1+len(name))
	out = append(out, ComInitDB)
	return append(out, name...)
}

// StmtExecute builds a COM_STMT_EXECUTE payload: stmt_id u32le, flags
// u8 (0x00, no cursor), iteration_count u32le = 1, NULL bitmap, a
// new-params-bound flag, and, when bound, a (type, flags) pair per
// parameter followed by the non-NULL binary payloads.
func StmtExecute(stmtID uint32, params []value.Value) ([]byte, error) {
	out := make([]byte, 0, 64)
	out = append(out, ComStmtExecute)
	out = binary.LittleEndian.AppendUint32(out, stmtID)
	out = append(out, 0x00)
	out = binary.LittleEndian.AppendUint32(out, 1)
	if len(params) == 0 {
		return out, nil
	}
	bitmap := make([]byte, (len(params)+7)/8)
	for i, p := range params {
		if p.IsNull() {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	out = append(out, bitmap...)
	out = append(out, 1) // new_params_bound
	for _, p := range params {
		t, f := codec.MyParamType(p)
		out = append(out, t, f)
	}
	var err error
	for _, p := range params {
		if p.IsNull() {
			continue
		}
		out, err = codec.MyEncodeBinary(out, p)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PrepareOK is a decoded COM_STMT_PREPARE_OK header: status 0x00,
// stmt_id u32le, num_columns u16le, num_params u16le, reserved,
// warnings u16le.
type PrepareOK struct {
	StmtID     uint32
	NumColumns uint16
	NumParams  uint16
	Warnings   uint16
}

// ParsePrepareOK decodes the COM_STMT_PREPARE_OK payload.
func ParsePrepareOK(payload []byte) (*PrepareOK, error) {
	if len(payload) < 12 || payload[0] != 0x00 {
		return nil, sqlerr.New(sqlerr.Protocol, "malformed COM_STMT_PREPARE_OK")
	}
	return &PrepareOK{
		StmtID:     binary.LittleEndian.Uint32(payload[1:]),
		NumColumns: binary.LittleEndian.Uint16(payload[5:]),
		NumParams:  binary.LittleEndian.Uint16(payload[7:]),
		Warnings:   binary.LittleEndian.Uint16(payload[10:]),
	}, nil
}

// ColumnDefinition is the subset of a column-definition packet the
// driver consumes.
type ColumnDefinition struct {
	Schema    string
	Table     string
	Name      string
	Charset   uint16
	Length    uint32
	FieldType byte
	Flags     uint16
	Decimals  byte
}

// Column-definition flag bits.
const (
	FlagNotNull  = 0x0001
	FlagPriKey   = 0x0002
	FlagUnsigned = 0x0020
	FlagAutoInc  = 0x0200
)

// ParseColumnDefinition decodes a Protocol::ColumnDefinition41 payload.
func ParseColumnDefinition(payload []byte) (*ColumnDefinition, error) {
	var def ColumnDefinition
	p := payload
	// catalog, schema, table, org_table, name, org_name
	for _, dst := range []*string{nil, &def.Schema, &def.Table, nil, &def.Name, nil} {
		s, n, err := codec.ReadLenencString(p)
		if err != nil {
			return nil, sqlerr.Wrap(sqlerr.Protocol, err, "truncated column definition")
		}
		if dst != nil {
			*dst = s
		}
		p = p[n:]
	}
	if len(p) < 1+12 {
		return nil, sqlerr.New(sqlerr.Protocol, "truncated column definition tail")
	}
	p = p[1:] // fixed-length fields marker (0x0c)
	def.Charset = binary.LittleEndian.Uint16(p)
	def.Length = binary.LittleEndian.Uint32(p[2:])
	def.FieldType = p[6]
	def.Flags = binary.LittleEndian.Uint16(p[7:])
	def.Decimals = p[9]
	return &def, nil
}

// ParseBinaryRow decodes a binary-protocol resultset row against its
// column definitions.
func ParseBinaryRow(payload []byte, cols []*ColumnDefinition) ([]value.Value, error) {
	if len(payload) < 1 || payload[0] != 0x00 {
		return nil, sqlerr.New(sqlerr.Protocol, "malformed binary row header")
	}
	bitmapLen := (len(cols) + 7 + 2) / 8
	if len(payload) < 1+bitmapLen {
		return nil, sqlerr.New(sqlerr.Protocol, "truncated binary row bitmap")
	}
	bitmap := payload[1 : 1+bitmapLen]
	p := payload[1+bitmapLen:]
	out := make([]value.Value, len(cols))
	for i, col := range cols {
		// The binary-row NULL bitmap has a 2-bit offset.
		bit := i + 2
		if bitmap[bit/8]&(1<<(bit%8)) != 0 {
			out[i] = value.Null()
			continue
		}
		unsigned := col.Flags&FlagUnsigned != 0
		v, n, err := codec.MyDecodeBinary(col.FieldType, unsigned, p)
		if err != nil {
			return nil, err
		}
		out[i] = v
		p = p[n:]
	}
	return out, nil
}

// ParseTextRow decodes a text-protocol resultset row. A 0xfb column
// byte is SQL NULL.
func ParseTextRow(payload []byte, cols []*ColumnDefinition) ([]value.Value, error) {
	p := payload
	out := make([]value.Value, len(cols))
	for i, col := range cols {
		if len(p) == 0 {
			return nil, sqlerr.New(sqlerr.Protocol, "truncated text row")
		}
		if p[0] == HeaderNull {
			out[i] = value.Null()
			p = p[1:]
			continue
		}
		s, n, err := codec.ReadLenencString(p)
		if err != nil {
			return nil, err
		}
		p = p[n:]
		unsigned := col.Flags&FlagUnsigned != 0
		v, err := codec.MyDecodeText(col.FieldType, unsigned, s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Handshake is the decoded server greeting (HandshakeV10).
type Handshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte
	Capabilities    uint32
	Charset         byte
	Status          uint16
	AuthPluginName  string
}

// ParseHandshake decodes the initial HandshakeV10 packet.
func ParseHandshake(payload []byte) (*Handshake, error) {
	if len(payload) < 1 {
		return nil, sqlerr.New(sqlerr.Protocol, "empty handshake")
	}
	h := &Handshake{ProtocolVersion: payload[0]}
	if h.ProtocolVersion != 10 {
		return nil, sqlerr.New(sqlerr.Protocol, "unsupported handshake protocol %d", h.ProtocolVersion)
	}
	p := payload[1:]
	zero := bytes.IndexByte(p, 0)
	if zero < 0 || len(p) < zero+1+4+8+1 {
		return nil, sqlerr.New(sqlerr.Protocol, "truncated handshake")
	}
	h.ServerVersion = string(p[:zero])
	p = p[zero+1:]
	h.ConnectionID = binary.LittleEndian.Uint32(p)
	h.AuthPluginData = append(h.AuthPluginData, p[4:12]...) // auth-plugin-data-part-1
	p = p[13:]                                             // skip filler
	if len(p) < 2 {
		return h, nil
	}
	h.Capabilities = uint32(binary.LittleEndian.Uint16(p))
	p = p[2:]
	if len(p) >= 3 {
		h.Charset = p[0]
		h.Status = binary.LittleEndian.Uint16(p[1:])
		p = p[3:]
	}
	if len(p) >= 2 {
		h.Capabilities |= uint32(binary.LittleEndian.Uint16(p)) << 16
		p = p[2:]
	}
	var authLen byte
	if len(p) >= 1 {
		authLen = p[0]
		p = p[1:]
	}
	if len(p) >= 10 {
		p = p[10:] // reserved
	}
	if h.Capabilities&CapSecureConnection != 0 && len(p) > 0 {
		n := int(authLen) - 8
		if n < 13 {
			n = 13
		}
		if n > len(p) {
			n = len(p)
		}
		part2 := p[:n]
		// part 2 is NUL-terminated; drop the terminator.
		part2 = bytes.TrimRight(part2, "\x00")
		h.AuthPluginData = append(h.AuthPluginData, part2...)
		p = p[n:]
	}
	if h.Capabilities&CapPluginAuth != 0 && len(p) > 0 {
		h.AuthPluginName = string(bytes.TrimRight(p, "\x00"))
	}
	return h, nil
}

// HandshakeResponse builds the client HandshakeResponse41 payload.
func HandshakeResponse(capabilities uint32, charset byte, user string, authResp []byte, database, authPlugin string) []byte {
	out := make([]byte, 0, 128)
	out = binary.LittleEndian.AppendUint32(out, capabilities)
	out = binary.LittleEndian.AppendUint32(out, MaxPayload)
	out = append(out, charset)
	out = append(out, make([]byte, 23)...)
	out = append(out, user...)
	out = append(out, 0)
	if capabilities&CapPluginAuthLenencClientData != 0 {
		out = codec.AppendLenencBytes(out, authResp)
	} else {
		out = append(out, byte(len(authResp)))
		out = append(out, authResp...)
	}
	if capabilities&CapConnectWithDB != 0 && database != "" {
		out = append(out, database...)
		out = append(out, 0)
	}
	if capabilities&CapPluginAuth != 0 {
		out = append(out, authPlugin...)
		out = append(out, 0)
	}
	return out
}
