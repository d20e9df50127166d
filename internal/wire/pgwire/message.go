// Package pgwire implements PostgreSQL 3.0 protocol framing: a
// reusable frontend message writer and a ring-buffered pull reader for
// backend messages. Every packet after startup is
// `type u8 | length i32 be | body`, where the length covers itself and
// the body but not the type byte. Startup, SSLRequest, and
// CancelRequest are untyped: length + request code only.
package pgwire

// Frontend message type bytes.
const (
	MsgPassword    = 'p' // also carries SASL responses
	MsgQuery       = 'Q'
	MsgParse       = 'P'
	MsgBind        = 'B'
	MsgDescribe    = 'D'
	MsgExecute     = 'E'
	MsgClose       = 'C'
	MsgSync        = 'S'
	MsgFlush       = 'H'
	MsgCopyData    = 'd'
	MsgCopyDone    = 'c'
	MsgCopyFail    = 'f'
	MsgTerminate   = 'X'
)

// Backend message type bytes.
const (
	MsgAuthentication      = 'R'
	MsgParameterStatus     = 'S'
	MsgBackendKeyData      = 'K'
	MsgReadyForQuery       = 'Z'
	MsgRowDescription      = 'T'
	MsgDataRow             = 'D'
	MsgCommandComplete     = 'C'
	MsgEmptyQueryResponse  = 'I'
	MsgErrorResponse       = 'E'
	MsgNoticeResponse      = 'N'
	MsgParseComplete       = '1'
	MsgBindComplete        = '2'
	MsgCloseComplete       = '3'
	MsgNoData              = 'n'
	MsgPortalSuspended     = 's'
	MsgParameterDescription = 't'
	MsgCopyInResponse      = 'G'
	MsgCopyOutResponse     = 'H'
	MsgCopyBothResponse    = 'W'
)

// Authentication sub-codes (first int32 of an 'R' body).
const (
	AuthOK           = 0
	AuthCleartext    = 3
	AuthMD5          = 5
	AuthSASL         = 10
	AuthSASLContinue = 11
	AuthSASLFinal    = 12
)

// Untyped-request codes.
const (
	ProtocolVersion   = 196608   // 3.0
	SSLRequestCode    = 80877103
	CancelRequestCode = 80877102
)

// Transaction-status bytes carried by ReadyForQuery.
const (
	TxIdle    = 'I'
	TxInBlock = 'T'
	TxFailed  = 'E'
)

// Message is one decoded backend message: the type byte and its body
// (without the length prefix). The body aliases the reader's buffer and
// is valid until the next call to Next.
type Message struct {
	Type byte
	Body []byte
}

// FieldDescription is one column of a RowDescription.
type FieldDescription struct {
	Name         string
	TableOID     int32
	ColumnAttr   int16
	TypeOID      int32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}

// ErrorFields are the tagged diagnostics of ErrorResponse and
// NoticeResponse bodies.
type ErrorFields struct {
	Severity string
	Code     string // SQLSTATE
	Message  string
	Detail   string
	Hint     string
	Position int
}
