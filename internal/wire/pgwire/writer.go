package pgwire

import "encoding/binary"

// Writer assembles frontend messages into a reusable buffer. A message
// is opened with begin (which reserves the length field), appended to,
// and sealed with end (which back-patches the length). The buffer can
// be reused across messages; Bytes returns everything accumulated since
// the last Reset.
type Writer struct {
	buf   []byte
	start int // offset of the current message's length field
}

// NewWriter returns a writer with a modest pre-allocated buffer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 512)}
}

// Reset drops accumulated output.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Bytes returns the accumulated wire bytes.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) begin(msgType byte) {
	if msgType != 0 {
		w.buf = append(w.buf, msgType)
	}
	w.start = len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
}

func (w *Writer) end() {
	length := len(w.buf) - w.start
	binary.BigEndian.PutUint32(w.buf[w.start:], uint32(length))
}

func (w *Writer) int16(v int16) { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }
func (w *Writer) int32(v int32) { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }

func (w *Writer) cstring(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Startup writes the untyped StartupMessage with the given parameter
// pairs (user, database, application_name, ...).
func (w *Writer) Startup(params map[string]string, order []string) {
	w.begin(0)
	w.int32(ProtocolVersion)
	for _, k := range order {
		if v, ok := params[k]; ok && v != "" {
			w.cstring(k)
			w.cstring(v)
		}
	}
	w.buf = append(w.buf, 0)
	w.end()
}

// SSLRequest writes the untyped SSL negotiation request.
func (w *Writer) SSLRequest() {
	w.begin(0)
	w.int32(SSLRequestCode)
	w.end()
}

// CancelRequest writes the untyped cancel request for a side channel.
func (w *Writer) CancelRequest(processID, secretKey int32) {
	w.begin(0)
	w.int32(CancelRequestCode)
	w.int32(processID)
	w.int32(secretKey)
	w.end()
}

// Password writes a password (or SASL response) message.
func (w *Writer) Password(secret string) {
	w.begin(MsgPassword)
	w.cstring(secret)
	w.end()
}

// SASLInitialResponse writes the mechanism name plus the initial
// client-first payload.
func (w *Writer) SASLInitialResponse(mechanism string, initial []byte) {
	w.begin(MsgPassword)
	w.cstring(mechanism)
	w.int32(int32(len(initial)))
	w.buf = append(w.buf, initial...)
	w.end()
}

// SASLResponse writes a continuation payload.
func (w *Writer) SASLResponse(payload []byte) {
	w.begin(MsgPassword)
	w.buf = append(w.buf, payload...)
	w.end()
}

// Query writes a simple-protocol query.
func (w *Writer) Query(sql string) {
	w.begin(MsgQuery)
	w.cstring(sql)
	w.end()
}

// Parse writes an extended-protocol Parse with optional parameter type
// OIDs.
func (w *Writer) Parse(name, sql string, paramOIDs []int32) {
	w.begin(MsgParse)
	w.cstring(name)
	w.cstring(sql)
	w.int16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		w.int32(oid)
	}
	w.end()
}

// Bind writes a Bind message. params[i] == nil encodes SQL NULL with
// wire length -1.
func (w *Writer) Bind(portal, statement string, paramFormats []int16, params [][]byte, resultFormats []int16) {
	w.begin(MsgBind)
	w.cstring(portal)
	w.cstring(statement)
	w.int16(int16(len(paramFormats)))
	for _, f := range paramFormats {
		w.int16(f)
	}
	w.int16(int16(len(params)))
	for _, p := range params {
		if p == nil {
			w.int32(-1)
			continue
		}
		w.int32(int32(len(p)))
		w.buf = append(w.buf, p...)
	}
	w.int16(int16(len(resultFormats)))
	for _, f := range resultFormats {
		w.int16(f)
	}
	w.end()
}

// Describe writes Describe; kind is 'S' for a statement, 'P' for a
// portal.
func (w *Writer) Describe(kind byte, name string) {
	w.begin(MsgDescribe)
	w.buf = append(w.buf, kind)
	w.cstring(name)
	w.end()
}

// Execute writes Execute; maxRows 0 means unlimited.
func (w *Writer) Execute(portal string, maxRows int32) {
	w.begin(MsgExecute)
	w.cstring(portal)
	w.int32(maxRows)
	w.end()
}

// Close writes Close; kind is 'S' or 'P'.
func (w *Writer) Close(kind byte, name string) {
	w.begin(MsgClose)
	w.buf = append(w.buf, kind)
	w.cstring(name)
	w.end()
}

// Sync writes the five-byte Sync message.
func (w *Writer) Sync() {
	w.begin(MsgSync)
	w.end()
}

// Flush writes the Flush message.
func (w *Writer) Flush() {
	w.begin(MsgFlush)
	w.end()
}

// CopyData writes one COPY data chunk.
func (w *Writer) CopyData(data []byte) {
	w.begin(MsgCopyData)
	w.buf = append(w.buf, data...)
	w.end()
}

// CopyDone writes the COPY completion message.
func (w *Writer) CopyDone() {
	w.begin(MsgCopyDone)
	w.end()
}

// CopyFail writes a COPY abort with a reason.
func (w *Writer) CopyFail(reason string) {
	w.begin(MsgCopyFail)
	w.cstring(reason)
	w.end()
}

// Terminate writes the session-close message.
func (w *Writer) Terminate() {
	w.begin(MsgTerminate)
	w.end()
}
