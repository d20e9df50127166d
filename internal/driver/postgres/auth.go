package postgres

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"sqlmodel/internal/console"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/wire/pgwire"
)

// authenticate handles one Authentication backend message, advancing
// the handshake until AuthenticationOk.
func (c *Conn) authenticate(ctx context.Context, body []byte) error {
	code, payload, err := pgwire.ParseAuthentication(body)
	if err != nil {
		return err
	}
	switch code {
	case pgwire.AuthOK:
		console.Progress(c.console, "authenticate", true)
		return nil
	case pgwire.AuthCleartext:
		if c.cfg.Password == "" {
			return sqlerr.New(sqlerr.ConnAuthentication, "server requests a password but none is configured")
		}
		c.writer.Reset()
		c.writer.Password(c.cfg.Password)
		return c.send(ctx)
	case pgwire.AuthMD5:
		if len(payload) < 4 {
			return sqlerr.New(sqlerr.Protocol, "md5 challenge missing salt")
		}
		if c.cfg.Password == "" {
			return sqlerr.New(sqlerr.ConnAuthentication, "server requests a password but none is configured")
		}
		c.writer.Reset()
		c.writer.Password(md5Response(c.cfg.User, c.cfg.Password, payload[:4]))
		return c.send(ctx)
	case pgwire.AuthSASL:
		mechs := pgwire.ParseSASLMechanisms(payload)
		return c.scramStart(ctx, mechs)
	case pgwire.AuthSASLContinue:
		return c.scramContinue(ctx, payload)
	case pgwire.AuthSASLFinal:
		return c.scramFinish(payload)
	default:
		return sqlerr.New(sqlerr.ConnAuthentication, "unsupported authentication method %d", code)
	}
}

// md5Response computes "md5" || hex(md5(hex(md5(password || user)) || salt)).
func md5Response(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt...))
	return "md5" + hex.EncodeToString(outer[:])
}

// scramState carries the SCRAM-SHA-256 handshake between messages.
type scramState struct {
	clientNonce    string
	clientFirstBare string
	serverFirst    string
	saltedPassword []byte
	authMessage    string
}

func (c *Conn) scramStart(ctx context.Context, mechanisms []string) error {
	supported := false
	for _, m := range mechanisms {
		if m == "SCRAM-SHA-256" {
			supported = true
			break
		}
	}
	if !supported {
		return sqlerr.New(sqlerr.ConnAuthentication,
			"server offers none of the supported SASL mechanisms (%s)", strings.Join(mechanisms, ", "))
	}
	if c.cfg.Password == "" {
		return sqlerr.New(sqlerr.ConnAuthentication, "server requests a password but none is configured")
	}
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return sqlerr.Wrap(sqlerr.ConnAuthentication, err, "generate nonce")
	}
	st := &scramState{clientNonce: base64.StdEncoding.EncodeToString(nonce)}
	st.clientFirstBare = "n=,r=" + st.clientNonce
	c.scramSt = st

	// GS2 header: no channel binding.
	initial := []byte("n,," + st.clientFirstBare)
	c.writer.Reset()
	c.writer.SASLInitialResponse("SCRAM-SHA-256", initial)
	return c.send(ctx)
}

func (c *Conn) scramContinue(ctx context.Context, payload []byte) error {
	st := c.scramSt
	if st == nil {
		return sqlerr.New(sqlerr.Protocol, "SASLContinue without a SASL exchange in progress")
	}
	st.serverFirst = string(payload)
	attrs, err := parseScramAttrs(st.serverFirst)
	if err != nil {
		return err
	}
	serverNonce, salt64, iterStr := attrs["r"], attrs["s"], attrs["i"]
	if !strings.HasPrefix(serverNonce, st.clientNonce) {
		return sqlerr.New(sqlerr.ConnAuthentication, "server nonce does not extend the client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(salt64)
	if err != nil {
		return sqlerr.Wrap(sqlerr.ConnAuthentication, err, "decode scram salt")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations < 1 {
		return sqlerr.New(sqlerr.ConnAuthentication, "invalid scram iteration count %q", iterStr)
	}

	st.saltedPassword = pbkdf2.Key([]byte(c.cfg.Password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(st.saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,")) + ",r=" + serverNonce
	st.authMessage = st.clientFirstBare + "," + st.serverFirst + "," + withoutProof

	signature := hmacSHA256(storedKey[:], st.authMessage)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ signature[i]
	}
	final := withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	c.writer.Reset()
	c.writer.SASLResponse([]byte(final))
	return c.send(ctx)
}

func (c *Conn) scramFinish(payload []byte) error {
	st := c.scramSt
	if st == nil {
		return sqlerr.New(sqlerr.Protocol, "SASLFinal without a SASL exchange in progress")
	}
	attrs, err := parseScramAttrs(string(payload))
	if err != nil {
		return err
	}
	wantSig, err := base64.StdEncoding.DecodeString(attrs["v"])
	if err != nil {
		return sqlerr.Wrap(sqlerr.ConnAuthentication, err, "decode server signature")
	}
	serverKey := hmacSHA256(st.saltedPassword, "Server Key")
	gotSig := hmacSHA256(serverKey, st.authMessage)
	if !hmac.Equal(wantSig, gotSig) {
		return sqlerr.New(sqlerr.ConnAuthentication, "server signature verification failed")
	}
	c.scramSt = nil
	return nil
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func parseScramAttrs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if len(part) < 2 || part[1] != '=' {
			return nil, sqlerr.New(sqlerr.ConnAuthentication, "malformed scram attribute %q", part)
		}
		out[part[:1]] = part[2:]
	}
	return out, nil
}
