package postgres

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestMD5Response(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}
	got := md5Response("alice", "secret", salt)

	inner := md5.Sum([]byte("secret" + "alice"))
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt...))
	want := "md5" + hex.EncodeToString(outer[:])

	assert.Equal(t, want, got)
	assert.Len(t, got, 3+32)
	assert.Equal(t, "md5", got[:3])
}

func TestParseScramAttrs(t *testing.T) {
	attrs, err := parseScramAttrs("r=abc123,s=c2FsdA==,i=4096")
	require.NoError(t, err)
	assert.Equal(t, "abc123", attrs["r"])
	assert.Equal(t, "c2FsdA==", attrs["s"])
	assert.Equal(t, "4096", attrs["i"])

	_, err = parseScramAttrs("garbage")
	assert.Error(t, err)
}

func TestScramProofDerivation(t *testing.T) {
	// RFC 5802 key-derivation relationships, checked structurally:
	// the client proof XORed with the client signature recovers the
	// client key, whose hash is the stored key.
	password := "pencil"
	salt, _ := base64.StdEncoding.DecodeString("QSXCR+Q6sek8bf92")
	iterations := 4096
	authMessage := "n=,r=clientnonce,r=clientnonceserver,s=QSXCR+Q6sek8bf92,i=4096,c=biws,r=clientnonceserver"

	salted := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(salted, "Client Key")
	storedKey := sha256.Sum256(clientKey)
	signature := hmacSHA256(storedKey[:], authMessage)

	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ signature[i]
	}
	recovered := make([]byte, len(proof))
	for i := range proof {
		recovered[i] = proof[i] ^ signature[i]
	}
	assert.True(t, hmac.Equal(clientKey, recovered))

	serverKey := hmacSHA256(salted, "Server Key")
	serverSig := hmacSHA256(serverKey, authMessage)
	assert.Len(t, serverSig, sha256.Size)
	assert.NotEqual(t, signature, serverSig)
}

func TestStmtCacheFIFOEviction(t *testing.T) {
	sc := newStmtCache(2)
	s1 := &Stmt{name: "s1"}
	s2 := &Stmt{name: "s2"}
	s3 := &Stmt{name: "s3"}

	assert.Nil(t, sc.put("q1", s1))
	assert.Nil(t, sc.put("q2", s2))
	victim := sc.put("q3", s3)
	require.NotNil(t, victim)
	assert.Equal(t, "s1", victim.name)
	assert.Nil(t, sc.get("q1"))
	assert.Equal(t, s2, sc.get("q2"))

	sc.drop("q2")
	assert.Nil(t, sc.get("q2"))
}
