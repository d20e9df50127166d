package mysql

import (
	"crypto/sha1"
	"crypto/sha256"

	"sqlmodel/internal/sqlerr"
)

// authResponse computes the auth-plugin scramble for the handshake
// response.
func authResponse(plugin, password string, seed []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	switch plugin {
	case "mysql_native_password":
		return nativePasswordScramble(password, seed), nil
	case "caching_sha2_password":
		return cachingSha2Scramble(password, seed), nil
	case "mysql_clear_password":
		return append([]byte(password), 0), nil
	default:
		return nil, sqlerr.New(sqlerr.ConnAuthentication, "unsupported auth plugin %q", plugin)
	}
}

// nativePasswordScramble is
// SHA1(password) XOR SHA1(seed || SHA1(SHA1(password))).
func nativePasswordScramble(password string, seed []byte) []byte {
	if len(seed) > 20 {
		seed = seed[:20]
	}
	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])
	h := sha1.New()
	h.Write(seed)
	h.Write(stage2[:])
	mix := h.Sum(nil)
	for i := range mix {
		mix[i] ^= stage1[i]
	}
	return mix
}

// cachingSha2Scramble is the fast-path token:
// SHA256(password) XOR SHA256(SHA256(SHA256(password)) || seed).
func cachingSha2Scramble(password string, seed []byte) []byte {
	if len(seed) > 20 {
		seed = seed[:20]
	}
	stage1 := sha256.Sum256([]byte(password))
	stage2 := sha256.Sum256(stage1[:])
	h := sha256.New()
	h.Write(stage2[:])
	h.Write(seed)
	mix := h.Sum(nil)
	for i := range mix {
		mix[i] ^= stage1[i]
	}
	return mix
}
