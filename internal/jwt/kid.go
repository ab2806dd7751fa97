package jwt

import (
	"crypto/sha256"
	"encoding/base64"
)

// ComputeKID = base64url(SHA-256(der || salt)), sin padding.
func ComputeKID(der []byte, salt string) string {
	h := sha256.New()
	h.Write(der)
	h.Write([]byte(salt))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
