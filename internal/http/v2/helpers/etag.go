package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// ETag calcula un ETag fuerte (hash truncado, con comillas) a partir de bytes.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// NotModified indica si If-None-Match ya contiene el etag actual.
func NotModified(r *http.Request, etag string) bool {
	v := strings.TrimSpace(r.Header.Get("If-None-Match"))
	if v == "" {
		return false
	}
	if v == "*" {
		return true
	}
	for _, candidate := range strings.Split(v, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == etag {
			return true
		}
	}
	return false
}
