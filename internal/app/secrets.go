package app

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// minJWTSecretBytes matches the HS256 block size.
const minJWTSecretBytes = 32

// SecretByteLength estimates the entropy of a configured secret in bytes. Hex and
// base64 encoded values are measured after decoding. Anything else counts as raw bytes.
func SecretByteLength(value string) int {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return len(decoded)
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return len(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(v); err == nil {
		return len(decoded)
	}
	return len(v)
}
