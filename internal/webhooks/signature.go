package webhooks

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignaturePrefix is prepended to the hex digest in signature headers.
const SignaturePrefix = "sha256="

// Sign returns lowercase hex of HMAC-SHA256 over body using secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// FormatSignatureHeader returns the value for the outbound signature header.
func FormatSignatureHeader(secret string, body []byte) string {
	return SignaturePrefix + Sign(secret, body)
}

// Verify checks an HMAC-SHA256 signature over the raw body. The provided
// value may carry the "sha256=" prefix. Comparison is constant-time;
// malformed input yields false, never an error.
func Verify(secret string, body []byte, provided string) bool {
	provided = strings.TrimPrefix(provided, SignaturePrefix)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), b)
}

// GenerateSecret returns a fresh 32-byte random signing key, hex encoded.
func GenerateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(buf)
}
