// Package signature verifies provider webhook signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Sign returns the hex encoded HMAC-SHA512 of raw keyed by secret.
func Sign(raw []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether supplied is the signature of the exact raw bytes.
// Malformed input is a mismatch, never an error.
func Verify(raw []byte, secret, supplied string) bool {
	if secret == "" || supplied == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimSpace(supplied))
	if err != nil || len(got) != sha512.Size {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	return hmac.Equal(mac.Sum(nil), got)
}
