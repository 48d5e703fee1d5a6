package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

/* Deterministic HMAC-SHA256 signing of the serialized request envelope
 * The lowercase hex digest goes into the X-Signature header; receivers
 * recompute it over the raw body with the shared secret to verify authenticity
 */

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature using constant-time comparison
// Returns true if the signature is valid, false otherwise
func Verify(secret string, body []byte, provided string) bool {
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), decoded)
}
