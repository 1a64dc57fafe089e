package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries hex(HMAC-SHA512(secret, raw body)).
const SignatureHeader = "X-Paystack-Signature"

// Verifier authenticates webhook deliveries against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Configured reports whether a secret is available.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks signature against the exact bytes received. It returns false
// when no secret is configured or the header is empty.
func (v *Verifier) Verify(rawBody []byte, signature string) bool {
	if !v.Configured() {
		return false
	}
	if signature == "" {
		return false
	}
	expected := sign(v.secret, rawBody)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Sign computes the signature header value for body.
func Sign(secret string, body []byte) string {
	return sign([]byte(strings.TrimSpace(secret)), body)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
