package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"github.com/justmike1/devx/apperr"
)

const signaturePrefix = "sha256="

// Verifier checks the X-Hub-Signature-256 header of source-host webhooks.
// With no secret configured every request is accepted.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		log.Warn().Str("component", "webhook").Msg("GITHUB_WEBHOOK_SECRET not set, webhook signatures will not be verified")
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

func (v *Verifier) Verify(body []byte, signature string) error {
	if !v.Enabled() {
		return nil
	}
	if signature == "" {
		return apperr.Authentication("No signature header")
	}
	expected := sign(v.secret, body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return apperr.Authentication("Invalid signature")
	}
	return nil
}

// Sign returns the header value the source host would send for body.
func Sign(secret string, body []byte) string {
	return sign([]byte(secret), body)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
