package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// Verifier checks hex-encoded HMAC signatures over a raw request body.
type Verifier struct {
	secret []byte
	hash   func() hash.Hash
}

func NewSHA512Verifier(secret string) Verifier {
	return Verifier{secret: []byte(secret), hash: sha512.New}
}

func NewSHA256Verifier(secret string) Verifier {
	return Verifier{secret: []byte(secret), hash: sha256.New}
}

// Sign returns the lower-case hex HMAC of body.
func (v Verifier) Sign(body []byte) string {
	mac := hmac.New(v.hash, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. An unconfigured secret never verifies.
func (v Verifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(v.hash, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), given)
}
