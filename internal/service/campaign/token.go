package campaign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer issues and verifies per-recipient tracking tokens. A token is the
// attempt ID followed by a truncated HMAC-SHA256 of it.
type Signer struct {
	key []byte
}

// NewSigner creates a token signer.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign returns the tracking token for an attempt.
func (s *Signer) Sign(attemptID string) string {
	return attemptID + "." + s.mac(attemptID)
}

// Verify returns the attempt ID carried by a valid token.
func (s *Signer) Verify(token string) (string, bool) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", false
	}
	id, sig := token[:i], token[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(id))) {
		return "", false
	}
	return id, true
}

func (s *Signer) mac(data string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
