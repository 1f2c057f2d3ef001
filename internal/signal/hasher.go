package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher derives the opaque line identifier from a phone number.
type Hasher struct {
	key         []byte
	countryCode string
}

// NewHasher keys the HMAC with salt. countryCode (digits, e.g. "33") is used
// to qualify national numbers written with a leading zero.
func NewHasher(salt, countryCode string) *Hasher {
	return &Hasher{key: []byte(salt), countryCode: strings.TrimPrefix(countryCode, "+")}
}

// Hash normalizes raw to E.164 and returns the hex HMAC-SHA256 of it.
func (h *Hasher) Hash(raw string) (string, error) {
	e164, err := h.Normalize(raw)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(e164))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Normalize strips formatting and returns the number as +<digits>.
func (h *Hasher) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyLine
	}

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return "", ErrInvalidMSISDN
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(raw, "+"):
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0") && h.countryCode != "":
		digits = h.countryCode + digits[1:]
	default:
		return "", ErrInvalidMSISDN
	}

	// E.164 allows at most 15 digits; anything under 8 is not a subscriber number.
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", ErrInvalidMSISDN
	}
	return "+" + digits, nil
}
