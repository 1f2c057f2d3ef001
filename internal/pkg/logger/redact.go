package logger

import (
	"regexp"
	"strings"
)

var (
	// Free text only masks numbers in international form: a + or 00 prefix
	// followed by seven or more digits, spaces or dashes. Counts, dates and
	// durations are left intact. Phone-shaped keys are masked regardless.
	msisdnRegex = regexp.MustCompile(`(?:\+|\b00)[1-9][\d\s-]{5,}\d\b`)
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.HasSuffix(key, "id"), strings.Contains(key, "hash"), strings.Contains(key, "token"):
		// Identifiers and hashes are opaque already.
		return val
	case strings.Contains(key, "msisdn"), strings.Contains(key, "phone"), key == "line", key == "raw_line":
		return RedactMSISDN(val)
	case strings.Contains(key, "email"), strings.Contains(key, "address"):
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return RedactMSISDN(val)
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return msisdnRegex.ReplaceAllStringFunc(val, RedactMSISDN)
}

// RedactMSISDN keeps only the last two digits of a phone number.
// "+33 6 12 34 56 78" → "***78"
func RedactMSISDN(s string) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
