package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func TestRedactMSISDN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+33612345678", "***78"},
		{"+33 6 12 34 56 78", "***78"},
		{"06-12-34-56-79", "***79"},
		{"12", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactMSISDN(tt.in))
		})
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsPhoneNumbers(t *testing.T) {
	buf := capture(t)

	Info("refresh failed", "msisdn", "+33612345678", "error", "lookup +33698765432 timed out", "hashed_line", "ab12cd")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "***78", entry["msisdn"])
	assert.Equal(t, "lookup ***32 timed out", entry["error"])
	assert.Equal(t, "ab12cd", entry["hashed_line"])
}

func TestLogRedactionDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)

	Warn("raw", "msisdn", "+33612345678")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "+33612345678", entry["msisdn"])
}

func TestLogLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Debug("hidden")
	Info("hidden")
	assert.Zero(t, buf.Len())

	Error("shown", "component", "reaper")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestLogLeavesIdentifiersAlone(t *testing.T) {
	buf := capture(t)

	hash := "a1234567b9f0c2d4e6f8091a2b3c4d5e6f7081920a1b2c3d4e5f60718293a4b5"
	Info("lead upserted", "lead_id", "550e8400-e29b-41d4-a716-446655440000", "hashed_line", hash, "note", "abc1234567def")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", entry["lead_id"])
	assert.Equal(t, hash, entry["hashed_line"])
	assert.Equal(t, "abc1234567def", entry["note"])
}

func TestRedactValueKeepsOperationalValues(t *testing.T) {
	tests := []struct {
		key, in, want string
	}{
		{"count", "1250000", "1250000"},
		{"before", "2026-09-18T08:07:18Z", "2026-09-18T08:07:18Z"},
		{"cutoff", "2026-09-18T08:07:18+02:00", "2026-09-18T08:07:18+02:00"},
		{"error", "context deadline 2026-10-18 exceeded", "context deadline 2026-10-18 exceeded"},
		{"error", "purged 1250000 rows", "purged 1250000 rows"},
		{"error", "lookup 0033698765432 failed", "lookup ***32 failed"},
		{"error", "lookup +33 6 98 76 54 32 failed", "lookup ***32 failed"},
		{"phone", "0612345678", "***78"},
		{"line", "+33612345678", "***78"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, redactValue(tt.key, tt.in))
		})
	}
}

func TestLogKeepsPurgeCounts(t *testing.T) {
	buf := capture(t)

	Info("processed events purged", "count", 1250000, "before", "2026-09-18T08:07:18Z")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, "2026-09-18T08:07:18Z", entry["before"])
	assert.Contains(t, buf.String(), "1250000")
}
