package redaction

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonLinked(t *testing.T) {
	tests := []struct {
		name        string
		targetType  string
		actorUserID string
		details     map[string]any
		want        bool
	}{
		{"person target", "case", "", nil, true},
		{"person target mixed case", "Intended_Parent", "", nil, true},
		{"actor present", "export_job", "user-1", nil, true},
		{"pii key in details", "system", "", map[string]any{"Email": "x"}, true},
		{"system record", "system", "", map[string]any{"version": 2}, false},
		{"empty everything", "", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PersonLinked(tt.targetType, tt.actorUserID, tt.details))
		})
	}
}

func TestRedactRecordExactRules(t *testing.T) {
	e := NewEngine()
	record := map[string]any{
		"name":           "Alice Smith",
		"email":          "alice@example.com",
		"phone":          "(555) 123-4567",
		"ssn":            "123-45-6789",
		"account_number": "9988776655",
		"address":        "12 Main St",
		"city":           "Springfield",
		"zip":            "62704",
		"ip_address":     "203.0.113.45",
		"device_id":      "dev-abc",
		"photo_url":      "https://cdn/p.jpg",
		"signature":      "base64...",
		"user_agent":     "Mozilla/5.0",
	}

	got := e.RedactRecord(record, false)

	assert.Equal(t, "A. ***", got["name"])
	assert.Equal(t, "***@example.com", got["email"])
	assert.Equal(t, "***-***-4567", got["phone"])
	assert.Equal(t, "***-**-6789", got["ssn"])
	assert.Equal(t, "***-**-6655", got["account_number"])
	assert.Equal(t, "[REDACTED]", got["address"])
	assert.Equal(t, "[REDACTED]", got["city"])
	assert.Equal(t, "627**", got["zip"])
	assert.Equal(t, "203.0.0.0", got["ip_address"])
	assert.Equal(t, "[DEVICE_ID_REMOVED]", got["device_id"])
	assert.Equal(t, "[PHOTO_REMOVED]", got["photo_url"])
	assert.Equal(t, "[SIGNATURE_REMOVED]", got["signature"])
	assert.Equal(t, "[USER_AGENT_REMOVED]", got["user_agent"])

	// Input untouched.
	assert.Equal(t, "Alice Smith", record["name"])
}

func TestRedactRecordKeyIsCaseInsensitive(t *testing.T) {
	e := NewEngine()
	got := e.RedactRecord(map[string]any{"EMAIL": "bob@corp.io"}, false)
	assert.Equal(t, "***@corp.io", got["EMAIL"])
}

func TestRedactRecordPatternFallback(t *testing.T) {
	e := NewEngine()
	got := e.RedactRecord(map[string]any{
		"guardian_phone":       "555-000-1111",
		"emergency_contact":    "Jane Doe",
		"billing_street":       "44 Elm Rd",
		"social_security_hash": "abcd",
		"mac_address":          "aa:bb:cc:dd:ee:ff",
	}, false)

	for k, v := range got {
		assert.Equal(t, "[REDACTED]", v, "key %s", k)
	}
}

func TestRedactRecordNonStringUnderExactRule(t *testing.T) {
	e := NewEngine()
	got := e.RedactRecord(map[string]any{"ssn": 123456789}, false)
	assert.Equal(t, "[REDACTED]", got["ssn"])
}

func TestRedactRecordNestedStructures(t *testing.T) {
	e := NewEngine()
	record := map[string]any{
		"action": "update",
		"changes": map[string]any{
			"email": "old@example.com",
			"notes": []any{
				map[string]any{"phone": "555-867-5309"},
				"call me at 555-867-5309",
			},
		},
	}

	got := e.RedactRecord(record, false)

	changes := got["changes"].(map[string]any)
	assert.Equal(t, "***@example.com", changes["email"])
	notes := changes["notes"].([]any)
	assert.Equal(t, "***-***-5309", notes[0].(map[string]any)["phone"])
	assert.Equal(t, "call me at [REDACTED_PHONE]", notes[1])
}

func TestRedactRecordDateTruncation(t *testing.T) {
	e := NewEngine()
	ts := time.Date(2025, 3, 17, 14, 2, 0, 0, time.UTC)
	record := map[string]any{
		"dob":          "1990-06-15",
		"created_at":   ts,
		"birth_date":   "1990-06-15T00:00:00Z",
		"updated_at":   "2025-03-17 14:02:00",
		"archive_date": "not a date",
	}

	got := e.RedactRecord(record, true)
	assert.Equal(t, "1990-06", got["dob"])
	assert.Equal(t, "2025-03", got["created_at"])
	assert.Equal(t, "1990-06", got["birth_date"])
	assert.Equal(t, "2025-03", got["updated_at"])
	assert.Equal(t, "[REDACTED]", got["archive_date"])

	// Without person linkage, dates pass through intact.
	full := e.RedactRecord(record, false)
	assert.Equal(t, "1990-06-15", full["dob"])
	assert.Equal(t, ts, full["created_at"])
}

func TestScrubText(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		in, want string
	}{
		{"reach me at jo.doe+x@mail.example.org thanks", "reach me at [REDACTED_EMAIL] thanks"},
		{"ssn 123-45-6789 on file", "ssn [REDACTED_SSN] on file"},
		{"call (415) 555-0199 today", "call [REDACTED_PHONE] today"},
		{"login from 10.21.4.8", "login from [REDACTED_IP]"},
		{"no pii here", "no pii here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ScrubText(tt.in))
	}
}

func TestMaskedValueNeverEqualsInput(t *testing.T) {
	e := NewEngine()
	// An address that already collapses to its own mask.
	got := e.RedactRecord(map[string]any{"ip_address": "10.0.0.0"}, false)
	assert.Equal(t, "[REDACTED]", got["ip_address"])
}

func TestRedactRecordDepthGuard(t *testing.T) {
	leaf := map[string]any{"value": "x"}
	node := leaf
	for i := 0; i < maxDepth+2; i++ {
		node = map[string]any{"child": node}
	}

	require.Panics(t, func() {
		NewEngine().RedactRecord(node, false)
	})
}

// Property: for any generated record holding a raw email and SSN, the
// redacted output never contains either raw value.
func TestRedactionNeverLeaksProperty(t *testing.T) {
	e := NewEngine()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	genLocal := gen.RegexMatch(`[a-z]{3,10}`)
	genTLD := gen.OneConstOf("com", "org", "io")
	genKey := gen.OneConstOf("email", "contact_email", "notes", "description", "payload")

	properties.Property("raw email never survives redaction", prop.ForAll(
		func(local, host, tld, key string) bool {
			email := local + "@" + host + "." + tld
			record := map[string]any{
				key:      "contact " + email + " for details",
				"action": "update",
			}
			got := e.RedactRecord(record, true)
			for _, val := range got {
				if s, ok := val.(string); ok && strings.Contains(s, email) {
					return false
				}
			}
			return true
		},
		genLocal, genLocal, genTLD, genKey,
	))

	properties.Property("raw ssn never survives free-text scrubbing", prop.ForAll(
		func(a, b, c int) bool {
			ssn := fmt.Sprintf("%03d-%02d-%04d", a, b, c)
			got := e.ScrubText("ssn on file: " + ssn)
			return !strings.Contains(got, ssn)
		},
		gen.IntRange(0, 999), gen.IntRange(0, 99), gen.IntRange(0, 9999),
	))

	properties.TestingRun(t)
}
