// Package redaction implements uniform PII masking across heterogeneous
// audit record shapes.
//
// Redaction is a pure transformation: (record, personLinked) -> record.
// It never mutates its input and has no side effects. Matching happens in
// three tiers, in order of precedence:
//
//  1. exact field-name rules (case-insensitive) with shape-preserving maskers
//  2. broader key-pattern categories that redact wholesale
//  3. a free-text scrubber over any remaining string value
//
// Under personLinked, date-like fields are additionally truncated to
// year-month granularity. Traversal into nested maps and lists is
// depth-guarded; cyclic input is a programming error, not a supported case.
package redaction

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	// maxDepth bounds recursion into nested structures. Audit details are
	// JSON-like and acyclic; anything deeper than this is malformed input.
	maxDepth = 32

	redactedToken  = "[REDACTED]"
	deviceToken    = "[DEVICE_ID_REMOVED]"
	photoToken     = "[PHOTO_REMOVED]"
	signatureToken = "[SIGNATURE_REMOVED]"
	userAgentToken = "[USER_AGENT_REMOVED]"
)

// personLinkedTargets are target types whose audit records always concern
// a natural person.
var personLinkedTargets = map[string]bool{
	"case":            true,
	"intended_parent": true,
	"match":           true,
	"task":            true,
	"note":            true,
	"entity_note":     true,
	"case_activity":   true,
	"user":            true,
}

// piiKeys is the fixed key set whose presence in details marks a record as
// person-linked even without a person target or actor.
var piiKeys = map[string]bool{
	"name": true, "first_name": true, "last_name": true, "full_name": true,
	"email": true, "phone": true, "fax": true, "ssn": true, "mrn": true,
	"account_number": true, "address": true, "city": true, "zip": true,
	"postal_code": true, "dob": true, "date_of_birth": true,
	"ip_address": true, "device_id": true, "photo_url": true,
	"signature": true, "user_agent": true,
}

// PersonLinked reports whether a record concerns a natural person: the
// target type is person-bearing, an actor is recorded, or the details map
// carries a known PII key at any nesting level's top map.
func PersonLinked(targetType, actorUserID string, details map[string]any) bool {
	if personLinkedTargets[strings.ToLower(targetType)] {
		return true
	}
	if actorUserID != "" {
		return true
	}
	for k := range details {
		if piiKeys[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

// masker transforms a raw string field value into its masked form.
type masker func(string) string

// exactRules maps lowercased field names to shape-preserving maskers.
// Exact-key rules win over pattern fallback when both could apply.
var exactRules = map[string]masker{
	"name":           maskName,
	"first_name":     maskName,
	"last_name":      maskName,
	"full_name":      maskName,
	"display_name":   maskName,
	"actor_name":     maskName,
	"email":          maskEmail,
	"phone":          maskPhone,
	"fax":            maskPhone,
	"ip_address":     maskIP,
	"ssn":            maskNumberTail,
	"mrn":            maskNumberTail,
	"account_number": maskNumberTail,
	"address":        func(string) string { return redactedToken },
	"city":           func(string) string { return redactedToken },
	"zip":            maskZip,
	"postal_code":    maskZip,
	"device_id":      func(string) string { return deviceToken },
	"photo_url":      func(string) string { return photoToken },
	"signature":      func(string) string { return signatureToken },
	"user_agent":     func(string) string { return userAgentToken },
}

// patternCategories is the fallback tier: any key matching one of these
// categories, without an exact rule, is redacted wholesale.
var patternCategories = []*regexp.Regexp{
	regexp.MustCompile(`(?i)email`),
	regexp.MustCompile(`(?i)phone|fax|mobile|telephone`),
	regexp.MustCompile(`(?i)ssn|social_security|mrn|medical_record|account_num`),
	regexp.MustCompile(`(?i)address|street|city|zip|postal`),
	regexp.MustCompile(`(?i)(^|_)ip(_|$)|device|mac_addr`),
	regexp.MustCompile(`(?i)name|guardian|emergency_contact`),
}

// dateKeyPattern matches date-bearing field names (dob, created_at,
// updated_at, completed_at, birth_date, ...).
var dateKeyPattern = regexp.MustCompile(`(?i)(^|_)dob($|_)|birth|_at$|_date$|(^|_)date(_|$)`)

// Free-text scrubber patterns. SSN is scrubbed before phone so the 3-2-4
// shape is not half-eaten by the phone pattern.
var (
	emailTextPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	ssnTextPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phoneTextPattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`)
	ipv4TextPattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Engine applies the redaction taxonomy to records.
type Engine struct{}

// NewEngine returns a redaction engine.
func NewEngine() *Engine {
	return &Engine{}
}

// RedactRecord returns a redacted copy of record. The input is never
// mutated. Date truncation applies only when personLinked.
func (e *Engine) RedactRecord(record map[string]any, personLinked bool) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = e.redactValue(k, v, personLinked, 0)
	}
	return out
}

func (e *Engine) redactValue(key string, v any, personLinked bool, depth int) any {
	if depth > maxDepth {
		panic("redaction: structure exceeds max depth (cyclic input?)")
	}

	lower := strings.ToLower(key)

	// Date truncation takes effect before field masking: created_at and
	// friends carry no PII beyond the timestamp itself.
	if personLinked && dateKeyPattern.MatchString(lower) {
		return truncateDate(v)
	}

	if rule, ok := exactRules[lower]; ok {
		return applyMasker(rule, v)
	}

	for _, pat := range patternCategories {
		if pat.MatchString(lower) {
			return redactedToken
		}
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = e.redactValue(k, nested, personLinked, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nested := range val {
			out[i] = e.redactValue("", nested, personLinked, depth+1)
		}
		return out
	case string:
		return e.ScrubText(val)
	default:
		// Unmatched scalars pass through unchanged.
		return v
	}
}

// ScrubText masks emails, SSNs, US-style phone numbers, and IPv4
// addresses embedded in prose.
func (e *Engine) ScrubText(s string) string {
	s = emailTextPattern.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = ssnTextPattern.ReplaceAllString(s, "[REDACTED_SSN]")
	s = phoneTextPattern.ReplaceAllString(s, "[REDACTED_PHONE]")
	s = ipv4TextPattern.ReplaceAllString(s, "[REDACTED_IP]")
	return s
}

// applyMasker runs an exact-rule masker. Non-string values under an
// exact-rule key redact wholesale: the shape-preserving maskers only make
// sense for strings.
func applyMasker(m masker, v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return redactedToken
	}
	masked := m(s)
	// A masked value must never round-trip to its raw input (e.g. an IPv4
	// that already ends in .0.0).
	if masked == s {
		return redactedToken
	}
	return masked
}

func maskName(s string) string {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return string(unicode.ToUpper(r)) + ". ***"
		}
	}
	return redactedToken
}

func maskEmail(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 0 || at == len(s)-1 {
		return redactedToken
	}
	return "***@" + s[at+1:]
}

func maskPhone(s string) string {
	digits := digitsOf(s)
	if len(digits) < 4 {
		return redactedToken
	}
	return "***-***-" + digits[len(digits)-4:]
}

func maskNumberTail(s string) string {
	digits := digitsOf(s)
	if len(digits) < 4 {
		return redactedToken
	}
	return "***-**-" + digits[len(digits)-4:]
}

// maskIP zeroes the trailing two octets of an IPv4 address and truncates
// IPv6 to its leading groups.
func maskIP(s string) string {
	if strings.Count(s, ".") == 3 {
		parts := strings.Split(s, ".")
		return parts[0] + "." + parts[1] + ".0.0"
	}
	if strings.Contains(s, ":") {
		groups := strings.Split(s, ":")
		if len(groups) >= 2 {
			return groups[0] + ":" + groups[1] + "::"
		}
	}
	return redactedToken
}

func maskZip(s string) string {
	if len(s) < 3 {
		return redactedToken
	}
	return s[:3] + "**"
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncateDate reduces a timestamp value to year-month granularity.
// Unparseable values redact wholesale rather than leak.
func truncateDate(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format("2006-01")
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format("2006-01")
	case string:
		if val == "" {
			return ""
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC().Format("2006-01")
			}
		}
		return redactedToken
	case nil:
		return nil
	default:
		return redactedToken
	}
}

// String implements fmt.Stringer for diagnostics.
func (e *Engine) String() string {
	return fmt.Sprintf("redaction.Engine(rules=%d, patterns=%d)", len(exactRules), len(patternCategories))
}
