package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// dueLayout is the canonical form a due timestamp takes inside a
// fingerprint: second precision, explicit +00:00 offset.
const dueLayout = "2006-01-02T15:04:05+00:00"

// dueParseLayouts are the ISO-8601 shapes accepted from the stores and the
// upstream wire. A trailing Z parses via RFC3339; naive timestamps are read
// as UTC; bare dates normalise to midnight UTC.
var dueParseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Fingerprint derives the 128-bit content hash that equates tasks across
// stores. Title is NFC-normalised, trimmed and lower-cased; description is
// trimmed; due is normalised to canonical UTC form; status is hashed as its
// canonical literal. The digest is independent of field order and locale.
//
// A structurally malformed due value yields a FingerprintError; callers treat
// such a task as unable to be a duplicate of anything.
func Fingerprint(title, description, due string, status Status) (string, error) {
	normDue, err := NormalizeDue(due)
	if err != nil {
		return "", err
	}
	return digest(normalizeText(title, true), normalizeText(description, false), normDue, string(status)), nil
}

// TaskFingerprint fingerprints a Task already carrying a parsed due time.
// It cannot fail: a time.Time is structurally valid by construction.
func TaskFingerprint(t Task) string {
	due := ""
	if t.Due != nil {
		due = t.Due.UTC().Truncate(time.Second).Format(dueLayout)
	}
	return digest(normalizeText(t.Title, true), normalizeText(t.Description, false), due, string(t.Status))
}

// NormalizeDue parses any accepted ISO-8601 representation and emits the
// canonical UTC form. Empty input maps to the empty string. Sub-second
// precision is dropped.
func NormalizeDue(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, layout := range dueParseLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC().Truncate(time.Second).Format(dueLayout), nil
		}
	}
	return "", &FingerprintError{Value: raw, Err: fmt.Errorf("not an ISO-8601 timestamp")}
}

func normalizeText(s string, lower bool) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if lower {
		s = strings.ToLower(s)
	}
	return s
}

func digest(parts ...string) string {
	// 0x1f separates fields so "ab"+"c" and "a"+"bc" cannot collide.
	sum := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
