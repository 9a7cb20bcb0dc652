package store

import (
	"testing"
	"time"
)

func TestFingerprintStability(t *testing.T) {
	tests := []struct {
		name  string
		a, b  [3]string // title, description, due
		equal bool
	}{
		{
			name:  "identical inputs",
			a:     [3]string{"Buy milk", "2%", "2024-03-01T10:00:00Z"},
			b:     [3]string{"Buy milk", "2%", "2024-03-01T10:00:00Z"},
			equal: true,
		},
		{
			name:  "title case insensitive",
			a:     [3]string{"Buy Milk", "", ""},
			b:     [3]string{"buy milk", "", ""},
			equal: true,
		},
		{
			name:  "title whitespace trimmed",
			a:     [3]string{"  apple  ", "", ""},
			b:     [3]string{"Apple", "", ""},
			equal: true,
		},
		{
			name:  "description whitespace trimmed",
			a:     [3]string{"t", "  body  ", ""},
			b:     [3]string{"t", "body", ""},
			equal: true,
		},
		{
			name:  "description case preserved",
			a:     [3]string{"t", "Body", ""},
			b:     [3]string{"t", "body", ""},
			equal: false,
		},
		{
			name:  "unicode normalization NFC",
			a:     [3]string{"caf\u00e9", "", ""},  // precomposed
			b:     [3]string{"cafe\u0301", "", ""}, // e plus combining acute
			equal: true,
		},
		{
			name:  "due format variants normalize",
			a:     [3]string{"t", "", "2024-03-01T10:00:00Z"},
			b:     [3]string{"t", "", "2024-03-01T10:00:00+00:00"},
			equal: true,
		},
		{
			name:  "due offset converts to UTC",
			a:     [3]string{"t", "", "2024-03-01T12:00:00+02:00"},
			b:     [3]string{"t", "", "2024-03-01T10:00:00Z"},
			equal: true,
		},
		{
			name:  "bare date is midnight UTC",
			a:     [3]string{"t", "", "2024-03-01"},
			b:     [3]string{"t", "", "2024-03-01T00:00:00Z"},
			equal: true,
		},
		{
			name:  "different due differs",
			a:     [3]string{"t", "", "2024-03-01T10:00:00Z"},
			b:     [3]string{"t", "", "2024-03-02T10:00:00Z"},
			equal: false,
		},
		{
			name:  "different title differs",
			a:     [3]string{"alpha", "", ""},
			b:     [3]string{"beta", "", ""},
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fpA, err := Fingerprint(tt.a[0], tt.a[1], tt.a[2], StatusPending)
			if err != nil {
				t.Fatalf("Fingerprint(a) failed: %v", err)
			}
			fpB, err := Fingerprint(tt.b[0], tt.b[1], tt.b[2], StatusPending)
			if err != nil {
				t.Fatalf("Fingerprint(b) failed: %v", err)
			}
			if (fpA == fpB) != tt.equal {
				t.Errorf("fingerprint equality = %v, want %v (a=%s b=%s)", fpA == fpB, tt.equal, fpA, fpB)
			}
		})
	}
}

func TestFingerprintStatusSensitive(t *testing.T) {
	fpPending, _ := Fingerprint("task", "", "", StatusPending)
	fpDone, _ := Fingerprint("task", "", "", StatusCompleted)
	if fpPending == fpDone {
		t.Error("fingerprints with different status should differ")
	}
}

func TestFingerprintLength(t *testing.T) {
	fp, err := Fingerprint("task", "", "", StatusPending)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(fp) != 32 {
		t.Errorf("fingerprint length = %d, want 32 hex chars", len(fp))
	}
}

func TestFingerprintInvalidDue(t *testing.T) {
	if _, err := Fingerprint("task", "", "not-a-date", StatusPending); err == nil {
		t.Error("expected error for unparseable due")
	}
}

func TestTaskFingerprintMatchesFingerprint(t *testing.T) {
	due := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task := Task{Title: "Write report", Description: "quarterly", Due: &due, Status: StatusPending}

	fromTask := TaskFingerprint(task)
	direct, err := Fingerprint("Write report", "quarterly", "2024-03-01T10:00:00Z", StatusPending)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fromTask != direct {
		t.Errorf("TaskFingerprint = %s, want %s", fromTask, direct)
	}
}

func TestNormalizeDue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"2024-03-01T10:00:00Z", "2024-03-01T10:00:00+00:00"},
		{"2024-03-01T12:00:00+02:00", "2024-03-01T10:00:00+00:00"},
		{"2024-03-01", "2024-03-01T00:00:00+00:00"},
		{"2024-03-01T10:00:00", "2024-03-01T10:00:00+00:00"},
	}
	for _, tt := range tests {
		got, err := NormalizeDue(tt.in)
		if err != nil {
			t.Errorf("NormalizeDue(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
