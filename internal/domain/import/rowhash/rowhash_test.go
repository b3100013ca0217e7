package rowhash

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	fields := []string{"2024-01-05", "-42.50", "Coffee Shop"}

	first := Fingerprint(fields)
	second := Fingerprint(fields)

	if first != second {
		t.Fatalf("fingerprint not deterministic: %q vs %q", first, second)
	}
}

func TestFingerprintFormat(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
	}{
		{"empty row", []string{}},
		{"single field", []string{"a"}},
		{"typical row", []string{"2024-01-05", "-42.50", "Coffee Shop"}},
		{"unicode", []string{"café", "1.234,56", "Überweisung"}},
		{"long row", []string{"one", "two", "three", "four", "five", "six", "seven"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.fields)
			if len(got) < 8 {
				t.Errorf("Fingerprint(%v) = %q, want at least 8 hex chars", tt.fields, got)
			}
			for _, c := range got {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					t.Errorf("Fingerprint(%v) = %q contains non-hex char %q", tt.fields, got, c)
				}
			}
		})
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := Fingerprint([]string{"2024-01-05", "-42.50", "Coffee Shop"})
	b := Fingerprint([]string{"2024-01-06", "100.00", "Paycheck"})

	if a == b {
		t.Fatalf("distinct rows hashed to the same digest %q", a)
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// The separator keeps ["ab","c"] and ["a","bc"] from colliding trivially.
	a := Fingerprint([]string{"ab", "c"})
	b := Fingerprint([]string{"a", "bc"})

	if a == b {
		t.Fatalf("field boundary ignored: %q == %q", a, b)
	}
}

func TestFingerprintEmptyVsBlank(t *testing.T) {
	if Fingerprint([]string{}) != Fingerprint([]string{""}) {
		// Joining zero fields and one empty field both yield "", so the
		// digests must agree; this pins the known degenerate case.
		t.Fatal("degenerate empty-row digests diverged")
	}
}
