package membership

import "testing"

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() failed: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("GenerateCode() = %q, not a valid code", code)
		}
		seen[code] = true
	}
	// 36^6 possibilities; a handful of collisions in 200 draws would mean a
	// broken generator.
	if len(seen) < 195 {
		t.Errorf("only %d distinct codes in 200 draws", len(seen))
	}
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"AB12CD", true},
		{"000000", true},
		{"ZZZZZZ", true},
		{"ab12cd", false},
		{"AB12C", false},
		{"AB12CDE", false},
		{"AB 2CD", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidCode(tt.code); got != tt.want {
			t.Errorf("ValidCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  ab12cd\n"); got != "AB12CD" {
		t.Errorf("NormalizeCode() = %q, want AB12CD", got)
	}
}
