package uuid

import (
	"strings"
	"testing"
)

// TestNew verifies generated ids are unique v4 UUIDs.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() = %q is not a valid v4 UUID", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

// TestIsValid checks accepted and rejected formats.
func TestIsValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"550e8400-e29b-11d4-a716-446655440000", false}, // v1
		{"550e8400-e29b-41d4-c716-446655440000", false}, // bad variant
		{"550e8400e29b41d4a716446655440000", false},
		{"req-0", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.in); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	upper := "550E8400-E29B-41D4-A716-446655440000"
	if got := Normalize(" " + upper + " "); got != strings.ToLower(upper) {
		t.Errorf("Normalize(upper) = %q", got)
	}
	if got := Normalize(" req-4 "); got != "req-4" {
		t.Errorf("Normalize(req-4) = %q", got)
	}
}
