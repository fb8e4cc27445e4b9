package textutil

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "Inception Explained", "Inception Explained"},
		{"slash becomes dash", "Before/After", "Before-After"},
		{"colon becomes dash", "Dune: Part Two", "Dune- Part Two"},
		{"quotes removed", `The "Best" Ending`, "The Best Ending"},
		{"angle brackets removed", "a <b> c", "a b c"},
		{"geez script passes through", "አስደናቂ ፊልም ሪካፕ", "አስደናቂ ፊልም ሪካፕ"},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFileName(tc.input); got != tc.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeFileNameBoundsLength(t *testing.T) {
	long := strings.Repeat("ሀ", 150)
	got := SanitizeFileName(long)
	if runes := len([]rune(got)); runes != 100 {
		t.Fatalf("expected 100 runes, got %d", runes)
	}
}
