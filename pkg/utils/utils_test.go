package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ollama:llama3", "ollama-llama3"},
		{"a/b\\c", "a-b-c"},
		{"with space", "with-space"},
		{"clean-id", "clean-id"},
	}
	for _, tc := range tests {
		if got := SanitizeIdentifier(tc.in); got != tc.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if got := tc.CountTokens(""); got != 0 {
		t.Errorf("empty text tokens = %d, want 0", got)
	}
	if got := tc.CountTokens("write ok to output.txt"); got <= 0 {
		t.Errorf("tokens = %d, want > 0", got)
	}
}

func TestCountTokensNilCounterEstimates(t *testing.T) {
	var tc *TokenCounter
	if got := tc.CountTokens("abcdefgh"); got != 2 {
		t.Errorf("nil counter estimate = %d, want 2", got)
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}

	short := "brief"
	if got := tc.TruncateToTokenLimit(short, 100); got != short {
		t.Errorf("short text must pass through unchanged, got %q", got)
	}

	long := strings.Repeat("research finding about file io ", 200)
	got := tc.TruncateToTokenLimit(long, 50)
	if len(got) >= len(long) {
		t.Error("long text must shrink")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text must carry an ellipsis, got tail %q", got[len(got)-8:])
	}
	if tc.CountTokens(got) > 60 {
		t.Errorf("truncated text still %d tokens", tc.CountTokens(got))
	}
}

func TestTruncateToTokenLimitKeepsValidUTF8(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}

	// Multi-byte runes throughout, so a byte-indexed cut would land inside
	// a rune at most positions.
	long := strings.Repeat("日本語のテキストで切り詰めを検査する ", 100)
	for _, limit := range []int{10, 25, 50, 100} {
		got := tc.TruncateToTokenLimit(long, limit)
		if !utf8.ValidString(got) {
			t.Errorf("limit %d: truncated text is not valid UTF-8", limit)
		}
	}
}
