package strutil

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"empty string", "", 10, ""},
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"needs truncation", "hello world", 5, "hello..."},
		{"single char truncated", "ab", 1, "a..."},

		// maxLen edge cases
		{"zero maxLen", "hello", 0, ""},
		{"negative maxLen", "hello", -1, ""},

		// Rune safety with multi-byte characters
		{"chinese exact", "中文测试", 4, "中文测试"},
		{"chinese truncated", "中文测试abc", 4, "中文测试..."},
		{"emoji", "hello 🎉 world", 8, "hello 🎉 ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"single line unchanged", "hello world", 20, "hello world"},
		{"newlines collapse", "first line\nsecond line", 30, "first line second line"},
		{"whitespace runs collapse", "a  \t b\n\nc", 10, "a b c"},
		{"collapsed then truncated", "one\ntwo\nthree", 7, "one two..."},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}
