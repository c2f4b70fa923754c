// Package strutil provides small string helpers shared by the ai packages.
package strutil

import "strings"

// Truncate shortens s to at most maxLen runes, appending "..." when
// anything was cut. Truncation is rune-based so multi-byte characters
// are never split. A maxLen of zero or less yields "".
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Preview renders s as a single-line log preview: whitespace runs
// (including newlines) collapse to single spaces, then the result is
// truncated to maxLen runes. Chat content is multi-line; raw newlines
// would mangle the log output.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
