package tgui

import "unicode/utf8"

// TruncRunes shortens s to n runes. When it cuts, the last kept rune is
// replaced by "…" so the result is still n runes long.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n-1 {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
