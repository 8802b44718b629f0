package adapter

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short = %q", got)
	}

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(long, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("newline split = %q", got)
	}

	html := "abcdef<b>xy</b>"
	got = splitText(html, 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("html split = %q", got)
	}
	if strings.Join(got, "") != html {
		t.Fatalf("chunks lost content: %q", got)
	}

	for _, c := range splitText(strings.Repeat("é", 25), 10, "") {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}
