package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ns, action, payload string
		want                string
	}{
		{"app", "about", "", "app:about"},
		{"noop", "", "", "noop:"},
		{"x", "y", "a:b", "x:y:a:b"},
	}
	for _, tt := range tests {
		got := Data(tt.ns, tt.action, tt.payload)
		if got != tt.want {
			t.Fatalf("Data = %q, want %q", got, tt.want)
		}
		ns, action, payload, ok := SplitData(got)
		if !ok || ns != tt.ns || action != tt.action || payload != tt.payload {
			t.Fatalf("SplitData(%q) = %q %q %q %v", got, ns, action, payload, ok)
		}
	}
	if _, _, _, ok := SplitData("plain"); ok {
		t.Fatalf("SplitData without separator should fail")
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()

	rm := NewInline().
		Row(Btn("a", "ev:gh:"), URLBtn("src", "https://example.com")).
		Row().
		Row(Btn("b", "ev:menu")).
		Markup()
	if len(rm.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(rm.InlineKeyboard))
	}
	got := CallbackData(rm)
	if strings.Join(got, ",") != "ev:gh:,ev:menu" {
		t.Fatalf("CallbackData = %v", got)
	}
	if CallbackData(nil) != nil {
		t.Fatalf("nil markup should yield nil")
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	rm := &tele.ReplyMarkup{}
	msg := New().Title("⚙", "Settings").Line("a < b").KV("Repo", "x&y").Markup(rm).Build()
	want := "⚙ <b>Settings</b>\na &lt; b\n• <b>Repo</b>: x&amp;y"
	if msg.Text != want {
		t.Fatalf("Text = %q\nwant %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview || msg.Opt.ReplyMarkupAdapter != rm {
		t.Fatalf("Opt = %+v", msg.Opt)
	}

	plain := New().ParseMode("").Line("a < b").Build()
	if plain.Text != "a < b" {
		t.Fatalf("plain Text = %q", plain.Text)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	if got := TruncRunes("héllo", 3); got != "hé…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("héllo", 1); got != "…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("hé", 2); got != "hé" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("x", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
