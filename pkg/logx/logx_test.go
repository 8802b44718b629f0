package logx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "gitnotify/internal/transport"
)

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()

	line := `{"level":"warn","time":"x","comp":"settings","err":"disk \"full\"","message":"persist failed"}`
	got := formatTelegramLine([]byte(line + "\n"))
	want := "[WARN] persist failed\n- comp=settings\n- err=disk \"full\""
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}

	if got := formatTelegramLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("plain = %q", got)
	}
	if got := formatTelegramLine(nil); got != "" {
		t.Fatalf("empty = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("dropped", String("k", "v"))
	l.With(Int("n", 1)).Logf("[WARN] also dropped %d", 2)
	if Nop().IsZero() {
		t.Fatalf("Nop should not be zero")
	}
}

type captureSender struct{ got chan string }

func (c captureSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.got <- text
	return kit.MessageRef{}, nil
}

func TestTelegramSinkHonorsMinLevel(t *testing.T) {
	sender := captureSender{got: make(chan string, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: 7, MinLevel: "warn", RatePerSec: 10},
	}, nil)
	defer svc.Close()
	svc.SetSender(sender)

	log.Info("quiet")
	log.Error("loud", String("comp", "test"))

	select {
	case msg := <-sender.got:
		if !strings.HasPrefix(msg, "[ERROR] loud") || !strings.Contains(msg, "- comp=test") {
			t.Fatalf("msg = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error line was not forwarded")
	}
	select {
	case msg := <-sender.got:
		t.Fatalf("unexpected extra message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if !log.Enabled(zerolog.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}
}

func TestFieldsAndLogf(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	zl := zerolog.New(&buf).Level(zerolog.DebugLevel)
	log := Logger{fixed: &zl}.With(String("comp", "test"))

	log.Warn("toggled", Int("n", 2), Bool("ok", true), Err(nil), Stack(""), Duration("took", time.Second))
	line := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":2`, `"ok":true`, `"message":"toggled"`, `"level":"warn"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %s lacks %s", line, want)
		}
	}
	if strings.Contains(line, `"stack"`) || strings.Contains(line, `"err"`) {
		t.Fatalf("empty fields written: %s", line)
	}

	buf.Reset()
	log.Logf("[ERROR] listen failed on %s", ":80")
	if line := buf.String(); !strings.Contains(line, `"level":"error"`) || !strings.Contains(line, `"message":"listen failed on :80"`) {
		t.Fatalf("Logf line = %s", line)
	}
}
