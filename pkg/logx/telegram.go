package logx

import (
	"bytes"
	"context"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"

	kit "gitnotify/internal/transport"
)

const (
	telegramMaxLen   = 3500
	telegramFieldLen = 600
	telegramStackLen = 900
)

func (s *Service) telegramWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.tgQueue:
			s.mu.Lock()
			sender := s.sender
			s.mu.Unlock()
			if sender == nil {
				continue
			}
			_, _ = sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

// telegramWriter is a zerolog LevelWriter that forwards lines at or above the
// configured level to the log chat. It never blocks logging: lines are
// dropped when the limiter or the queue is full.
type telegramWriter struct{ svc *Service }

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	to := s.target
	lim := s.limiter
	minLevel := s.minLevel
	hasSender := s.sender != nil
	s.mu.Unlock()

	if to.ChatID == 0 || !hasSender || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatTelegramLine(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case s.tgQueue <- telegramItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatTelegramLine renders one zerolog JSON line as
//
//	[LEVEL] message
//	- key=value
//
// keeping the field order of the line. Non-JSON input is sent trimmed.
func formatTelegramLine(p []byte) string {
	p = bytes.TrimSpace(p)
	if len(p) == 0 {
		return ""
	}
	if p[0] != '{' {
		return truncate(string(p), telegramMaxLen)
	}

	lvl, _ := jsonparser.GetString(p, zerolog.LevelFieldName)
	msg, _ := jsonparser.GetString(p, zerolog.MessageFieldName)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	err := jsonparser.ObjectEach(p, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		k := string(key)
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			return nil
		}
		v := string(value)
		if dt == jsonparser.String {
			if uv, err := jsonparser.ParseString(value); err == nil {
				v = uv
			}
		}
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(v, telegramStackLen))
			return nil
		}
		b.WriteString("\n- " + k + "=" + truncate(v, telegramFieldLen))
		return nil
	})
	if err != nil {
		return truncate(string(p), telegramMaxLen)
	}
	return truncate(b.String(), telegramMaxLen)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
