package notifier

import (
	"context"
	"errors"
	"strings"

	"gitnotify/pkg/tgui"
)

// ErrNoTemplate is returned by a Renderer that has nothing for a path; the
// service then falls back to Summary.
var ErrNoTemplate = errors.New("notifier: no template")

// Renderer produces Telegram HTML for an event from a template path.
type Renderer interface {
	Render(ctx context.Context, path string, ev Event) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, path string, ev Event) (string, error)

func (f RendererFunc) Render(ctx context.Context, path string, ev Event) (string, error) {
	return f(ctx, path, ev)
}

// Summary is the built-in rendering: platform, event, action, repository,
// sender, title and link, HTML-escaped.
func Summary(ev Event) string {
	b := tgui.New().RawLine(tgui.JoinH(" ", tgui.B(ev.Platform.Title()), tgui.Code(eventLabel(ev))).String())
	if ev.Repository != "" {
		b.KV("Repository", ev.Repository)
	}
	if ev.Sender != "" {
		b.KV("By", ev.Sender)
	}
	if ev.Title != "" {
		b.RawLine(tgui.I(tgui.TruncRunes(ev.Title, 200)).String())
	}
	if ev.URL != "" {
		b.RawLine(tgui.Link("Open", ev.URL).String())
	}
	return b.Build().Text
}

func eventLabel(ev Event) string {
	name := strings.ReplaceAll(ev.Name, "_", " ")
	if ev.Action == "" {
		return name
	}
	return name + " · " + strings.ReplaceAll(ev.Action, "_", " ")
}

func render(ctx context.Context, r Renderer, ev Event) (string, error) {
	if r == nil {
		return Summary(ev), nil
	}
	text, err := r.Render(ctx, TemplatePath(ev), ev)
	if errors.Is(err, ErrNoTemplate) || (err == nil && strings.TrimSpace(text) == "") {
		return Summary(ev), nil
	}
	return text, err
}
