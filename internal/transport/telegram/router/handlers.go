package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitnotify/internal/dispatch"
	"gitnotify/internal/menu"
	"gitnotify/internal/metrics"
	"gitnotify/internal/nav"
	"gitnotify/internal/storage"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

const defaultAuditLimit = 10

// Handlers are the bot's commands and callbacks over the settings menus.
type Handlers struct {
	Dispatch *dispatch.Router
	Menus    *menu.Builder
	Store    storage.Store // nil disables /audit
	Metrics  *metrics.Metrics
	// About is the HTML shown by the main menu's About button.
	About tgui.H
}

func (h *Handlers) Commands() []Command {
	cmds := []Command{
		{Name: "start", Description: "open the main menu", Handle: h.screen(dispatch.RootState())},
		{Name: "menu", Description: "open the main menu", Handle: h.screen(dispatch.RootState())},
		{Name: "settings", Description: "choose which notifications are sent", Access: AccessOwnerOnly, Handle: h.screen(dispatch.SettingsState())},
		{Name: "id", Description: "show this chat's id", Handle: h.id},
	}
	if h.Store != nil {
		cmds = append(cmds, Command{
			Name:        "audit",
			Description: "recent settings changes",
			Usage:       "/audit [n]",
			Access:      AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle:      h.audit,
		})
	}
	return cmds
}

func (h *Handlers) Callbacks() []CallbackRoute {
	return []CallbackRoute{
		{Namespace: strings.TrimSuffix(nav.Prefix, ":"), Access: AccessOwnerOnly, Timeout: 10 * time.Second, Handle: h.navigate},
		{Namespace: "app", Access: AccessEveryone, Handle: h.app},
		{Namespace: "noop", Access: AccessEveryone, Handle: func(context.Context, *Request) error { return nil }},
	}
}

func message(out dispatch.Outcome) tgui.Message {
	return tgui.New().RawLine(out.Text.String()).Markup(out.Grid.Markup()).Build()
}

// screen sends a fresh menu message for st.
func (h *Handlers) screen(st dispatch.State) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		out, err := h.Dispatch.Render(ctx, st)
		if err != nil {
			return h.menuFailure(ctx, req, err)
		}
		return req.Reply(ctx, message(out))
	}
}

// navigate handles a navigation token: the screen it was pressed on is read
// back from the message's own keyboard, then the message is edited in place.
func (h *Handlers) navigate(ctx context.Context, req *Request) error {
	state := dispatch.InferState(req.Keyboard)
	out, err := h.Dispatch.Dispatch(ctx, dispatch.Request{
		State:   state,
		Data:    req.Data,
		ActorID: req.FromID,
		ChatID:  req.Chat.ChatID,
	})
	if err != nil {
		h.Metrics.Callback("error")
		if dispatch.IsFatal(err) {
			req.Answer(ctx, "Settings are unavailable")
		} else {
			req.Answer(ctx, "Menu unavailable")
		}
		return h.menuFailure(ctx, req, err)
	}

	switch {
	case out.Failed:
		h.Metrics.Callback("failed")
		req.Answer(ctx, "Change was not saved")
	case out.Toggled != "":
		h.Metrics.Callback("toggled")
	case out.Ignored:
		h.Metrics.Callback("ignored")
	default:
		h.Metrics.Callback("navigated")
	}
	req.Logger.Debug("menu transition",
		logx.String("from", state.String()),
		logx.String("to", out.State.String()),
		logx.String("toggled", out.Toggled),
	)
	return message(out).Edit(ctx, req.Adapter, req.Ref())
}

// menuFailure tells the operator why no menu was shown. Only a missing or
// corrupt settings file is blamed on the file.
func (h *Handlers) menuFailure(ctx context.Context, req *Request, err error) error {
	b := tgui.New()
	if dispatch.IsFatal(err) {
		b.Title("⚠", "Settings could not be read").
			Line("The settings file is missing or damaged; nothing was changed.")
	} else {
		b.Title("⚠", "Menu could not be rendered").
			Line("Nothing was changed.")
	}
	if rerr := req.Reply(ctx, b.Pre(err.Error()).Build()); rerr != nil {
		req.log(logx.Nop()).Warn("failure reply not sent", logx.Err(rerr))
	}
	return err
}

func (h *Handlers) app(ctx context.Context, req *Request) error {
	_, action, _, _ := tgui.SplitData(req.Data)
	if action != "about" {
		return nil
	}
	h.Metrics.Callback("about")
	cfg := h.Menus.Config()
	grid := menu.Grid{{{Text: cfg.BackToMenu, Data: nav.MustEncode(nav.Home())}}}
	about := h.About
	if about == "" {
		about = tgui.JoinH("\n",
			tgui.B("Git notifier"),
			tgui.Esc("Forwards GitHub and GitLab webhook events to this chat."),
		)
	}
	return tgui.New().RawLine(about.String()).Markup(grid.Markup()).Build().Edit(ctx, req.Adapter, req.Ref())
}

func (h *Handlers) id(ctx context.Context, req *Request) error {
	b := tgui.New().Title("🆔", "Identifiers").
		KV("Chat", strconv.FormatInt(req.Chat.ChatID, 10)).
		KV("User", strconv.FormatInt(req.FromID, 10))
	if req.Chat.ThreadID != 0 {
		b.KV("Thread", strconv.Itoa(req.Chat.ThreadID))
	}
	return req.Reply(ctx, b.Build())
}

func (h *Handlers) audit(ctx context.Context, req *Request) error {
	limit := defaultAuditLimit
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, tgui.New().Line("Usage: /audit [n]").Build())
		}
		limit = min(n, 100)
	}
	entries, err := h.Store.RecentAudit(ctx, limit)
	if err != nil {
		return err
	}
	b := tgui.New().Title("📜", "Recent settings changes")
	if len(entries) == 0 {
		return req.Reply(ctx, b.Line("Nothing recorded yet.").Build())
	}
	return req.Reply(ctx, b.Pre(formatAudit(entries)).Build())
}

func formatAudit(entries []storage.AuditEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = "FAIL"
			if e.Error != "" {
				status += " (" + e.Error + ")"
			}
		}
		fmt.Fprintf(&sb, "%s %s %s:%s by %d %s\n",
			e.At.UTC().Format("01-02 15:04:05"), status, e.Scope, e.Path, e.ActorID, (time.Duration(e.TookMS) * time.Millisecond).String())
	}
	return sb.String()
}
