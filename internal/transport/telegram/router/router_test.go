package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"gitnotify/internal/catalog"
	"gitnotify/internal/dispatch"
	"gitnotify/internal/menu"
	"gitnotify/internal/settings"
	"gitnotify/internal/storage"
	kit "gitnotify/internal/transport"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

type call struct {
	op     string // send, edit, answer
	chatID int64
	text   string
	opt    *kit.SendOptions
}

type fakeAdapter struct {
	mu    sync.Mutex
	calls chan call
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{calls: make(chan call, 32)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.calls <- call{op: "send", chatID: to.ChatID, text: text, opt: opt}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 99}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.calls <- call{op: "edit", chatID: ref.ChatID, text: text, opt: opt}
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.calls <- call{op: "answer", text: text}
	return nil
}

func (f *fakeAdapter) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("adapter was not called")
	}
	return call{}
}

func tokensOf(t *testing.T, c call) []string {
	t.Helper()
	rm, ok := c.opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("%s without keyboard", c.op)
	}
	return tgui.CallbackData(rm)
}

const (
	owner    = int64(1)
	stranger = int64(2)
	logChat  = int64(-100)
)

type fixture struct {
	ad     *fakeAdapter
	store  storage.Store
	github *settings.Store
	ups    chan kit.Update
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) *settings.Store {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return settings.NewStore(p, logx.Nop())
	}
	st := write("settings.json", `{"isNotified": true, "notifyAllEvents": false}`)
	gh := write("github.json", `{"push": true, "issues": {"opened": false}}`)
	gl := write("gitlab.json", `{"push": false}`)

	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	menus := menu.NewBuilder(menu.DefaultConfig())
	dr := dispatch.NewRouter(st, catalog.Stores{catalog.GitHub: gh, catalog.GitLab: gl}, menus,
		dispatch.WithRecorder(AuditRecorder{Store: store, Log: logx.Nop()}))

	ad := newFakeAdapter()
	m := NewManager(logx.Nop(), ad, nil, []int64{owner})
	m.SetLogChat(kit.ChatTarget{ChatID: logChat})
	h := &Handlers{Dispatch: dr, Menus: menus, Store: store}
	m.SetRegistry(h.Commands(), h.Callbacks())

	ctx, cancel := context.WithCancel(context.Background())
	ups := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, ups)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{ad: ad, store: store, github: gh, ups: ups}
}

func (f *fixture) command(from int64, text string) {
	f.ups <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: from, FromID: from, FromName: "Ann", Text: text}}
}

func (f *fixture) press(from int64, data string, keyboard []string) {
	f.ups <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: from, FromID: from, MessageID: 99, Data: data, Keyboard: keyboard,
	}}
}

func TestOwnerWalksMenusAndToggles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.command(owner, "/settings@gitnotify_bot")
	c := f.ad.next(t)
	if c.op != "send" || !strings.Contains(c.text, "Settings") {
		t.Fatalf("settings reply = %+v", c)
	}
	kb := tokensOf(t, c)

	f.press(owner, "ev:gh:", kb)
	c = f.ad.next(t)
	if c.op != "edit" || !strings.Contains(c.text, "GitHub") {
		t.Fatalf("events edit = %+v", c)
	}
	if a := f.ad.next(t); a.op != "answer" || a.text != "" {
		t.Fatalf("answer = %+v", a)
	}
	kb = tokensOf(t, c)

	f.press(owner, "ev:gh:push!", kb)
	c = f.ad.next(t)
	if c.op != "edit" {
		t.Fatalf("toggle edit = %+v", c)
	}
	f.ad.next(t) // answer

	cat, err := catalog.Load(f.github, catalog.GitHub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if on, _ := cat.Enabled("push", ""); on {
		t.Fatalf("push still enabled after toggle")
	}

	entries, err := f.store.RecentAudit(context.Background(), 5)
	if err != nil || len(entries) != 1 || entries[0].Path != "push" || !entries[0].OK || entries[0].ActorID != owner {
		t.Fatalf("audit = %+v, %v", entries, err)
	}

	f.command(owner, "/audit")
	c = f.ad.next(t)
	if !strings.Contains(c.text, "github:push") {
		t.Fatalf("audit reply = %q", c.text)
	}
}

func TestStrangerIsDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.command(stranger, "/settings")
	denied := f.ad.next(t)
	notice := f.ad.next(t)
	if denied.chatID != stranger || !strings.Contains(denied.text, "Access denied") {
		t.Fatalf("denied = %+v", denied)
	}
	if notice.chatID != logChat || !strings.Contains(notice.text, "/settings") || !strings.Contains(notice.text, "tg://user?id=2") {
		t.Fatalf("notice = %+v", notice)
	}

	f.press(stranger, "ev:gh:push!", []string{"ev:gh:push!", "ev:back"})
	if a := f.ad.next(t); a.op != "answer" || a.text != "forbidden" {
		t.Fatalf("callback answer = %+v", a)
	}

	f.command(stranger, "/id")
	if c := f.ad.next(t); !strings.Contains(c.text, "2") || c.chatID != stranger {
		t.Fatalf("id reply = %+v", c)
	}
}

func TestAboutAndUnknownCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.press(stranger, menu.AboutData, nil)
	c := f.ad.next(t)
	if c.op != "edit" || !strings.Contains(c.text, "Git notifier") {
		t.Fatalf("about = %+v", c)
	}
	if kb := tokensOf(t, c); len(kb) != 1 || kb[0] != "ev:menu" {
		t.Fatalf("about keyboard = %v", kb)
	}
	f.ad.next(t) // answer

	f.command(owner, "/nope")
	if c := f.ad.next(t); !strings.Contains(c.text, "/help") {
		t.Fatalf("unknown reply = %q", c.text)
	}

	f.command(stranger, "/help")
	c = f.ad.next(t)
	if strings.Contains(c.text, "/audit") || !strings.Contains(c.text, "/start") {
		t.Fatalf("help for stranger = %q", c.text)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		word string
		args int
		ok   bool
	}{
		{"/start", "start", 0, true},
		{"/Audit@bot 5", "audit", 1, true},
		{"  /id  ", "id", 0, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
	}
	for _, tt := range tests {
		word, args, ok := parseCommand(tt.in)
		if word != tt.word || len(args) != tt.args || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = %q %v %v", tt.in, word, args, ok)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	got := menuCommands([]Command{
		{Name: "start", Description: "open"},
		{Name: "audit", Description: "recent", Access: AccessOwnerOnly},
		{Name: "start"},
		{Name: "re-load"},
	})
	if len(got) != 3 || got[1].Description != "🔒 recent" || got[2].Command != "re_load" {
		t.Fatalf("menuCommands = %+v", got)
	}
}

func TestMiddlewareStack(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	m := NewManager(logx.Nop(), ad, nil, nil)
	req := &Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb"}},
		Command: "cb:nav",
		Adapter: ad,
	}

	err := m.wrap(func(context.Context, *Request) error { panic("boom") }, 0)(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
	if c := ad.next(t); c.op != "answer" || c.text != "internal error" {
		t.Fatalf("panic answer = %+v", c)
	}

	var deadline bool
	_ = m.wrap(func(ctx context.Context, _ *Request) error {
		_, deadline = ctx.Deadline()
		return nil
	}, time.Second)(context.Background(), &Request{})
	if !deadline {
		t.Fatalf("timeout not applied")
	}
}

// failingLogChat refuses every message to the log chat.
type failingLogChat struct{ *fakeAdapter }

func (f failingLogChat) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.ChatID == logChat {
		return kit.MessageRef{}, errors.New("chat not found")
	}
	return f.fakeAdapter.SendText(ctx, to, text, opt)
}

func TestAccessDeniedSurvivesLogChatFailure(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	m := NewManager(logx.Nop(), failingLogChat{ad}, nil, []int64{owner})
	m.SetLogChat(kit.ChatTarget{ChatID: logChat})

	m.accessDenied(context.Background(), &kit.Message{ChatID: stranger, FromID: stranger, FromName: "Bob"}, "settings")
	if c := ad.next(t); c.chatID != stranger || !strings.Contains(c.text, "Access denied") {
		t.Fatalf("reply = %+v", c)
	}
	select {
	case c := <-ad.calls:
		t.Fatalf("unexpected call %+v", c)
	default:
	}
}

func TestMenuFailureWording(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) *settings.Store {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return settings.NewStore(p, logx.Nop())
	}
	gh := write("github.json", `{"push": true}`)
	gl := write("gitlab.json", `{"push": true}`)
	stores := catalog.Stores{catalog.GitHub: gh, catalog.GitLab: gl}
	menus := menu.NewBuilder(menu.DefaultConfig())

	cases := []struct {
		name  string
		store *settings.Store
		want  string
		avoid string
	}{
		{"not a boolean", write("odd.json", `{"isNotified": "yes", "notifyAllEvents": false}`), "Menu could not be rendered", "missing or damaged"},
		{"missing file", settings.NewStore(filepath.Join(dir, "absent.json"), logx.Nop()), "missing or damaged", "Menu could not be rendered"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ad := newFakeAdapter()
			h := &Handlers{Dispatch: dispatch.NewRouter(tc.store, stores, menus), Menus: menus}
			req := &Request{Chat: kit.ChatTarget{ChatID: owner}, FromID: owner, Adapter: ad}

			if err := h.screen(dispatch.SettingsState())(context.Background(), req); err == nil {
				t.Fatalf("expected render error")
			}
			c := ad.next(t)
			if !strings.Contains(c.text, tc.want) || strings.Contains(c.text, tc.avoid) {
				t.Fatalf("reply = %q", c.text)
			}
		})
	}
}
