// Package router turns transport updates into command and callback handler
// calls: access checks, request-scoped logging, middleware and a bounded
// worker pool.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitnotify/internal/metrics"
	rtsup "gitnotify/internal/runtime/supervisor"
	kit "gitnotify/internal/transport"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a slash command. Name is matched without the leading "/" and
// without a "@botname" suffix.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles every callback whose data starts with
// "<Namespace>:". Callbacks are owner-only unless Access says otherwise.
type CallbackRoute struct {
	Namespace string
	Access    Access
	Timeout   time.Duration
	Handle    HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	// Callback only.
	Data      string
	Keyboard  []string
	MessageID int

	ReqID   string
	Adapter kit.Adapter
	Logger  logx.Logger

	answered bool
}

// Answer acknowledges the callback with an optional toast. Later calls are
// no-ops; the manager answers with an empty text when the handler didn't.
func (r *Request) Answer(ctx context.Context, text string) {
	if r.answered || r.Update.Callback == nil {
		return
	}
	r.answered = true
	_ = r.Adapter.AnswerCallback(ctx, r.Update.Callback.ID, text)
}

// Reply sends msg to the chat the request came from.
func (r *Request) Reply(ctx context.Context, msg tgui.Message) error {
	_, err := msg.Send(ctx, r.Adapter, r.Chat)
	return err
}

// Ref points at the message a callback was pressed on.
func (r *Request) Ref() kit.MessageRef {
	return kit.MessageRef{ChatID: r.Chat.ChatID, ThreadID: r.Chat.ThreadID, MessageID: r.MessageID}
}

type Manager struct {
	mu        sync.RWMutex
	commands  map[string]Command
	listing   []Command // registration order, for /help and the command menu
	callbacks map[string]CallbackRoute

	owners  []int64
	logChat kit.ChatTarget

	log     logx.Logger
	adapter kit.Adapter
	metrics *metrics.Metrics

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewManager(log logx.Logger, adapter kit.Adapter, m *metrics.Metrics, owners []int64) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		log:       log,
		adapter:   adapter,
		metrics:   m,
		jobs:      make(chan func(), 256),
	}
}

// Supervisor returns the worker pool's supervisor (nil if not running).
func (m *Manager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *Manager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue never blocks and survives a closed jobs channel.
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (m *Manager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

// SetLogChat sets where access-denied notices go; a zero ChatID disables them.
func (m *Manager) SetLogChat(to kit.ChatTarget) {
	m.mu.Lock()
	m.logChat = to
	m.mu.Unlock()
}

func (m *Manager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetRegistry installs commands and callback routes, adds /help, and
// publishes the command menu when the adapter supports it.
func (m *Manager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "show available commands",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, tgui.New().RawLine(m.helpText(m.isOwner(req.FromID))).Build())
		},
	})

	byName := map[string]Command{}
	listing := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				byName[a] = c
			}
		}
		listing = append(listing, c)
	}

	byNS := map[string]CallbackRoute{}
	for _, r := range cbs {
		ns := strings.TrimSpace(r.Namespace)
		if ns == "" || r.Handle == nil {
			continue
		}
		byNS[ns] = r
	}

	m.mu.Lock()
	m.commands = byName
	m.listing = listing
	m.callbacks = byNS
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := menuCommands(listing)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("command menu update failed", logx.Err(err))
			}
		}()
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(2, runtime.NumCPU())

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *Manager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func newReqID() string { return uuid.NewString()[:8] }

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, found := m.commands[word]
	m.mu.RUnlock()
	if !found {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	m.metrics.Command(cmd.Name)

	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		m.accessDenied(ctx, msg, cmd.Name)
		return
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	final := m.wrap(cmd.Handle, cmd.Timeout)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again", nil)
	}
}

// accessDenied tells the sender off and leaves a trace in the log chat.
func (m *Manager) accessDenied(ctx context.Context, msg *kit.Message, cmd string) {
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := tgui.New().
		Title("🚫", "Access denied").
		Line("You are not allowed to use this bot.").
		Build().Send(ctx, m.adapter, chat); err != nil {
		m.log.Warn("access denied reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}

	m.mu.RLock()
	logChat := m.logChat
	m.mu.RUnlock()
	m.log.Warn("access denied", logx.Int64("chat_id", msg.ChatID), logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd))
	if logChat.ChatID == 0 {
		return
	}
	who := msg.FromName
	if msg.FromUsername != "" {
		who += " (@" + msg.FromUsername + ")"
	}
	if _, err := tgui.New().
		Title("🚫", "Access denied").
		RawLine(tgui.JoinH(" ", tgui.Mention(strings.TrimSpace(who), msg.FromID), tgui.Esc("tried"), tgui.Code("/"+cmd)).String()).
		KV("Chat", strconv.FormatInt(msg.ChatID, 10)).
		Build().Send(ctx, m.adapter, logChat); err != nil {
		m.log.Warn("access denied notice failed", logx.Int64("log_chat", logChat.ChatID), logx.Err(err))
	}
}

func (m *Manager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	data := strings.TrimSpace(cb.Data)
	ns, _, _, ok := tgui.SplitData(data)
	if !ok {
		return
	}

	m.mu.RLock()
	route, found := m.callbacks[ns]
	m.mu.RUnlock()
	if !found {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if route.Access == AccessOwnerOnly && !m.isOwner(cb.FromID) {
		m.metrics.Callback("forbidden")
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:    up,
		Chat:      kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:    cb.FromID,
		Command:   "cb:" + ns,
		Data:      data,
		Keyboard:  cb.Keyboard,
		MessageID: cb.MessageID,
		ReqID:     rid,
		Adapter:   m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", "cb:"+ns),
		),
	}
	final := m.wrap(route.Handle, route.Timeout)
	if !m.tryEnqueue(func() {
		_ = final(ctx, req)
		// stop the client's loading spinner.
		req.Answer(ctx, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}
