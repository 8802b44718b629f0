// Package adapter implements transport.Adapter on top of telebot long
// polling.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "gitnotify/internal/runtime/supervisor"
	kit "gitnotify/internal/transport"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// inbox hands updates to the current consumer without blocking the poller.
type inbox struct {
	mu      sync.RWMutex
	out     chan<- kit.Update
	dropped atomic.Uint64
}

func (in *inbox) attach(out chan<- kit.Update) {
	in.mu.Lock()
	in.out = out
	in.mu.Unlock()
}

func (in *inbox) push(up kit.Update) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.out == nil {
		return
	}
	select {
	case in.out <- up:
	default:
		in.dropped.Add(1)
	}
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot
	in  inbox

	mu  sync.Mutex
	sup *rtsup.Supervisor // non-nil while running

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log, bot: bot}
	bot.Handle(tele.OnText, a.onText)
	bot.Handle(tele.OnCallback, a.onCallback)
	return a, nil
}

// Supervisor returns the poller's supervisor, nil when stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sup
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	a.in.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		FromName:     strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName),
		Text:         m.Text,
		IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}})
	return nil
}

// onCallback forwards a button press together with the data of every button
// on the pressed message; the router infers the menu state from them.
func (a *Adapter) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Sender == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	m := cb.Message
	a.in.push(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID:        cb.ID,
		FromID:    cb.Sender.ID,
		ChatID:    m.Chat.ID,
		ThreadID:  m.ThreadID,
		MessageID: m.ID,
		Data:      cb.Data,
		Keyboard:  tgui.CallbackData(m.ReplyMarkup),
	}})
	return nil
}

// Start begins long polling and delivers updates to out. A second Start while
// running is a no-op.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.in.attach(out)
	// Polling trouble is logged and retried; it never stops the app.
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup = sup

	sup.Go0("telegram.dropped", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telegram.cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop; a return before that is restarted.
	sup.GoRestart0("telegram.poll", func(context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.in.dropped.Swap(0); n > 0 {
		a.log.Warn("updates dropped, consumer too slow", logx.Uint64("count", n), logx.Int("capacity", capacity))
	}
}

// Stop ends polling and waits up to two seconds, or until ctx is done.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	a.in.attach(nil)
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := sup.Wait(wctx)
	switch {
	case err == nil:
		a.log.Info("stopped")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("stop timed out", logx.Err(err))
	default:
		a.log.Debug("stopped with error", logx.Err(err))
	}
	return nil
}
