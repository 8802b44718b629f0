// Package dispatch drives the settings menus: it decodes a pressed button,
// applies the toggle it stands for, and renders the next screen.
package dispatch

import (
	"context"
	"errors"
	"time"

	"gitnotify/internal/catalog"
	"gitnotify/internal/menu"
	"gitnotify/internal/nav"
	"gitnotify/internal/settings"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

// Request is one button press.
type Request struct {
	State   State
	Data    string
	ActorID int64
	ChatID  int64
}

// Outcome is the screen to show next, plus what happened on the way.
type Outcome struct {
	State State
	Text  tgui.H
	Grid  menu.Grid

	// Ignored is set when Data wasn't a usable navigation token; the
	// current screen is rendered again.
	Ignored bool
	// Toggled is the dotted path a toggle addressed, "" when none.
	Toggled string
	// Failed is set when a toggle was attempted and did not stick.
	Failed bool
}

// ToggleRecord describes one attempted toggle.
type ToggleRecord struct {
	At       time.Time
	ActorID  int64
	ChatID   int64
	Scope    string // "settings" or a platform
	Path     string
	OK       bool
	Err      error
	Duration time.Duration
}

// Recorder is told about every toggle attempt (audit trail, metrics).
type Recorder interface {
	RecordToggle(ctx context.Context, rec ToggleRecord)
}

type Option func(*Router)

func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.rec = rec }
}

func WithLogger(log logx.Logger) Option {
	return func(r *Router) { r.log = log }
}

type Router struct {
	settings *settings.Store
	catalogs catalog.Stores
	menus    *menu.Builder
	rec      Recorder
	log      logx.Logger
}

func NewRouter(st *settings.Store, catalogs catalog.Stores, menus *menu.Builder, opts ...Option) *Router {
	r := &Router{settings: st, catalogs: catalogs, menus: menus}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.menus == nil {
		r.menus = menu.NewBuilder(menu.DefaultConfig())
	}
	return r
}

// IsFatal reports whether err must be shown to the operator instead of
// being absorbed by a re-render.
func IsFatal(err error) bool {
	return errors.Is(err, settings.ErrStoreMissing) || errors.Is(err, settings.ErrStoreCorrupt)
}

// Dispatch applies req and renders the resulting screen. Malformed or
// foreign data and toggles of paths that aren't boolean leaves re-render the
// current screen from storage. Only store-level failures (missing or corrupt
// file) are returned as errors.
func (r *Router) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	tok, err := nav.Decode(req.Data)
	if err != nil {
		if !errors.Is(err, nav.ErrNotOurs) {
			r.log.Debug("navigation token rejected", logx.String("data", req.Data), logx.Err(err))
		}
		out, rerr := r.Render(ctx, req.State)
		out.Ignored = true
		return out, rerr
	}

	next := req.State
	var (
		toggled string
		failed  bool
	)

	switch tok.Kind {
	case nav.KindBack:
		switch tok.Back {
		case nav.BackSettings:
			next = SettingsState()
		case nav.BackEvents:
			next = EventsState(tok.Platform)
		case nav.BackHome:
			next = RootState()
		}
	case nav.KindMenuRoot:
		next = EventsState(tok.Platform)
	case nav.KindMenuActions:
		next = ActionsState(tok.Platform, tok.Event)
	case nav.KindToggleEvent:
		next = EventsState(tok.Platform)
		toggled = tok.Event
		failed, err = r.toggleCatalog(ctx, req, tok.Platform, tok.Event, "")
	case nav.KindToggleAction:
		next = ActionsState(tok.Platform, tok.Event)
		toggled = tok.Event + "." + tok.Action
		failed, err = r.toggleCatalog(ctx, req, tok.Platform, tok.Event, tok.Action)
	case nav.KindToggleSetting:
		next = SettingsState()
		toggled = tok.Setting
		failed, err = r.toggleSetting(ctx, req, tok.Setting)
	}
	if err != nil {
		return Outcome{State: req.State, Toggled: toggled, Failed: true}, err
	}

	out, err := r.Render(ctx, next)
	out.Toggled = toggled
	out.Failed = failed
	return out, err
}

// toggleCatalog reports failed=true for a toggle that didn't stick but can be
// absorbed, and a non-nil error only when the store itself is unusable.
func (r *Router) toggleCatalog(ctx context.Context, req Request, p catalog.Platform, event, action string) (failed bool, err error) {
	start := time.Now()
	c, err := r.catalogs.Load(p)
	if err == nil {
		err = c.Toggle(event, action)
	}
	path := event
	if action != "" {
		path += "." + action
	}
	return r.settle(ctx, req, string(p), path, start, err)
}

func (r *Router) toggleSetting(ctx context.Context, req Request, key string) (failed bool, err error) {
	start := time.Now()
	_, err = r.settings.Mutate(key, nil)
	return r.settle(ctx, req, "settings", key, start, err)
}

func (r *Router) settle(ctx context.Context, req Request, scope, path string, start time.Time, err error) (bool, error) {
	if r.rec != nil {
		r.rec.RecordToggle(ctx, ToggleRecord{
			At:       start,
			ActorID:  req.ActorID,
			ChatID:   req.ChatID,
			Scope:    scope,
			Path:     path,
			OK:       err == nil,
			Err:      err,
			Duration: time.Since(start),
		})
	}
	if err == nil {
		r.log.Info("toggled", logx.String("scope", scope), logx.String("path", path), logx.Int64("actor", req.ActorID))
		return false, nil
	}
	if IsFatal(err) {
		r.log.Error("toggle failed, store unusable", logx.String("scope", scope), logx.String("path", path), logx.Err(err))
		return true, err
	}
	r.log.Warn("toggle rejected", logx.String("scope", scope), logx.String("path", path), logx.Err(err))
	return true, nil
}

// Render draws state from what is currently stored. An action list whose
// event has no actions falls back to the platform's event list.
func (r *Router) Render(_ context.Context, st State) (Outcome, error) {
	switch st.Kind {
	case SettingsMenu:
		var grid menu.Grid
		err := r.settings.Read(func(doc *settings.Document) error {
			g, err := r.menus.SettingsMenu(doc)
			grid = g
			return err
		})
		if err != nil {
			return Outcome{State: st}, err
		}
		return Outcome{State: st, Text: settingsText(), Grid: grid}, nil

	case EventsList, ActionsList:
		c, err := r.catalogs.Load(st.Platform)
		if err != nil {
			return Outcome{State: st}, err
		}
		grid, err := r.menus.EventList(c, st.Event)
		if err != nil && st.Kind == ActionsList && errors.Is(err, settings.ErrPathNotFound) {
			st = EventsState(st.Platform)
			grid, err = r.menus.EventList(c, "")
		}
		if err != nil {
			return Outcome{State: st}, err
		}
		return Outcome{State: st, Text: eventsText(st), Grid: grid}, nil
	}

	return Outcome{State: RootState(), Text: rootText(), Grid: r.menus.MainMenu()}, nil
}

func rootText() tgui.H {
	return tgui.JoinH("\n", tgui.B("Git notifier"), tgui.Esc("Choose an option below."))
}

func settingsText() tgui.H {
	return tgui.JoinH("\n", tgui.B("Settings"), tgui.Esc("Choose which notifications are forwarded to this chat."))
}

func eventsText(st State) tgui.H {
	if st.Kind == ActionsList {
		return tgui.JoinH("\n",
			tgui.B("Custom "+st.Platform.Title()+" events"),
			tgui.JoinH(" ", tgui.Esc("Actions of"), tgui.Code(st.Event)),
		)
	}
	return tgui.JoinH("\n",
		tgui.B("Custom "+st.Platform.Title()+" events"),
		tgui.Esc("Tap an event to switch it on or off, ⚙ opens its actions."),
	)
}
