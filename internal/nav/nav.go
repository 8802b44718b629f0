// Package nav encodes menu navigation into inline button callback data.
//
// Every token starts with "ev:". The rest is one of:
//
//	gh:                  events list of a platform ("gh" github, "gl" gitlab)
//	gh:#issues           action list of an event
//	gh:push!             toggle an event
//	gh:issues.opened!    toggle an action
//	back                 settings menu
//	back:gh              events list of a platform
//	menu                 main menu
//	set:isNotified       toggle a global setting
//
// Names are limited to [A-Za-z0-9_-] so '#', '.', '!' and ':' can't appear
// inside them. The whole token must fit Telegram's callback_data limit.
package nav

import (
	"errors"
	"fmt"
	"strings"

	"gitnotify/internal/catalog"
	"gitnotify/pkg/tgui"
)

const (
	Prefix = "ev:"

	actionSep = "#"
	updateSep = "!"
	pairSep   = "."

	backWord = "back"
	homeWord = "menu"
	setWord  = "set:"
)

var (
	// ErrNotOurs means the data doesn't carry Prefix; the router ignores it.
	ErrNotOurs = errors.New("nav: not a navigation token")
	// ErrTokenParse means the data carries Prefix but is malformed.
	ErrTokenParse = errors.New("nav: malformed navigation token")
	// ErrTokenTooLong means an encoded token would not fit in callback data.
	ErrTokenTooLong = fmt.Errorf("nav: token exceeds %d bytes: %w", tgui.MaxCallbackDataLen, tgui.ErrCallbackDataTooLong)
)

type Kind uint8

const (
	KindMenuRoot Kind = iota + 1
	KindMenuActions
	KindToggleEvent
	KindToggleAction
	KindBack
	KindToggleSetting
)

func (k Kind) String() string {
	switch k {
	case KindMenuRoot:
		return "menu_root"
	case KindMenuActions:
		return "menu_actions"
	case KindToggleEvent:
		return "toggle_event"
	case KindToggleAction:
		return "toggle_action"
	case KindBack:
		return "back"
	case KindToggleSetting:
		return "toggle_setting"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type BackTarget uint8

const (
	BackSettings BackTarget = iota + 1
	BackEvents
	BackHome
)

// Token is a decoded navigation token. Which fields are set depends on Kind.
type Token struct {
	Kind     Kind
	Platform catalog.Platform
	Event    string
	Action   string
	Back     BackTarget
	Setting  string
}

func MenuRoot(p catalog.Platform) Token { return Token{Kind: KindMenuRoot, Platform: p} }

func MenuActions(p catalog.Platform, event string) Token {
	return Token{Kind: KindMenuActions, Platform: p, Event: event}
}

func ToggleEvent(p catalog.Platform, event string) Token {
	return Token{Kind: KindToggleEvent, Platform: p, Event: event}
}

func ToggleAction(p catalog.Platform, event, action string) Token {
	return Token{Kind: KindToggleAction, Platform: p, Event: event, Action: action}
}

func BackToSettings() Token { return Token{Kind: KindBack, Back: BackSettings} }

func BackToEvents(p catalog.Platform) Token {
	return Token{Kind: KindBack, Back: BackEvents, Platform: p}
}

func Home() Token { return Token{Kind: KindBack, Back: BackHome} }

func ToggleSetting(key string) Token { return Token{Kind: KindToggleSetting, Setting: key} }

var platformCodes = map[catalog.Platform]string{
	catalog.GitHub: "gh",
	catalog.GitLab: "gl",
}

func platformCode(p catalog.Platform) (string, error) {
	c, ok := platformCodes[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", catalog.ErrUnknownPlatform, p)
	}
	return c, nil
}

func platformFromCode(code string) (catalog.Platform, bool) {
	for p, c := range platformCodes {
		if c == code {
			return p, true
		}
	}
	return "", false
}

func checkNames(names ...string) error {
	for _, n := range names {
		if !catalog.ValidName(n) {
			return fmt.Errorf("%w: %q", catalog.ErrInvalidName, n)
		}
	}
	return nil
}

// Encode renders t as callback data. It never truncates: a token that
// doesn't fit fails with ErrTokenTooLong.
func Encode(t Token) (string, error) {
	var b strings.Builder
	b.WriteString(Prefix)

	switch t.Kind {
	case KindBack:
		b.WriteString(backWord)
		switch t.Back {
		case BackSettings:
		case BackEvents:
			code, err := platformCode(t.Platform)
			if err != nil {
				return "", err
			}
			b.WriteString(":" + code)
		case BackHome:
			b.Reset()
			b.WriteString(Prefix + homeWord)
		default:
			return "", fmt.Errorf("%w: back target %d", ErrTokenParse, t.Back)
		}
	case KindToggleSetting:
		if err := checkNames(t.Setting); err != nil {
			return "", err
		}
		b.WriteString(setWord + t.Setting)
	case KindMenuRoot, KindMenuActions, KindToggleEvent, KindToggleAction:
		code, err := platformCode(t.Platform)
		if err != nil {
			return "", err
		}
		b.WriteString(code + ":")
		switch t.Kind {
		case KindMenuActions:
			if err := checkNames(t.Event); err != nil {
				return "", err
			}
			b.WriteString(actionSep + t.Event)
		case KindToggleEvent:
			if err := checkNames(t.Event); err != nil {
				return "", err
			}
			b.WriteString(t.Event + updateSep)
		case KindToggleAction:
			if err := checkNames(t.Event, t.Action); err != nil {
				return "", err
			}
			b.WriteString(t.Event + pairSep + t.Action + updateSep)
		}
	default:
		return "", fmt.Errorf("%w: kind %d", ErrTokenParse, t.Kind)
	}

	s := b.String()
	if len(s) > tgui.MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %q is %d bytes", ErrTokenTooLong, s, len(s))
	}
	return s, nil
}

// MustEncode is Encode for fixed tokens whose validity is known up front.
func MustEncode(t Token) string {
	s, err := Encode(t)
	if err != nil {
		panic(err)
	}
	return s
}

// IsOurs reports whether data belongs to this protocol.
func IsOurs(data string) bool { return strings.HasPrefix(data, Prefix) }

// Decode parses callback data. It never panics; foreign data yields
// ErrNotOurs and anything else that doesn't parse yields ErrTokenParse.
func Decode(data string) (Token, error) {
	if !IsOurs(data) {
		return Token{}, ErrNotOurs
	}
	if len(data) > tgui.MaxCallbackDataLen {
		return Token{}, fmt.Errorf("%w: %d bytes", ErrTokenParse, len(data))
	}
	rest := data[len(Prefix):]

	switch {
	case rest == backWord:
		return BackToSettings(), nil
	case rest == homeWord:
		return Home(), nil
	case strings.HasPrefix(rest, backWord+":"):
		p, ok := platformFromCode(rest[len(backWord)+1:])
		if !ok {
			return Token{}, parseErr(data)
		}
		return BackToEvents(p), nil
	case strings.HasPrefix(rest, setWord):
		key := rest[len(setWord):]
		if !catalog.ValidName(key) {
			return Token{}, parseErr(data)
		}
		return ToggleSetting(key), nil
	}

	code, body, ok := strings.Cut(rest, ":")
	if !ok {
		return Token{}, parseErr(data)
	}
	p, ok := platformFromCode(code)
	if !ok {
		return Token{}, parseErr(data)
	}

	switch {
	case body == "":
		return MenuRoot(p), nil
	case strings.HasPrefix(body, actionSep):
		ev := body[len(actionSep):]
		if !catalog.ValidName(ev) {
			return Token{}, parseErr(data)
		}
		return MenuActions(p, ev), nil
	case strings.HasSuffix(body, updateSep):
		body = strings.TrimSuffix(body, updateSep)
		ev, act, pair := strings.Cut(body, pairSep)
		if !pair {
			if !catalog.ValidName(ev) {
				return Token{}, parseErr(data)
			}
			return ToggleEvent(p, ev), nil
		}
		if !catalog.ValidName(ev) || !catalog.ValidName(act) {
			return Token{}, parseErr(data)
		}
		return ToggleAction(p, ev, act), nil
	}
	return Token{}, parseErr(data)
}

func parseErr(data string) error { return fmt.Errorf("%w: %q", ErrTokenParse, data) }
