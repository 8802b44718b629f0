package dispatch

import (
	"fmt"

	"gitnotify/internal/catalog"
	"gitnotify/internal/nav"
)

type StateKind uint8

const (
	Root StateKind = iota
	SettingsMenu
	EventsList
	ActionsList
)

// State is where the operator is in the menu tree.
type State struct {
	Kind     StateKind
	Platform catalog.Platform
	Event    string
}

func RootState() State { return State{Kind: Root} }

func SettingsState() State { return State{Kind: SettingsMenu} }

func EventsState(p catalog.Platform) State { return State{Kind: EventsList, Platform: p} }

func ActionsState(p catalog.Platform, event string) State {
	return State{Kind: ActionsList, Platform: p, Event: event}
}

func (s State) String() string {
	switch s.Kind {
	case Root:
		return "root"
	case SettingsMenu:
		return "settings"
	case EventsList:
		return fmt.Sprintf("events(%s)", s.Platform)
	case ActionsList:
		return fmt.Sprintf("actions(%s,%s)", s.Platform, s.Event)
	}
	return fmt.Sprintf("state(%d)", s.Kind)
}

// InferState recovers the screen a keyboard belongs to from its callback
// data. Every screen carries at least one token that pins it down, so no
// navigation state needs to live on the server.
func InferState(tokens []string) State {
	var (
		events   catalog.Platform
		settings bool
		backTo   catalog.Platform
		opened   catalog.Platform
	)
	for _, data := range tokens {
		tok, err := nav.Decode(data)
		if err != nil {
			continue
		}
		switch tok.Kind {
		case nav.KindToggleAction:
			return ActionsState(tok.Platform, tok.Event)
		case nav.KindToggleEvent, nav.KindMenuActions:
			events = tok.Platform
		case nav.KindToggleSetting:
			settings = true
		case nav.KindMenuRoot:
			opened = tok.Platform
		case nav.KindBack:
			if tok.Back == nav.BackEvents {
				backTo = tok.Platform
			}
		}
	}
	switch {
	case events != "":
		return EventsState(events)
	case backTo != "":
		// An action list with no actions only has its back row left.
		return EventsState(backTo)
	case settings:
		return SettingsState()
	case opened != "":
		// An empty events list keeps a button that reopens itself.
		return EventsState(opened)
	}
	return RootState()
}
