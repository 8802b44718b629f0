// Package menu turns catalog and settings state into button grids.
//
// A Grid is transport-neutral (label + callback data, or label + URL);
// Markup converts it into a Telegram inline keyboard.
package menu

import (
	"fmt"

	"gitnotify/internal/catalog"
	"gitnotify/internal/nav"
	"gitnotify/internal/settings"
	"gitnotify/pkg/tgui"

	tele "gopkg.in/telebot.v4"
)

// Button is one inline button. Empty Data and URL make it decorative.
type Button struct {
	Text string
	Data string
	URL  string
}

type Row []Button

type Grid []Row

// Tokens returns every callback data in g, row-major.
func (g Grid) Tokens() []string {
	var out []string
	for _, r := range g {
		for _, b := range r {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

// Markup renders g as a Telegram inline keyboard.
func (g Grid) Markup() *tele.ReplyMarkup {
	in := tgui.NewInline()
	for _, r := range g {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			switch {
			case b.URL != "":
				btns = append(btns, tgui.URLBtn(b.Text, b.URL))
			case b.Data != "":
				btns = append(btns, tgui.Btn(b.Text, b.Data))
			default:
				// Telegram rejects buttons without an action; a no-op
				// callback keeps decorative cells clickable but inert.
				btns = append(btns, tgui.Btn(b.Text, tgui.Data("noop", "", "")))
			}
		}
		in.Row(btns...)
	}
	return in.Markup()
}

// Config holds presentation constants. None of it is part of the token
// protocol.
type Config struct {
	RowWidth int

	GlyphActions string
	GlyphOn      string
	GlyphOff     string

	Back         string
	Home         string
	BackToMenu   string
	Notify       string
	AllEvents    string
	CustomGitHub string
	CustomGitLab string

	About      string
	Contact    string
	ContactURL string
	Source     string
	SourceURL  string
	Settings   string

	// Empty labels the placeholder shown by an event list with no events.
	Empty string
}

func DefaultConfig() Config {
	return Config{
		RowWidth:     2,
		GlyphActions: "⚙",
		GlyphOn:      "✅",
		GlyphOff:     "❌",
		Back:         "🔙 Back",
		Home:         "📚 Menu",
		BackToMenu:   "🔙 Back to menu",
		Notify:       "Allow notifications",
		AllEvents:    "Enable All Events Notify",
		CustomGitHub: "🦑 Custom github events",
		CustomGitLab: "🦊 Custom gitlab events",
		About:        "📰 About",
		Contact:      "📞 Contact",
		Source:       "💠 Source Code",
		Settings:     "⚙ Settings",
		Empty:        "No events",
	}
}

// AboutData is the callback of the main menu's About button. It is not a
// navigation token; the router answers it directly.
var AboutData = tgui.Data("app", "about", "")

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.RowWidth <= 0 {
		cfg.RowWidth = def.RowWidth
	}
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&cfg.GlyphActions, def.GlyphActions)
	fill(&cfg.GlyphOn, def.GlyphOn)
	fill(&cfg.GlyphOff, def.GlyphOff)
	fill(&cfg.Back, def.Back)
	fill(&cfg.Home, def.Home)
	fill(&cfg.BackToMenu, def.BackToMenu)
	fill(&cfg.Notify, def.Notify)
	fill(&cfg.AllEvents, def.AllEvents)
	fill(&cfg.CustomGitHub, def.CustomGitHub)
	fill(&cfg.CustomGitLab, def.CustomGitLab)
	fill(&cfg.About, def.About)
	fill(&cfg.Contact, def.Contact)
	fill(&cfg.Source, def.Source)
	fill(&cfg.Settings, def.Settings)
	fill(&cfg.Empty, def.Empty)
	return &Builder{cfg: cfg}
}

func (b *Builder) Config() Config { return b.cfg }

// EventList lists the events of c (parent == "") or the actions of parent,
// packed left to right into rows of RowWidth, followed by BackRow.
func (b *Builder) EventList(c *catalog.Catalog, parent string) (Grid, error) {
	entries, err := c.ListEvents(parent)
	if err != nil {
		return nil, err
	}
	p := c.Platform()

	btns := make([]Button, 0, len(entries))
	for _, e := range entries {
		var tok nav.Token
		switch {
		case parent != "":
			tok = nav.ToggleAction(p, parent, e.Name)
		case e.HasActions:
			tok = nav.MenuActions(p, e.Name)
		default:
			tok = nav.ToggleEvent(p, e.Name)
		}
		data, err := nav.Encode(tok)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", p, e.Name, err)
		}
		btns = append(btns, Button{Text: b.label(e), Data: data})
	}

	grid := pack(btns, b.cfg.RowWidth)
	if len(btns) == 0 && parent == "" {
		// The back row alone does not name the platform; this button does,
		// and pressing it just reopens the list.
		grid = append(grid, Row{{Text: b.cfg.Empty, Data: nav.MustEncode(nav.MenuRoot(p))}})
	}
	grid = append(grid, b.BackRow(p, parent))
	return grid, nil
}

func (b *Builder) label(e catalog.Entry) string {
	switch {
	case e.HasActions:
		return b.cfg.GlyphActions + " " + e.Name
	case e.Enabled:
		return b.cfg.GlyphOn + " " + e.Name
	default:
		return b.cfg.GlyphOff + " " + e.Name
	}
}

func pack(btns []Button, width int) Grid {
	grid := make(Grid, 0, (len(btns)+width-1)/width+1)
	for len(btns) > 0 {
		n := min(width, len(btns))
		grid = append(grid, append(Row(nil), btns[:n]...))
		btns = btns[n:]
	}
	return grid
}

// BackRow is the fixed two-button control row under every event list.
// Inside an action list "back" returns to the platform's events, otherwise
// to the settings menu. The second button always goes home.
func (b *Builder) BackRow(p catalog.Platform, parent string) Row {
	back := nav.BackToSettings()
	if parent != "" {
		back = nav.BackToEvents(p)
	}
	return Row{
		{Text: b.cfg.Back, Data: nav.MustEncode(back)},
		{Text: b.cfg.Home, Data: nav.MustEncode(nav.Home())},
	}
}

// SettingsMenu renders the global toggles. The per-platform entry points are
// only offered while "all events" is off.
func (b *Builder) SettingsMenu(doc *settings.Document) (Grid, error) {
	notified, err := doc.Bool(catalog.KeyNotified)
	if err != nil {
		return nil, err
	}
	all, err := doc.Bool(catalog.KeyAllEvents)
	if err != nil {
		return nil, err
	}

	grid := Grid{
		{{Text: b.toggleLabel(b.cfg.Notify, notified), Data: nav.MustEncode(nav.ToggleSetting(catalog.KeyNotified))}},
		{{Text: b.toggleLabel(b.cfg.AllEvents, all), Data: nav.MustEncode(nav.ToggleSetting(catalog.KeyAllEvents))}},
	}
	if !all {
		grid = append(grid, Row{
			{Text: b.cfg.CustomGitHub, Data: nav.MustEncode(nav.MenuRoot(catalog.GitHub))},
			{Text: b.cfg.CustomGitLab, Data: nav.MustEncode(nav.MenuRoot(catalog.GitLab))},
		})
	}
	grid = append(grid, Row{{Text: b.cfg.BackToMenu, Data: nav.MustEncode(nav.Home())}})
	return grid, nil
}

func (b *Builder) toggleLabel(text string, on bool) string {
	if on {
		return b.cfg.GlyphOn + " " + text
	}
	return text
}

// MainMenu is the landing keyboard of /start and /menu.
func (b *Builder) MainMenu() Grid {
	first := Row{{Text: b.cfg.About, Data: AboutData}}
	if b.cfg.ContactURL != "" {
		first = append(first, Button{Text: b.cfg.Contact, URL: b.cfg.ContactURL})
	}
	grid := Grid{
		first,
		{{Text: b.cfg.Settings, Data: nav.MustEncode(nav.BackToSettings())}},
	}
	if b.cfg.SourceURL != "" {
		grid = append(grid, Row{{Text: b.cfg.Source, URL: b.cfg.SourceURL}})
	}
	return grid
}
