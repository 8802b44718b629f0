package menu

import (
	"os"
	"path/filepath"
	"testing"

	"gitnotify/internal/catalog"
	"gitnotify/internal/nav"
	"gitnotify/internal/settings"
	logx "gitnotify/pkg/logx"
)

func loadCatalog(t *testing.T, p catalog.Platform, content string) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), string(p)+".json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := catalog.Load(settings.NewStore(path, logx.Nop()), p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestEventListPacksRows(t *testing.T) {
	t.Parallel()

	c := loadCatalog(t, catalog.GitHub, `{
		"push": true,
		"issues": {"opened": false},
		"fork": false,
		"star": true,
		"release": {"published": true}
	}`)
	b := NewBuilder(Config{})
	grid, err := b.EventList(c, "")
	if err != nil {
		t.Fatalf("EventList: %v", err)
	}
	if len(grid) != 4 {
		t.Fatalf("rows = %d, want 3 + back row", len(grid))
	}
	for i, want := range []int{2, 2, 1, 2} {
		if len(grid[i]) != want {
			t.Fatalf("row %d has %d buttons, want %d", i, len(grid[i]), want)
		}
	}

	want := []Button{
		{Text: "✅ push", Data: "ev:gh:push!"},
		{Text: "⚙ issues", Data: "ev:gh:#issues"},
		{Text: "❌ fork", Data: "ev:gh:fork!"},
		{Text: "✅ star", Data: "ev:gh:star!"},
		{Text: "⚙ release", Data: "ev:gh:#release"},
	}
	var got []Button
	for _, r := range grid[:3] {
		got = append(got, r...)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("button %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	back := grid[3]
	if back[0].Data != "ev:back" || back[1].Data != "ev:menu" {
		t.Fatalf("back row = %+v", back)
	}
}

func TestEmptyEventListShowsPlaceholder(t *testing.T) {
	t.Parallel()

	c := loadCatalog(t, catalog.GitHub, `{}`)
	grid, err := NewBuilder(Config{}).EventList(c, "")
	if err != nil {
		t.Fatalf("EventList: %v", err)
	}
	if len(grid) != 2 {
		t.Fatalf("grid = %+v", grid)
	}
	if grid[0][0] != (Button{Text: "No events", Data: nav.MustEncode(nav.MenuRoot(catalog.GitHub))}) {
		t.Fatalf("placeholder = %+v", grid[0][0])
	}
	if grid[1][0].Data != "ev:back" || grid[1][1].Data != "ev:menu" {
		t.Fatalf("back row = %+v", grid[1])
	}
}

func TestActionListBacksToEvents(t *testing.T) {
	t.Parallel()

	c := loadCatalog(t, catalog.GitLab, `{"merge_request": {"open": true, "close": false, "merge": true}}`)
	grid, err := NewBuilder(Config{RowWidth: 3}).EventList(c, "merge_request")
	if err != nil {
		t.Fatalf("EventList: %v", err)
	}
	if len(grid) != 2 || len(grid[0]) != 3 {
		t.Fatalf("grid shape = %v", grid)
	}
	if grid[0][1] != (Button{Text: "❌ close", Data: "ev:gl:merge_request.close!"}) {
		t.Fatalf("button = %+v", grid[0][1])
	}
	if grid[1][0].Data != "ev:back:gl" || grid[1][1].Data != "ev:menu" || len(grid[1]) != 2 {
		t.Fatalf("back row = %+v", grid[1])
	}
}

func TestSettingsMenu(t *testing.T) {
	t.Parallel()

	b := NewBuilder(DefaultConfig())
	cases := []struct {
		name     string
		doc      string
		rows     int
		notify   string
		hasLinks bool
	}{
		{"custom", `{"isNotified": true, "notifyAllEvents": false}`, 4, "✅ Allow notifications", true},
		{"all events", `{"isNotified": false, "notifyAllEvents": true}`, 3, "Allow notifications", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := settings.Parse([]byte(tc.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			grid, err := b.SettingsMenu(doc)
			if err != nil {
				t.Fatalf("SettingsMenu: %v", err)
			}
			if len(grid) != tc.rows {
				t.Fatalf("rows = %d, want %d", len(grid), tc.rows)
			}
			if grid[0][0].Text != tc.notify || grid[0][0].Data != "ev:set:isNotified" {
				t.Fatalf("notify button = %+v", grid[0][0])
			}
			if tc.hasLinks && (grid[2][0].Data != "ev:gh:" || grid[2][1].Data != "ev:gl:") {
				t.Fatalf("platform row = %+v", grid[2])
			}
			last := grid[len(grid)-1]
			if len(last) != 1 || last[0].Data != "ev:menu" {
				t.Fatalf("last row = %+v", last)
			}
		})
	}

	broken, _ := settings.Parse([]byte(`{"isNotified": true}`))
	if _, err := b.SettingsMenu(broken); err == nil {
		t.Fatalf("expected error for missing notifyAllEvents")
	}
}

func TestMainMenuAndMarkup(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SourceURL = "https://example.org/gitnotify"
	grid := NewBuilder(cfg).MainMenu()
	if len(grid) != 3 {
		t.Fatalf("rows = %d", len(grid))
	}
	if grid[0][0].Data != AboutData {
		t.Fatalf("about = %+v", grid[0][0])
	}
	if _, err := nav.Decode(grid[1][0].Data); err != nil {
		t.Fatalf("settings button token: %v", err)
	}

	rm := grid.Markup()
	if len(rm.InlineKeyboard) != 3 {
		t.Fatalf("markup rows = %d", len(rm.InlineKeyboard))
	}
	if rm.InlineKeyboard[2][0].URL != cfg.SourceURL {
		t.Fatalf("source button = %+v", rm.InlineKeyboard[2][0])
	}
	if got := grid.Tokens(); len(got) != 2 {
		t.Fatalf("tokens = %v", got)
	}
}
