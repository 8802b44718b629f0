package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gitnotify/internal/settings"
	logx "gitnotify/pkg/logx"
)

func newStore(t *testing.T, content string) *settings.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return settings.NewStore(path, logx.Nop())
}

const small = `{
    "push": true,
    "issues": {"opened": false, "closed": true},
    "fork": false
}`

func TestListEventsInCatalogOrder(t *testing.T) {
	t.Parallel()

	c, err := Load(newStore(t, small), GitHub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := c.ListEvents("")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []Entry{
		{Name: "push", Enabled: true},
		{Name: "issues", HasActions: true},
		{Name: "fork"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	acts, err := c.ListEvents("issues")
	if err != nil {
		t.Fatalf("ListEvents(issues): %v", err)
	}
	if len(acts) != 2 || acts[0].Name != "opened" || acts[1].Name != "closed" || !acts[1].Enabled {
		t.Fatalf("actions = %+v", acts)
	}

	if _, err := c.ListEvents("push"); !errors.Is(err, settings.ErrPathNotFound) {
		t.Fatalf("ListEvents(push) err = %v", err)
	}
}

func TestToggleAndReload(t *testing.T) {
	t.Parallel()

	st := newStore(t, small)
	c, err := Load(st, GitHub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.IsActionParent("issues") || c.IsActionParent("push") || c.IsActionParent("nope") {
		t.Fatalf("IsActionParent misclassified")
	}

	if err := c.Toggle("push", ""); err != nil {
		t.Fatalf("Toggle(push): %v", err)
	}
	if err := c.Toggle("issues", "opened"); err != nil {
		t.Fatalf("Toggle(issues.opened): %v", err)
	}
	if err := c.Toggle("issues", ""); !errors.Is(err, settings.ErrPathNotFound) {
		t.Fatalf("Toggle(issues) err = %v, want ErrPathNotFound", err)
	}

	fresh, err := Load(st, GitHub)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cases := []struct {
		event, action string
		enabled, known bool
	}{
		{"push", "", false, true},
		{"issues", "opened", true, true},
		{"issues", "closed", true, true},
		{"issues", "", false, true},
		{"issues", "labeled", false, false},
		{"release", "", false, false},
	}
	for _, tc := range cases {
		en, known := fresh.Enabled(tc.event, tc.action)
		if en != tc.enabled || known != tc.known {
			t.Fatalf("Enabled(%q,%q) = %v,%v want %v,%v", tc.event, tc.action, en, known, tc.enabled, tc.known)
		}
	}
}

func TestLoadRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	_, err := Load(newStore(t, `{"push": true, "bad.name": false}`), GitLab)
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
	_, err = Load(newStore(t, `{"issues": {"has space": true}}`), GitLab)
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestPackagedDefaultsLoad(t *testing.T) {
	t.Parallel()

	for _, p := range Platforms() {
		data, err := Defaults(p)
		if err != nil {
			t.Fatalf("Defaults(%s): %v", p, err)
		}
		c, err := Load(newStore(t, string(data)), p)
		if err != nil {
			t.Fatalf("Load(%s defaults): %v", p, err)
		}
		if evs, _ := c.ListEvents(""); len(evs) == 0 {
			t.Fatalf("%s defaults are empty", p)
		}
	}
	doc, err := settings.Parse(DefaultSettings())
	if err != nil {
		t.Fatalf("default settings: %v", err)
	}
	for _, k := range []string{KeyNotified, KeyAllEvents} {
		if _, err := doc.Bool(k); err != nil {
			t.Fatalf("default settings missing %s: %v", k, err)
		}
	}
	if _, err := Defaults("bitbucket"); !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("Defaults(bitbucket) err = %v", err)
	}
}
