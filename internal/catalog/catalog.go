// Package catalog exposes the per-platform event catalogs (which webhook
// events and actions exist, and whether each one is enabled) on top of a
// settings store.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"regexp"

	"gitnotify/internal/settings"
)

type Platform string

const (
	GitHub Platform = "github"
	GitLab Platform = "gitlab"
)

// Platforms returns the supported platforms in menu order.
func Platforms() []Platform { return []Platform{GitHub, GitLab} }

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case GitHub, GitLab:
		return Platform(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

func (p Platform) Title() string {
	switch p {
	case GitHub:
		return "GitHub"
	case GitLab:
		return "GitLab"
	}
	return string(p)
}

// Keys of the global settings document.
const (
	KeyNotified  = "isNotified"
	KeyAllEvents = "notifyAllEvents"
)

var (
	ErrUnknownPlatform = errors.New("catalog: unknown platform")
	ErrInvalidName     = errors.New("catalog: invalid event or action name")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether an event or action name can travel inside a
// navigation token.
func ValidName(name string) bool { return nameRe.MatchString(name) }

//go:embed defaults/*.json
var defaultsFS embed.FS

// Defaults returns the packaged catalog for p.
func Defaults(p Platform) ([]byte, error) {
	if _, err := ParsePlatform(string(p)); err != nil {
		return nil, err
	}
	return defaultsFS.ReadFile("defaults/" + string(p) + ".json")
}

// DefaultSettings returns the packaged global settings document.
func DefaultSettings() []byte {
	b, _ := defaultsFS.ReadFile("defaults/settings.json")
	return b
}

// Entry is one row of an event or action listing.
type Entry struct {
	Name       string
	HasActions bool
	Enabled    bool
}

// Catalog is a loaded snapshot of one platform's events. Toggle refreshes
// the snapshot from what was actually persisted.
type Catalog struct {
	platform Platform
	store    *settings.Store
	doc      *settings.Document
}

// Load reads the catalog for platform from store and checks every name.
func Load(store *settings.Store, platform Platform) (*Catalog, error) {
	if _, err := ParsePlatform(string(platform)); err != nil {
		return nil, err
	}
	var doc *settings.Document
	err := store.Read(func(d *settings.Document) error {
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := validate(doc.Root()); err != nil {
		return nil, fmt.Errorf("%s catalog: %w", platform, err)
	}
	return &Catalog{platform: platform, store: store, doc: doc}, nil
}

func validate(root *settings.Node) error {
	for _, ev := range root.Keys() {
		if !ValidName(ev) {
			return fmt.Errorf("%w: %q", ErrInvalidName, ev)
		}
		n, _ := root.Child(ev)
		for _, act := range n.Keys() {
			if !ValidName(act) {
				return fmt.Errorf("%w: %q under %q", ErrInvalidName, act, ev)
			}
		}
	}
	return nil
}

func (c *Catalog) Platform() Platform { return c.platform }

// IsActionParent reports whether event is a group of actions rather than a
// plain toggle.
func (c *Catalog) IsActionParent(event string) bool {
	n, ok := c.doc.Root().Child(event)
	return ok && n.IsGroup()
}

// ListEvents lists top-level events (parent == "") or the actions of parent,
// in catalog order. Entries that are neither booleans nor groups are skipped.
func (c *Catalog) ListEvents(parent string) ([]Entry, error) {
	node := c.doc.Root()
	if parent != "" {
		n, ok := node.Child(parent)
		if !ok || !n.IsGroup() {
			return nil, fmt.Errorf("%w: %s has no actions", settings.ErrPathNotFound, parent)
		}
		node = n
	}
	keys := node.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		n, _ := node.Child(k)
		switch {
		case n.IsGroup():
			out = append(out, Entry{Name: k, HasActions: true})
		case n.IsBool():
			out = append(out, Entry{Name: k, Enabled: n.BoolValue()})
		}
	}
	return out, nil
}

// Toggle flips event (action == "") or event.action. An action parent can't
// be toggled as a whole and fails with settings.ErrPathNotFound.
func (c *Catalog) Toggle(event, action string) error {
	path := event
	if action != "" {
		path = event + "." + action
	}
	doc, err := c.store.Mutate(path, nil)
	if doc != nil {
		c.doc = doc
	}
	return err
}

// Enabled reports whether notifications for event/action are switched on.
// known is false when the catalog has no such entry.
func (c *Catalog) Enabled(event, action string) (enabled, known bool) {
	n, ok := c.doc.Root().Child(event)
	if !ok {
		return false, false
	}
	if n.IsBool() {
		return n.BoolValue(), true
	}
	if !n.IsGroup() || action == "" {
		return false, n.IsGroup()
	}
	a, ok := n.Child(action)
	if !ok || !a.IsBool() {
		return false, false
	}
	return a.BoolValue(), true
}

// Stores maps each platform to the store holding its catalog.
type Stores map[Platform]*settings.Store

func (s Stores) Load(p Platform) (*Catalog, error) {
	st, ok := s[p]
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	return Load(st, p)
}
