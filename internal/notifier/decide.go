package notifier

import (
	"gitnotify/internal/catalog"
	"gitnotify/internal/settings"
)

// Decider answers "should this event be forwarded?" from stored settings.
type Decider struct {
	settings *settings.Store
	catalogs catalog.Stores
}

func NewDecider(st *settings.Store, catalogs catalog.Stores) *Decider {
	return &Decider{settings: st, catalogs: catalogs}
}

// Decide applies, in order: the global mute, the "all events" switch, then
// the platform catalog. An event with actions is decided by the action's own
// leaf; a missing action or an event the catalog doesn't list is skipped.
func (d *Decider) Decide(ev Event) (Decision, error) {
	var notified, all bool
	err := d.settings.Read(func(doc *settings.Document) error {
		var err error
		if notified, err = doc.Bool(catalog.KeyNotified); err != nil {
			return err
		}
		all, err = doc.Bool(catalog.KeyAllEvents)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !notified {
		return SkipMuted, nil
	}
	if all {
		return Send, nil
	}

	c, err := d.catalogs.Load(ev.Platform)
	if err != nil {
		return 0, err
	}
	enabled, known := c.Enabled(ev.Name, ev.Action)
	switch {
	case !known:
		return SkipUnknown, nil
	case !enabled:
		return SkipDisabled, nil
	}
	return Send, nil
}

// TemplatePath names the template for ev.
func TemplatePath(ev Event) string {
	action := ev.Action
	if action == "" {
		action = "default"
	}
	return "events." + string(ev.Platform) + "." + ev.Name + "." + action
}
