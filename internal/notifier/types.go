package notifier

import (
	"time"

	"gitnotify/internal/catalog"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Event is one parsed webhook delivery.
type Event struct {
	Platform   catalog.Platform
	Name       string // e.g. "pull_request", "merge_request"
	Action     string // "" when the event has none
	DeliveryID string

	Repository string
	Sender     string
	URL        string
	Title      string

	Payload []byte
}

// Decision is the outcome of Decider.Decide.
type Decision uint8

const (
	Send Decision = iota + 1
	SkipMuted
	SkipDisabled
	SkipUnknown
	SkipDuplicate
)

func (d Decision) String() string {
	switch d {
	case Send:
		return "send"
	case SkipMuted:
		return "muted"
	case SkipDisabled:
		return "disabled"
	case SkipUnknown:
		return "unknown"
	case SkipDuplicate:
		return "duplicate"
	}
	return "invalid"
}
