package tgui

import "errors"

const (
	// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
	MaxCallbackDataLen = 64
	// MaxMessageLen is Telegram's text limit per message, in UTF-16 units;
	// callers treat it as a rune budget.
	MaxMessageLen = 4096
)

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
