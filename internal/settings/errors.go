package settings

import "errors"

var (
	// ErrStoreMissing means the backing file does not exist.
	ErrStoreMissing = errors.New("settings: store file missing")
	// ErrStoreCorrupt means the backing file is not a well-formed JSON object.
	ErrStoreCorrupt = errors.New("settings: store file corrupt")
	// ErrPathNotFound means a dotted path does not resolve to a boolean leaf
	// (absent, a group, or a non-boolean scalar).
	ErrPathNotFound = errors.New("settings: path not found")
)
