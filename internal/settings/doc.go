// Package settings persists the bot's toggle documents.
//
// A document is a JSON object whose entries are either boolean leaves or
// nested groups. The store never invents keys: it only flips or overwrites
// leaves that already exist, and every mutation is flushed to disk (temp file
// + rename) before it is considered committed.
//
// Key order from the file is kept, because menus are rendered in that order.
package settings
