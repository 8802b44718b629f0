// Package storage is the bot's small persistence layer:
//   - an audit trail of settings toggles
//   - webhook delivery dedup state, so redeliveries survive restarts
//
// Two drivers exist: "file" (JSON Lines + snapshot) and "sqlite".
package storage
