// Package notifier turns accepted webhook events into chat messages.
//
// # Decision
//
// Decider reads the global settings ("isNotified", "notifyAllEvents") and the
// platform catalog under a shared lock and says whether an event should be
// forwarded. It never writes.
//
// # Rendering
//
// Message text comes from a Renderer keyed by a template path of the form
// "events.<platform>.<event>.<action|default>". Templating itself lives
// outside this package; the fallback renderer prints a short HTML summary.
//
// # Delivery
//
// Service is an async pipeline: bounded queue, worker pool, token-bucket
// rate limit, and dedup by webhook delivery id (optionally persisted through
// internal/storage so redeliveries after a restart are still dropped). Each
// target chat gets exactly one send attempt.
package notifier
