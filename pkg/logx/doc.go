// Package logx configures gitnotify's structured logging.
//
// Logger is a thin wrapper over zerolog:
//   - console output with a short timestamp and file:line caller
//   - optional JSON file sink rotated by lumberjack
//   - optional Telegram sink for warnings, with a min level and a rate limit
//
// The zero Logger is a safe no-op. Loggers derived from a Service follow
// Service.Apply, so config reloads change level and sinks in place.
package logx
