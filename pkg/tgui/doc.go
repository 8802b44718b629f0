// Package tgui holds the small Telegram UI helpers gitnotify renders with:
// inline keyboards, "namespace:action:payload" callback data, HTML-safe text
// and a message builder that defaults to ParseMode=HTML.
package tgui
