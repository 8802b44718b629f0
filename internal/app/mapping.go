package app

import (
	"strings"
	"time"

	"gitnotify/internal/config"
	"gitnotify/internal/menu"
	"gitnotify/internal/notifier"
	"gitnotify/internal/storage"
	kit "gitnotify/internal/transport"
	"gitnotify/internal/webhook"
	logx "gitnotify/pkg/logx"
	"gitnotify/pkg/tgui"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := config.ParseChatID(cfg.Telegram.GroupLog)
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// logChat is where access-denied notices go; zero when unset.
func logChat(cfg *config.Config) kit.ChatTarget {
	chatID, _ := config.ParseChatID(cfg.Telegram.GroupLog)
	return kit.ChatTarget{ChatID: chatID, ThreadID: cfg.Logging.Telegram.ThreadID}
}

// notifyTargets lists the chats that receive webhook notifications, falling
// back to the log chat.
func notifyTargets(cfg *config.Config) []kit.ChatTarget {
	ids := cfg.Telegram.NotifyChatIDs
	if len(ids) == 0 {
		if lc := logChat(cfg); lc.ChatID != 0 {
			return []kit.ChatTarget{{ChatID: lc.ChatID, ThreadID: cfg.Telegram.NotifyThread}}
		}
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]kit.ChatTarget, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, kit.ChatTarget{ChatID: id, ThreadID: cfg.Telegram.NotifyThread})
	}
	return out
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool) {
	if cfg.Storage == nil {
		return storage.Config{}, false
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true
}

// mapNotifierConfig treats an omitted section as enabled with defaults.
func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true, DedupWindow: time.Minute}
	}
	send, _ := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	window, _ := config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, time.Minute)
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		SendTimeout:     send,
		DedupWindow:     window,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
}

func mapWebhookConfig(cfg *config.Config) webhook.Config {
	w := cfg.Webhook
	read, _ := config.ParseDurationField("webhook.read_timeout", w.ReadTimeout)
	write, _ := config.ParseDurationField("webhook.write_timeout", w.WriteTimeout)
	return webhook.Config{
		Addr:         w.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		MaxBodyBytes: w.MaxBodyBytes,
		Throttle:     w.Throttle,
		AccessLog:    w.AccessLog,
	}
}

func mapMenuConfig(cfg *config.Config) menu.Config {
	m := cfg.Settings.Menu
	mc := menu.DefaultConfig()
	if m.RowWidth > 0 {
		mc.RowWidth = m.RowWidth
	}
	if m.GlyphOn != "" {
		mc.GlyphOn = m.GlyphOn
	}
	if m.GlyphOff != "" {
		mc.GlyphOff = m.GlyphOff
	}
	if m.GlyphActions != "" {
		mc.GlyphActions = m.GlyphActions
	}
	mc.ContactURL = m.ContactURL
	mc.SourceURL = m.SourceURL
	return mc
}

func aboutText(cfg *config.Config, version string) tgui.H {
	if about := strings.TrimSpace(cfg.Settings.Menu.About); about != "" {
		return tgui.Esc(about)
	}
	return tgui.JoinH("\n",
		tgui.B("gitnotify "+version),
		tgui.Esc("Relays GitHub and GitLab webhook events to this chat. Use /settings to choose which events fire."),
	)
}
