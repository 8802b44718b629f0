package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Settings points at the three editable JSON documents and carries the
	// menu presentation.
	Settings SettingsConfig `json:"settings"`

	Webhook  WebhookConfig   `json:"webhook"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives access-denied notices and, when
	// logging.telegram is enabled, warning logs.
	GroupLog string `json:"group_log"`
	// NotifyChatIDs receive webhook notifications. Empty means GroupLog.
	NotifyChatIDs []int64 `json:"notify_chat_ids,omitempty"`
	NotifyThread  int     `json:"notify_thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SettingsConfig locates the operator-editable documents. Missing files are
// seeded from the packaged defaults at startup.
//
// Defaults:
//   - settings_path: ./data/settings.json
//   - github_path:   ./data/github.json
//   - gitlab_path:   ./data/gitlab.json
type SettingsConfig struct {
	SettingsPath string     `json:"settings_path"`
	GitHubPath   string     `json:"github_path"`
	GitLabPath   string     `json:"gitlab_path"`
	Menu         MenuConfig `json:"menu"`
}

// MenuConfig overrides button presentation. Empty fields keep the built-in
// labels.
type MenuConfig struct {
	RowWidth     int    `json:"row_width,omitempty"`
	GlyphOn      string `json:"glyph_on,omitempty"`
	GlyphOff     string `json:"glyph_off,omitempty"`
	GlyphActions string `json:"glyph_actions,omitempty"`
	ContactURL   string `json:"contact_url,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	About        string `json:"about,omitempty"` // text shown by the About button
}

// WebhookConfig controls the HTTP intake.
//
// Example:
//
//	"webhook": { "enabled": true, "addr": ":8080", "throttle": 50 }
type WebhookConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default ":8080"
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty"`
	Throttle     int64  `json:"throttle,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	AccessLog    bool   `json:"access_log,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the optional persistence layer (audit trail and
// dedup keys).
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/gitnotify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// PruneSchedule is a cron spec for dropping expired dedup keys.
	// Default "@every 1h"; "off" disables pruning.
	PruneSchedule string `json:"prune_schedule,omitempty"`
}
