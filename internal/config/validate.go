package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSettingsPath  = "./data/settings.json"
	DefaultGitHubPath    = "./data/github.json"
	DefaultGitLabPath    = "./data/gitlab.json"
	DefaultWebhookAddr   = ":8080"
	DefaultPruneSchedule = "@every 1h"
)

// CronParser accepts 5 or 6 field specs (optional seconds) and descriptors
// such as "@every 1h".
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ApplyDefaults fills omitted paths and addresses in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	fill := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	fill(&cfg.Settings.SettingsPath, DefaultSettingsPath)
	fill(&cfg.Settings.GitHubPath, DefaultGitHubPath)
	fill(&cfg.Settings.GitLabPath, DefaultGitLabPath)
	fill(&cfg.Webhook.Addr, DefaultWebhookAddr)
	if cfg.Storage != nil {
		fill(&cfg.Storage.PruneSchedule, DefaultPruneSchedule)
	}
}

// Validate checks values that would otherwise fail late at runtime. It
// returns every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token is empty (set it in the config or TELEGRAM_BOT_TOKEN)"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	if _, err := ParseChatID(cfg.Telegram.GroupLog); err != nil {
		add(fmt.Errorf("telegram.group_log: %w", err))
	}

	if cfg.Settings.Menu.RowWidth < 0 || cfg.Settings.Menu.RowWidth > 8 {
		add(fmt.Errorf("settings.menu.row_width must be between 1 and 8, got %d", cfg.Settings.Menu.RowWidth))
	}
	paths := map[string]string{}
	for key, p := range map[string]string{
		"settings.settings_path": cfg.Settings.SettingsPath,
		"settings.github_path":   cfg.Settings.GitHubPath,
		"settings.gitlab_path":   cfg.Settings.GitLabPath,
	} {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if other, ok := paths[p]; ok {
			add(fmt.Errorf("%s and %s point at the same file", other, key))
		}
		paths[p] = key
	}

	if cfg.Webhook.Enabled {
		_, err = ParseDurationField("webhook.read_timeout", cfg.Webhook.ReadTimeout)
		add(err)
		_, err = ParseDurationField("webhook.write_timeout", cfg.Webhook.WriteTimeout)
		add(err)
		if cfg.Webhook.MaxBodyBytes < 0 || cfg.Webhook.Throttle < 0 {
			add(errors.New("webhook.max_body_bytes and webhook.throttle must be >= 0"))
		}
	}

	if n := cfg.Notifier; n != nil {
		_, err = ParseDurationField("notifier.send_timeout", n.SendTimeout)
		add(err)
		_, err = ParseDurationField("notifier.dedup_window", n.DedupWindow)
		add(err)
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.DedupMaxEntries < 0 {
			add(errors.New("notifier: workers, queue_size, rate_per_sec and dedup_max_entries must be >= 0"))
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
			}
		default:
			add(fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
		if spec := strings.TrimSpace(s.PruneSchedule); spec != "" && !strings.EqualFold(spec, "off") {
			if _, err := CronParser.Parse(spec); err != nil {
				add(fmt.Errorf("storage.prune_schedule: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}

// ParseChatID parses a Telegram chat id. Empty input yields 0.
func ParseChatID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", raw)
	}
	return id, nil
}

// ParseDurationField parses a Go duration string. Empty input yields 0;
// negative values are rejected. key names the field in errors.
func ParseDurationField(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
