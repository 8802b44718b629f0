package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"gitnotify/internal/config"
	"gitnotify/internal/storage"
	logx "gitnotify/pkg/logx"
)

// cronLogger routes robfig/cron's logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn(msg, logx.Err(err), logx.Any("kv", kv))
}

// newPruner schedules PruneDedup on spec. It returns nil when pruning is
// off or there is no store.
func newPruner(spec string, st storage.Store, log logx.Logger) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if st == nil || spec == "" || strings.EqualFold(spec, "off") {
		return nil, nil
	}
	cl := cronLogger{log}
	c := cron.New(cron.WithParser(config.CronParser), cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() { pruneDedup(context.Background(), st, log) }); err != nil {
		return nil, fmt.Errorf("storage.prune_schedule: %w", err)
	}
	return c, nil
}

func pruneDedup(ctx context.Context, st storage.Store, log logx.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := st.PruneDedup(ctx, time.Now())
	if err != nil {
		log.Warn("dedup prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		log.Info("dedup keys pruned", logx.Int("count", n))
	}
}

// sdNotify reports state to systemd. Outside systemd it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured WatchdogSec until ctx is
// done. It returns immediately when the watchdog is not enabled.
func watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}
