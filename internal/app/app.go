package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"gitnotify/internal/config"
	"gitnotify/internal/dispatch"
	"gitnotify/internal/menu"
	"gitnotify/internal/metrics"
	"gitnotify/internal/notifier"
	rtsup "gitnotify/internal/runtime/supervisor"
	"gitnotify/internal/storage"
	kit "gitnotify/internal/transport"
	telegram "gitnotify/internal/transport/telegram/adapter"
	"gitnotify/internal/transport/telegram/router"
	"gitnotify/internal/webhook"
	logx "gitnotify/pkg/logx"
)

type Options struct {
	Version string
	// Overlay runs on every parsed config before defaults and validation,
	// e.g. to take the bot token from the environment.
	Overlay func(cfg *config.Config)
}

type App struct {
	version string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	store   storage.Store
	metrics *metrics.Metrics

	adapter *telegram.Adapter
	cmdm    *router.Manager
	notif   *notifier.Service
	hooks   *webhook.Server // nil when the webhook intake is disabled
	pruner  *cron.Cron      // nil when pruning is off

	updates chan kit.Update
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetOverlay(func(c *config.Config) {
		if opts.Overlay != nil {
			opts.Overlay(c)
		}
		config.ApplyDefaults(c)
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The Telegram sink gets its sender once the adapter exists.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	log = log.With(logx.String("comp", "app"))

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(ad)

	var store storage.Store
	if sc, enabled := mapStorageConfig(cfg); enabled {
		store, err = storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	docs, err := openDocuments(cfg, logSvc.Logger())
	if err != nil {
		closeStore(store)
		return nil, err
	}

	m := metrics.New(opts.Version)
	menus := menu.NewBuilder(mapMenuConfig(cfg))
	disp := dispatch.NewRouter(docs.settings, docs.catalogs, menus,
		dispatch.WithRecorder(router.AuditRecorder{
			Store:   store,
			Metrics: m,
			Log:     logSvc.Logger().With(logx.String("comp", "audit")),
		}),
		dispatch.WithLogger(logSvc.Logger().With(logx.String("comp", "dispatch"))),
	)

	cmdm := router.NewManager(logSvc.Logger().With(logx.String("comp", "commands")), ad, m, cfg.Telegram.OwnerUserIDs)
	cmdm.SetLogChat(logChat(cfg))
	h := &router.Handlers{
		Dispatch: disp,
		Menus:    menus,
		Store:    store,
		Metrics:  m,
		About:    aboutText(cfg, opts.Version),
	}
	cmdm.SetRegistry(h.Commands(), h.Callbacks())

	notif := notifier.New(mapNotifierConfig(cfg), notifier.Deps{
		Adapter: ad,
		Decider: notifier.NewDecider(docs.settings, docs.catalogs),
		Store:   store,
		Metrics: m,
		Log:     logSvc.Logger().With(logx.String("comp", "notifier")),
	})
	notif.SetTargets(notifyTargets(cfg))

	var hooks *webhook.Server
	if cfg.Webhook.Enabled {
		hooks = webhook.New(mapWebhookConfig(cfg), notif, m, logSvc.Logger().With(logx.String("comp", "webhook")), opts.Version)
	}

	var pruneSpec string
	if cfg.Storage != nil {
		pruneSpec = cfg.Storage.PruneSchedule
	}
	pruner, err := newPruner(pruneSpec, store, logSvc.Logger().With(logx.String("comp", "prune")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	m.Goroutines("telegram.adapter", func() int64 { return ad.Supervisor().Counters().Active })
	m.Goroutines("commands", func() int64 { return cmdm.Supervisor().Counters().Active })
	m.Goroutines("notifier", func() int64 { return notif.Supervisor().Counters().Active })

	return &App{
		version: opts.Version,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		metrics: m,
		adapter: ad,
		cmdm:    cmdm,
		notif:   notif,
		hooks:   hooks,
		pruner:  pruner,
		updates: make(chan kit.Update, 256),
	}, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	if a.hooks != nil {
		a.sup.Go("webhook.server", a.hooks.Run)
	}
	if a.pruner != nil {
		a.pruner.Start()
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				cfg = latest(sub, cfg)
				a.applyConfig(c, last, cfg)
				last = cfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("version", a.version), logx.Bool("webhook", a.hooks != nil))
	return nil
}

// latest drains queued configs and keeps the newest.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	if prev != nil && prev.Telegram.Token != cfg.Telegram.Token {
		a.log.Warn("telegram.token changed; restart required")
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetLogChat(logChat(cfg))

	wasEnabled := a.notif.Enabled()
	ncfg := mapNotifierConfig(cfg)
	switch {
	case wasEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
		a.notif.Apply(ncfg)
	case !wasEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Apply(ncfg)
		a.notif.Start(ctx)
	default:
		a.notif.Apply(ncfg)
	}
	a.notif.SetTargets(notifyTargets(cfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	if a.pruner != nil {
		a.step(ctx, "prune", time.Second, func(c context.Context) error {
			select {
			case <-a.pruner.Stop().Done():
			case <-c.Done():
			}
			return nil
		})
	}
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline. A
// step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
