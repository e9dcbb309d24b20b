// Package app wires the pieces together: config, logging, the event
// bus, storage, the reminder scheduler, delivery, history, and the
// Telegram front end.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"lwbot/internal/bot"
	"lwbot/internal/config"
	"lwbot/internal/eventbus"
	"lwbot/internal/history"
	"lwbot/internal/nl"
	"lwbot/internal/notify"
	"lwbot/internal/reminder"
	"lwbot/internal/storage"
	"lwbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	sched  *reminder.Scheduler
	notify *notify.Service
	hist   *history.Service
	interp *nl.Interpreter
	tg     *bot.Service

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgMgr.SetLogger(log.With(logx.String("svc", "config")))
	cfgMgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return c.Validate()
	})

	a := &App{cfgMgr: cfgMgr, logSvc: logSvc, log: log}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	a.bus = eventbus.New()

	store, err := storage.Open(storageConfig(cfg), a.log.With(logx.String("svc", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	a.sched = reminder.New(
		reminder.Config{Location: cfg.Location()},
		clock.New(),
		nil, // notifier installed below
		a.log.With(logx.String("svc", "reminder")),
		a.bus,
	)

	a.interp = nl.New(nlConfig(cfg), a.log.With(logx.String("svc", "nl")))
	a.hist = history.New(historyConfig(cfg), store, a.bus, a.log.With(logx.String("svc", "history")))

	tg, err := bot.New(botConfig(cfg), a.sched, a.hist, a.interp, a.log.With(logx.String("svc", "bot")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.tg = tg

	// Delivery falls back to the bot itself, which closes the loop:
	// scheduler -> notifier -> telegram.
	a.notify = notify.New(notifyConfig(cfg), tg, a.log.With(logx.String("svc", "notify")), a.bus)
	a.sched.SetNotifier(a.notify)
	return nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	if err := a.hist.Start(runCtx); err != nil {
		cancel()
		return err
	}
	a.sched.Start(runCtx)
	if err := a.tg.Start(runCtx); err != nil {
		cancel()
		return err
	}

	go a.reloadLoop(runCtx)
	go func() {
		_ = a.cfgMgr.Watch(runCtx)
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	// Front end first so no new work arrives, then the engine, then the
	// observers behind it.
	if err := a.tg.Stop(ctx); err != nil {
		a.log.Warn("telegram stop", logx.Err(err))
	}
	a.sched.Stop(ctx)
	if err := a.hist.Stop(ctx); err != nil {
		a.log.Warn("history stop", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	if a.done != nil {
		select {
		case <-a.done:
		case <-ctx.Done():
		}
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}

// reloadLoop applies hot-reloadable settings when the config file
// changes. Storage driver and telegram token changes need a restart and
// are logged as such.
func (a *App) reloadLoop(ctx context.Context) {
	defer close(a.done)

	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)

	prev := a.cfgMgr.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeChange(prev, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append(attrs, logx.Any("sections", changed))...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logSvc.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
				case "webhook":
					a.notify.Apply(notifyConfig(cfg))
				case "nl":
					a.interp.Apply(nlConfig(cfg))
				case "telegram", "reminders":
					a.tg.Apply(botConfig(cfg))
				case "history":
					a.log.Warn("history settings changed; restart to apply")
				}
			}
			prev = cfg
		}
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.History == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	return storage.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
	}
}

func historyConfig(cfg *config.Config) history.Config {
	if cfg.History == nil {
		return history.Config{}
	}
	retention, _ := config.ParseDurationField("history.retention", cfg.History.Retention)
	return history.Config{
		Retention: retention,
		PruneSpec: cfg.History.PruneSpec,
	}
}

func notifyConfig(cfg *config.Config) notify.Config {
	timeout, _ := config.ParseDurationField("webhook.timeout", cfg.Webhook.Timeout)
	return notify.Config{
		WebhookURL: cfg.Webhook.URL,
		Timeout:    timeout,
		RatePerSec: cfg.Webhook.RatePerSec,
	}
}

func nlConfig(cfg *config.Config) nl.Config {
	if cfg.NL == nil {
		return nl.Config{}
	}
	timeout, _ := config.ParseDurationField("nl.timeout", cfg.NL.Timeout)
	return nl.Config{
		Enabled:  cfg.NL.Enabled,
		Endpoint: cfg.NL.Endpoint,
		APIKey:   cfg.NL.APIKey,
		Model:    cfg.NL.Model,
		Timeout:  timeout,
	}
}

func botConfig(cfg *config.Config) bot.Config {
	poll, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	return bot.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  poll,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		Location:     cfg.Location(),
	}
}
