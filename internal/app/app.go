package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adhanbot/internal/commands"
	"adhanbot/internal/config"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/notifier"
	"adhanbot/internal/prayer"
	"adhanbot/internal/provider/aladhan"
	"adhanbot/internal/runtime/supervisor"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
	"adhanbot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	adapter  kit.Adapter
	provider *aladhan.Client
	notif    *notifier.Service
	reg      *scheduler.Registry
	router   *commands.Router
	handlers *commands.Handlers
	maint    *scheduler.Maintenance
	sd       *systemd.Notifier

	platform string
	updates  chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	ad, err := newAdapter(cfg, bootLog)
	if err != nil {
		return nil, err
	}

	// Bring logging up with the chat sink off, point it at the operator chat,
	// then enable it; Apply warns when the sink is enabled without a target.
	lc := logConfig(cfg)
	boot := lc
	boot.Chat.Enabled = false
	logSvc, log := logx.New(boot, ad)
	if target := logTarget(cfg); target != "" {
		logSvc.SetChatTarget(target, cfg.Logging.Chat.ThreadID)
	}
	logSvc.Apply(lc)

	bus := eventbus.New()

	store, err := openStore(cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	popt, err := providerOptions(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	provider := aladhan.New(popt, log)

	ncfg, err := notifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log, bus)

	scfg, err := schedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	reg := scheduler.NewRegistry(scfg, scheduler.Deps{
		Provider:  provider,
		Store:     store,
		Deliverer: notif,
		Bus:       bus,
		Log:       log,
	})

	workers, timeout, err := cfg.CommandSettings()
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	router := commands.NewRouter(commands.RouterConfig{Workers: workers, Timeout: timeout}, ad, log)
	handlers := &commands.Handlers{
		Store:         store,
		Loops:         reg,
		Timetable:     reg.Planner(),
		Locator:       provider,
		Platform:      ad.Name(),
		DefaultMethod: cfg.DefaultMethod(prayer.DefaultMethod),
		DefaultSchool: cfg.DefaultSchool(prayer.DefaultSchool),
	}

	return &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		provider: provider,
		notif:    notif,
		reg:      reg,
		router:   router,
		handlers: handlers,
		maint:    scheduler.NewMaintenance(log),
		sd:       systemd.New(cfg.Systemd.Notify),
		platform: cfg.PlatformName(),
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validateReload rejects reloads the running process cannot honor.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if p := cfg.PlatformName(); p != a.platform {
		return fmt.Errorf("platform: cannot switch from %s to %s without a restart", a.platform, p)
	}
	if _, err := schedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := notifierConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.router.SetRegistry(a.sup.Context(), a.handlers.Commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Dispatch(c, a.updates)
	})

	restored, err := a.reg.RestoreAll(a.sup.Context())
	if err != nil {
		a.log.Warn("loop restore incomplete", logx.Int("restored", restored), logx.Err(err))
	} else {
		a.log.Info("loops restored", logx.Int("restored", restored))
	}

	cfg := a.cfgm.Get()
	if err := a.maint.Add("registry.sweep", cfg.SweepSpec(), a.sweep); err != nil {
		return err
	}
	a.maint.Start()

	a.startEventLog()
	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if _, err := a.sd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	if cfg.Systemd.Watchdog {
		if iv := systemd.WatchdogInterval(); iv > 0 {
			a.sup.Go0("systemd.watchdog", func(c context.Context) {
				a.sd.RunWatchdog(c, iv, func() bool { return a.sup.Err() == nil })
			})
		}
	}

	a.log.Info("app started", logx.String("platform", a.platform))
	return nil
}

// sweep is the periodic housekeeping job.
func (a *App) sweep() {
	loops := a.reg.Sweep()
	keys := a.notif.Prune()
	a.log.Debug("sweep done",
		logx.Int("loops_removed", loops),
		logx.Int("dedup_pruned", keys),
		logx.Int("provider_cache", a.provider.CacheSize()),
	)
	_, _ = a.sd.Status(strconv.Itoa(len(a.reg.Snapshot())) + " loops active")
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("user", e.UserID), logx.Time("time", e.Time))
			}
		}
	})
}

func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

// applyConfig pushes the live-reloadable sections into running components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.SetChatTarget(logTarget(newCfg), newCfg.Logging.Chat.ThreadID)
	a.logs.Apply(logConfig(newCfg))

	if scfg, err := schedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.reg.Apply(scfg)
	}
	if ncfg, err := notifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.sd.Stopping()

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				max = min(max, time.Until(dl))
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			}()
		}
	}

	step("maintenance", time.Second, a.maint.Stop)
	// Loops are cancelled without touching their persisted flags so the next
	// start restores them.
	step("scheduler", 3*time.Second, a.reg.Shutdown)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
