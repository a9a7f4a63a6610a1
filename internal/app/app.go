package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"staffbot/internal/bot"
	"staffbot/internal/clock"
	"staffbot/internal/config"
	"staffbot/internal/eventbus"
	"staffbot/internal/notifier"
	"staffbot/internal/notifier/broadcast"
	"staffbot/internal/observability/metrics"
	"staffbot/internal/observability/server"
	"staffbot/internal/roster"
	"staffbot/internal/runtime/supervisor"
	"staffbot/internal/storage"
	"staffbot/internal/task/engine"
	"staffbot/internal/task/scheduler"
	kit "staffbot/internal/transport"
	telegram "staffbot/internal/transport/telegram/adapter"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/workflow/announce"
	"staffbot/internal/workflow/auth"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
	"staffbot/internal/workflow/news"
	logx "staffbot/pkg/logx"
)

// Scheduled job names.
const (
	JobDutyCheck   = duty.JobCheck
	JobDutyNotify  = duty.JobNotify
	JobChannelSync = "channel.sync"
)

const syncTimeout = 5 * time.Minute

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	roster  *roster.Cached
	adapter *telegram.Adapter
	notif   *notifier.Service
	bc      *broadcast.Service

	engine  *engine.Service
	sched   *scheduler.Service
	metrics *metrics.Registry
	ops     *server.Service

	roles   *router.Roles
	router  *router.Manager
	channel *channel.Reconciler
	duty    *duty.Scheduler

	updates chan kit.Update
}

// New loads the configuration and builds every component without starting
// any background work.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	closeOnErr := func(err error) (*App, error) {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	rost, staffFile, err := newRoster(cfg, log.With(logx.String("comp", "roster")))
	if err != nil {
		return closeOnErr(err)
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	bc := broadcast.New(mapBroadcastConfig(cfg), notif, nil, log)

	loc, err := loadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return closeOnErr(err)
	}
	clk := clock.Real()

	authWF := auth.New(auth.Deps{Store: store, Roster: rost, Messenger: notif, Admin: notif, Clock: clk, Bus: bus, Log: log})
	newsWF := news.New(news.Config{MinLength: cfg.News.MinLength, MaxPhotos: cfg.News.MaxPhotos},
		news.Deps{Store: store, Messenger: notif, Admin: notif, Clock: clk, Bus: bus, Log: log})
	dutySched := duty.New(duty.Deps{Store: store, Messenger: notif, Admin: notif, Clock: clk, Bus: bus, Log: log, Location: loc})
	reconciler := channel.New(channel.Deps{
		Store: store, Roster: rost, Messenger: notif, Admin: notif, Clock: clk, Bus: bus, Log: log,
		InviteLink: cfg.Telegram.InviteLink,
	})

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(loc, clk, eng, log)
	for _, j := range []struct {
		name, spec string
		timeout    time.Duration
		run        pass
	}{
		{JobDutyCheck, cfg.Schedule.DutyCheck, 0, dutyPass(dutySched.CheckPhase)},
		{JobDutyNotify, cfg.Schedule.DutyNotify, 0, dutyPass(dutySched.NotifyPhase)},
		{JobChannelSync, cfg.Schedule.ChannelSync, syncTimeout, syncPass(reconciler.Run)},
	} {
		if err := sched.Add(j.name, j.spec, j.timeout, withStatus(j.name, clk, j.run)); err != nil {
			return closeOnErr(fmt.Errorf("schedule.%s: %w", strings.ReplaceAll(j.name, ".", "_"), err))
		}
	}

	roles := router.NewRoles(store, cfg.Telegram.AdminID, 0)
	mgr := router.NewManager(router.Config{}, log.With(logx.String("comp", "router")), ad, roles)
	deps := bot.Deps{
		Store: store, Auth: authWF, News: newsWF, Duty: dutySched, Channel: reconciler,
		Announce: announce.New(announce.Deps{Store: store, Broadcaster: bc, Messenger: notif, Clock: clk, Log: log}),
		Jobs:     sched,
		Roles:    roles, Log: log,
	}
	if staffFile != nil {
		deps.Directory = staffFile
	}
	bot.New(deps).Register(mgr)

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		roster:  rost,
		adapter: ad,
		notif:   notif,
		bc:      bc,
		engine:  eng,
		sched:   sched,
		metrics: metrics.New(),
		roles:   roles,
		router:  mgr,
		channel: reconciler,
		duty:    dutySched,
		updates: make(chan kit.Update, 256),
	}
	a.ops = server.New(mapServerConfig(cfg), a.metrics.Handler(), a.health, log)
	return a, nil
}

// Done is closed when the app context is cancelled.
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
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return config.Validate(cfg) })

	c := a.sup.Context()
	a.sup.Go0("metrics.consume", func(ctx context.Context) { a.metrics.Consume(ctx, a.bus) })
	if err := a.ops.Start(c); err != nil {
		return fmt.Errorf("ops server: %w", err)
	}
	a.engine.Start(c)
	a.sched.Start(c)
	a.bc.Start(c)

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(ctx context.Context) error {
		return a.router.DispatchLoop(ctx, a.updates)
	})
	a.sup.Go0("router.menu", func(ctx context.Context) {
		if err := a.router.UpdateMenu(ctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		eventbus.Consume(ctx, a.bus, 128, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies what can change without a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	a.logs.Apply(mapLogConfig(next))
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid messaging config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.roles.SetAdmin(next.Telegram.AdminID)
	for _, s := range sections {
		switch s {
		case "storage", "schedule", "roster", "task_engine", "metrics", "news":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) health(ctx context.Context) (map[string]any, error) {
	v, err := a.store.SchemaVersion(ctx)
	out := map[string]any{
		"schema_version": v,
		"schema_latest":  storage.LatestSchemaVersion(),
		"engine":         a.engine.Snapshot(),
		"schedules":      a.sched.Schedules(),
		"roster_size":    a.roster.LastSize(),
		"supervisor":     a.sup.Counters(),
	}
	return out, err
}

// SyncChannel runs one reconciliation pass without polling for updates.
func (a *App) SyncChannel(ctx context.Context) (channel.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return a.channel.Run(ctx)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	a.logs.Close()
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
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

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("broadcast", 3*time.Second, func(c context.Context) error { a.bc.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// Migrate opens the configured store, which applies pending migrations,
// and reports the resulting schema version.
func Migrate(ctx context.Context, cfgPath string) (int, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return 0, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return 0, err
	}
	store, err := storage.Open(sc, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "storage")))
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.SchemaVersion(ctx)
}
