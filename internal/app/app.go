package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/broker"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/config"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/httpapi"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/runtime/supervisor"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/scheduler"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/trigger"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopOnceDone   StopReason = "once_done"
)

// App owns every goroutine of the notifyd process. The notify and trigger
// packages it wires are goroutine-free.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	notif  *notify.Service
	legacy *notify.Legacy
	engine *trigger.Engine
	sched  *scheduler.Service
	http   *httpapi.Server

	realtime *broker.Realtime
	redis    *broker.RedisPublisher
	mailq    *broker.MailQ
	amqp     *broker.AMQPPublisher
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.Component("app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

// validate runs the structural checks plus the mappings Start depends on.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapRules(cfg); err != nil {
		return err
	}
	if _, err := mapJobs(cfg); err != nil {
		return err
	}
	_, err := mapHTTPConfig(cfg)
	return err
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, log.With(logx.Component("storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = st
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	a.notif, err = notify.New(st, mapDefaults(cfg), log.With(logx.Component("notify")), a.bus)
	if err != nil {
		return err
	}
	a.legacy = notify.NewLegacy(a.notif, log.With(logx.Component("notify.legacy")))

	rules, err := mapRules(cfg)
	if err != nil {
		return err
	}
	a.engine = trigger.New(st, a.notif, rules, log.With(logx.Component("trigger")))
	a.engine.SetRate(cfg.TriggerRatePerSec)

	a.sched = scheduler.New(mapSchedulerConfig(cfg), log.With(logx.Component("scheduler")))
	if err := a.registerJobs(cfg); err != nil {
		return err
	}

	if cfg.HTTP.Enabled {
		hc, err := mapHTTPConfig(cfg)
		if err != nil {
			return err
		}
		a.http = httpapi.New(hc, httpapi.Deps{
			Dispatcher:  a.notif,
			Preferences: a.notif.Preferences(),
			Legacy:      a.legacy,
			Triggers:    a.engine,
			Jobs:        a.sched,
		}, log.With(logx.Component("http")))
	}

	if rc := cfg.Realtime; rc != nil && rc.Enabled {
		a.redis = broker.NewRedisPublisher(broker.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.realtime = broker.NewRealtime(a.redis, a.notif, rc.ChannelPrefix, log.With(logx.Component("broker.realtime")))
	}
	if mc := cfg.MailQ; mc != nil && mc.Enabled {
		blog := log.With(logx.Component("broker.mailq"))
		a.amqp = broker.NewAMQPPublisher(broker.AMQPConfig{URL: mc.URL, Exchange: mc.Exchange, Queue: mc.Queue}, blog)
		a.mailq = broker.NewMailQ(a.amqp, blog)
	}
	return nil
}

// registerJobs upserts enabled triggers and removes disabled ones.
func (a *App) registerJobs(cfg *config.Config) error {
	jobs, err := mapJobs(cfg)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if !j.enabled {
			a.sched.Remove(j.name)
			continue
		}
		name := j.name
		if err := a.sched.Add(name, j.schedule, j.timeout, func(ctx context.Context) error {
			return a.runTrigger(ctx, name)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runTrigger(ctx context.Context, name string) error {
	start := time.Now()
	stats, err := a.engine.RunByName(ctx, name)
	fields := []logx.Field{
		logx.String("trigger", name),
		logx.Int("processed", stats.Processed),
		logx.Int("sent", stats.Sent),
		logx.Int("skipped", stats.Skipped),
		logx.Int("failed", stats.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if err != nil {
		a.log.Warn("trigger run aborted", append(fields, logx.Err(err))...)
		return err
	}
	a.log.Info("trigger run finished", fields...)
	return nil
}

// RunOnce runs one trigger (or "all") without starting background work.
func (a *App) RunOnce(ctx context.Context, name string) (trigger.Stats, error) {
	return a.engine.RunByName(ctx, name)
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Component("config")))

	if a.cfgm.Get().Scheduler.Enabled {
		a.sched.Start(a.sup.Context())
	}
	if a.realtime != nil {
		if err := a.redis.Ping(ctx); err != nil {
			a.log.Warn("redis unreachable; realtime forwarding will retry per event", logx.Err(err))
		}
		a.sup.GoRestart("broker.realtime", func(c context.Context) error { return a.realtime.Run(c, a.bus) }, time.Second, 30*time.Second)
	}
	if a.mailq != nil {
		a.sup.GoRestart("broker.mailq", func(c context.Context) error { return a.mailq.Run(c, a.bus) }, time.Second, 30*time.Second)
	}
	if a.http != nil {
		a.sup.Go("http", a.http.Serve)
	}
	a.sup.Go("eventbus.log", a.logEvents)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("notifyd started",
		logx.Bool("scheduler", a.cfgm.Get().Scheduler.Enabled),
		logx.Bool("http", a.http != nil),
		logx.Bool("realtime", a.realtime != nil),
		logx.Bool("mailq", a.mailq != nil),
	)
	return nil
}

// logEvents mirrors dispatch failures at warn and everything else at debug.
func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type == notify.EventDispatchFailed {
				a.log.Warn("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				continue
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(sctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 5*time.Second, a.sup.Stop)
	}
	a.closeResources()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.log.Warn("amqp close failed", logx.Err(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
}

// reloadLoop applies hot-reloadable sections: logging, scheduler timezone
// and enablement, trigger rules, schedules and pacing.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strs("sections", rr))
	}

	a.logs.Apply(mapLogConfig(next))

	if rules, err := mapRules(next); err != nil {
		a.log.Warn("invalid trigger rules; keeping previous", logx.Err(err))
	} else {
		a.engine.SetRules(rules)
	}
	a.engine.SetRate(next.TriggerRatePerSec)
	if err := a.registerJobs(next); err != nil {
		a.log.Warn("trigger schedule update failed", logx.Err(err))
	}

	a.sched.Apply(mapSchedulerConfig(next))
	switch {
	case prev.Scheduler.Enabled && !next.Scheduler.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !prev.Scheduler.Enabled && next.Scheduler.Enabled:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
