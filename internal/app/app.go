// Package app wires configuration, storage, the trigger registry, the
// scheduler, the poster and the HTTP API into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postbot/internal/api"
	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/metrics"
	"postbot/internal/poster"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/scheduler"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	"postbot/internal/transport/chatwork"
	"postbot/internal/transport/telegram"
	"postbot/internal/trigger"
	logx "postbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	transport kit.Poster
	reg       *trigger.Registry
	poster    *poster.Service
	sched     *scheduler.Service
	metrics   *metrics.Metrics
	http      *api.Server
}

// Health is the /healthz detail.
type Health struct {
	Scheduler  scheduler.Snapshot   `json:"scheduler"`
	Supervisor rtsup.Snapshot       `json:"supervisor"`
	Transport  string               `json:"transport"`
	Recent     []poster.HistoryItem `json:"recent_deliveries,omitempty"`
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	storeCfg, err := cfg.StorageConfig()
	if err != nil {
		return nil, err
	}
	posterCfg, err := cfg.PosterConfig()
	if err != nil {
		return nil, err
	}
	httpCfg, err := cfg.HTTPSettings()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	tr, err := newTransport(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	reg := trigger.Default(loc)
	post := poster.New(posterCfg, tr, log.With(logx.String("comp", "poster")), bus)
	sched := scheduler.New(schedCfg, store, reg, post, log.With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		store:     store,
		transport: tr,
		reg:       reg,
		poster:    post,
		sched:     sched,
		metrics:   metrics.New(bus.Dropped),
	}
	a.http = api.NewServer(apiConfig(httpCfg), api.Deps{
		Store:        store,
		Registry:     reg,
		Health:       func() any { return a.Health() },
		Metrics:      a.metrics.Handler(),
		StoreTimeout: schedCfg.StoreTimeout,
	}, log.With(logx.String("comp", "http")))

	a.log.Info("app configured",
		logx.String("tz", loc.String()),
		logx.String("storage", storeCfg.Driver),
		logx.String("transport", tr.Name()),
		logx.Duration("interval", schedCfg.Interval),
	)
	return a, nil
}

func newTransport(cfg *config.Config, log logx.Logger) (kit.Poster, error) {
	name, err := cfg.TransportName()
	if err != nil {
		return nil, err
	}
	log = log.With(logx.String("comp", "transport"), logx.String("transport", name))
	switch name {
	case "telegram":
		tc, err := cfg.TelegramConfig()
		if err != nil {
			return nil, err
		}
		return telegram.New(tc, log), nil
	default:
		cc, err := cfg.ChatworkConfig()
		if err != nil {
			return nil, err
		}
		return chatwork.New(cc, log), nil
	}
}

func apiConfig(h config.HTTPSettings) api.Config {
	return api.Config{
		Enabled:        h.Enabled,
		Addr:           h.Addr,
		Token:          h.Token,
		AllowInsecure:  h.AllowInsecure,
		AllowedOrigins: h.AllowedOrigins,
		ReadTimeout:    h.ReadTimeout,
		WriteTimeout:   h.WriteTimeout,
		Pprof:          h.Pprof,
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
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

func (a *App) Health() Health {
	h := Health{
		Scheduler: a.sched.Snapshot(),
		Transport: a.poster.TransportName(),
	}
	if a.sup != nil {
		h.Supervisor = a.sup.Snapshot()
	}
	if recent := a.poster.Snapshot(); len(recent) > 0 {
		h.Recent = recent[max(len(recent)-10, 0):]
	}
	return h
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Reject a bad reload before it is committed.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("metrics", func(c context.Context) error {
		return a.metrics.Run(c, a.bus)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sched.Start(a.sup.Context())
	a.notifyReady()

	a.log.Info("app started")
	return nil
}

// applyConfig pushes the hot-reloadable sections to running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if config.RequiresRestart(prev, next) {
		a.log.Warn("timezone, storage or transport changed; restart required for those to take effect")
	}

	a.logs.Apply(next.LogConfig())

	if sc, err := next.SchedulerConfig(); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}
	if pc, err := next.PosterConfig(); err != nil {
		a.log.Warn("invalid poster config; keeping previous", logx.Err(err))
	} else {
		a.poster.Apply(pc)
	}
	if hc, err := next.HTTPSettings(); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else if err := a.http.Reconfigure(ctx, apiConfig(hc)); err != nil {
		a.log.Error("http reconfigure failed", logx.Err(err))
	}

	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

// StopTimeout is the deadline Stop needs to let a delivery in flight finish
// and still close every component after it.
func (a *App) StopTimeout() time.Duration {
	return a.sched.Config().DrainTimeout() + stopTail
}

// stopTail covers the steps after the scheduler.
const stopTail = 10 * time.Second

func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", reason))
	a.notifyStopping()

	// Let background loops unwind immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := runStep(ctx, a.log, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	// The scheduler goes first so the store outlives its final write-back.
	step("scheduler", a.sched.Config().DrainTimeout(), func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("transport", time.Second, func(c context.Context) error {
		if cl, ok := a.transport.(kit.Closer); ok {
			return cl.Close(c)
		}
		return nil
	})
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
