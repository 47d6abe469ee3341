package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	"postbot/internal/trigger"
	logx "postbot/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config

	store Store
	reg   *trigger.Registry
	sink  Sink
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	// tickMu serializes Tick so a manual call never overlaps the loop.
	tickMu sync.Mutex

	sup    *rtsup.Supervisor
	ticks  uint64
	fired  uint64
	nextAt time.Time
	last   *TickReport
}

type Option func(*Service)

// WithClock overrides the clock handed to trigger checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, store Store, reg *trigger.Registry, sink Sink, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:   cfg.WithDefaults(),
		store: store,
		reg:   reg,
		sink:  sink,
		log:   log,
		bus:   bus,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps interval and timeouts. The new interval takes effect when the
// next tick is scheduled.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.WithDefaults()
	s.mu.Unlock()
}

// Config returns the active configuration with defaults applied.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start runs the first tick immediately and then keeps ticking until Stop or
// ctx ends. Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	interval := s.cfg.Interval
	s.mu.Unlock()

	sup.GoRestart("scheduler.loop", s.loop,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	s.log.Info("scheduler started", logx.Duration("interval", interval), logx.String("tz", s.reg.Location().String()))
}

// Stop cancels the loop and waits for the tick in progress, if any, to end
// its current record.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.nextAt = time.Time{}
	s.mu.Unlock()
	if sup == nil {
		return
	}
	start := time.Now()
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler stop", logx.Err(err))
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) loop(ctx context.Context) error {
	for {
		s.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// The next tick is anchored at the end of this one.
		next := cron.Every(s.Config().Interval).Next(time.Now())
		s.mu.Lock()
		s.nextAt = next
		s.mu.Unlock()

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Tick evaluates every record once.
func (s *Service) Tick(ctx context.Context) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	cfg := s.Config()
	rep := TickReport{ID: uuid.NewString(), Started: time.Now()}
	log := s.log.With(logx.String("tick", rep.ID))

	lctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	recs, err := s.store.List(lctx)
	cancel()
	if err != nil {
		rep.ListError = err.Error()
		log.Error("list records failed", logx.Err(err))
		return s.finish(rep)
	}
	rep.Records = len(recs)

	for _, rec := range recs {
		if ctx.Err() != nil {
			rep.Aborted = true
			break
		}
		s.evaluate(ctx, cfg, log, rec, &rep)
	}
	return s.finish(rep)
}

func (s *Service) evaluate(ctx context.Context, cfg Config, log logx.Logger, rec storage.Record, rep *TickReport) {
	log = log.With(logx.Int64("record", rec.ID))

	trig, err := s.reg.Restore(rec.Trigger)
	if err != nil {
		rep.Skipped++
		log.Warn("trigger restore failed", logx.Err(err))
		return
	}

	now := s.now()
	if !trig.Check(now) {
		return
	}
	goal := trig.Goal()
	rep.Fired++
	ev := FiredEvent{TickID: rep.ID, RecordID: rec.ID, Kind: string(trig.Kind()), Goal: goal}

	// Shutdown does not interrupt a delivery that already started.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.SinkTimeout)
	err = s.sink.Perform(pctx, rec.Post)
	cancel()
	if err != nil {
		rep.SinkFailures++
		ev.SinkError = err.Error()
		log.Error("post failed", logx.Err(err), logx.Time("goal", goal))
	} else {
		log.Info("post sent", logx.String("kind", string(trig.Kind())), logx.Time("goal", goal))
	}

	// The crossing is consumed whether or not delivery worked.
	trig.Advance(now)
	ev.Completed = trig.Completed()

	blob, err := trigger.Marshal(trig)
	if err != nil {
		rep.WriteFailures++
		log.Error("trigger marshal failed", logx.Err(err))
		s.publish(EventFired, ev)
		return
	}
	rec.Trigger = blob

	// Commit even if shutdown began during delivery, or the post would repeat.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.StoreTimeout)
	err = s.store.Update(uctx, rec)
	cancel()
	if err != nil {
		rep.WriteFailures++
		log.Error("trigger write-back failed", logx.Err(err))
	}
	s.publish(EventFired, ev)
}

func (s *Service) finish(rep TickReport) TickReport {
	rep.Took = time.Since(rep.Started)
	s.mu.Lock()
	s.ticks++
	s.fired += uint64(rep.Fired)
	last := rep
	s.last = &last
	s.mu.Unlock()

	if rep.Fired > 0 || rep.Skipped > 0 || rep.ListError != "" {
		s.log.Debug("tick done",
			logx.String("tick", rep.ID),
			logx.Int("records", rep.Records),
			logx.Int("fired", rep.Fired),
			logx.Int("skipped", rep.Skipped),
			logx.Duration("took", rep.Took),
		)
	}
	s.publish(EventTick, rep)
	return rep
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Snapshot reports loop state and the last tick.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Running:  s.sup != nil,
		Interval: s.cfg.Interval,
		Ticks:    s.ticks,
		Fired:    s.fired,
		NextAt:   s.nextAt,
	}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	return snap
}
