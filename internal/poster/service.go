package poster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// ErrSinkFailure wraps every delivery error returned by Perform.
var ErrSinkFailure = errors.New("sink failure")

const historyCap = 300

// Service delivers posts through a single transport. It is safe for
// concurrent use.
type Service struct {
	mu sync.Mutex

	log       logx.Logger
	transport kit.Poster
	bus       eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, transport kit.Poster, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{transport: transport, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply swaps throttling settings at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes don't block.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// TransportName reports which transport the service delivers through.
func (s *Service) TransportName() string {
	if s.transport == nil {
		return ""
	}
	return s.transport.Name()
}

// Perform delivers p, blocking until it is sent, retries are exhausted or ctx
// ends. Each attempt is bounded by the configured call timeout.
func (s *Service) Perform(ctx context.Context, p kit.Post) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.transport == nil {
		return fmt.Errorf("%w: no transport configured", ErrSinkFailure)
	}

	start := time.Now()
	attempts := 1 + cfg.RetryMax
	var (
		ref     kit.MessageRef
		lastErr error
		n       int
	)
	for n = 1; n <= attempts; n++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		ref, lastErr = s.transport.Post(callCtx, p)
		cancel()
		if lastErr == nil {
			break
		}
		s.log.Debug("post attempt failed", logx.Err(lastErr), logx.Int("attempt", n), logx.Int("max", attempts))

		if n == attempts || ctx.Err() != nil {
			break
		}
		if kit.IsNoRetry(lastErr) {
			s.log.Debug("post error is permanent; not retrying", logx.Int("attempt", n))
			break
		}
		t := time.NewTimer(retryDelay(cfg, n))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	n = min(n, attempts)

	ev := DeliveryEvent{
		Transport: s.transport.Name(),
		RoomID:    p.RoomID,
		MessageID: ref.MessageID,
		Attempts:  n,
		Took:      time.Since(start),
		At:        time.Now(),
	}
	if lastErr != nil {
		ev.Error = lastErr.Error()
		s.record(ev)
		s.publish(EventFailed, ev)
		return fmt.Errorf("%w: %s room %s: %w", ErrSinkFailure, ev.Transport, p.RoomID, lastErr)
	}
	s.record(ev)
	s.publish(EventSent, ev)
	return nil
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(ev DeliveryEvent) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: ev.At, RoomID: ev.RoomID, MessageID: ev.MessageID, Error: ev.Error})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev DeliveryEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// retryDelay is exponential backoff with up to 20% jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryMaxDelay
	if shift := attempt - 1; shift < 30 {
		if b := cfg.RetryBase << shift; b > 0 && b < d {
			d = b
		}
	}
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(rand.Int64N(j))
	}
	return d
}
