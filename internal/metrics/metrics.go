// Package metrics turns bus events into Prometheus collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postbot/internal/eventbus"
	"postbot/internal/poster"
	"postbot/internal/scheduler"
)

const namespace = "postbot"

type Metrics struct {
	reg *prometheus.Registry

	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	listFailures  prometheus.Counter
	skipped       prometheus.Counter
	writeFailures prometheus.Counter
	fired         *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	deliveryTime  *prometheus.HistogramVec
	attempts      prometheus.Counter
}

// New registers every collector on a fresh registry. dropped, when non-nil,
// reports bus deliveries lost to slow subscribers.
func New(dropped func() uint64) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "ticks_total",
			Help: "Scheduler ticks completed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "tick_duration_seconds",
			Help:    "Wall time of one scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		listFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "list_failures_total",
			Help: "Ticks that could not list records.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "skipped_records_total",
			Help: "Records skipped because their trigger could not be restored.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "write_failures_total",
			Help: "Trigger write-backs that failed after a post fired.",
		}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "fired_total",
			Help: "Triggers that fired, by kind and delivery outcome.",
		}, []string{"kind", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poster", Name: "deliveries_total",
			Help: "Delivery calls by transport and outcome.",
		}, []string{"transport", "outcome"}),
		deliveryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "poster", Name: "delivery_duration_seconds",
			Help:    "Time spent in one delivery including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poster", Name: "attempts_total",
			Help: "Transport calls including retries.",
		}),
	}
	m.reg.MustRegister(
		m.ticks, m.tickDuration, m.listFailures, m.skipped, m.writeFailures,
		m.fired, m.deliveries, m.deliveryTime, m.attempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if dropped != nil {
		m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventbus", Name: "dropped_total",
			Help: "Events dropped because a subscriber was full.",
		}, func() float64 { return float64(dropped()) }))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe records one event. Unknown types are ignored.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case scheduler.TickReport:
		m.ticks.Inc()
		m.tickDuration.Observe(d.Took.Seconds())
		if d.ListError != "" {
			m.listFailures.Inc()
		}
		m.skipped.Add(float64(d.Skipped))
		m.writeFailures.Add(float64(d.WriteFailures))
	case scheduler.FiredEvent:
		outcome := "sent"
		if d.SinkError != "" {
			outcome = "failed"
		}
		m.fired.WithLabelValues(d.Kind, outcome).Inc()
	case poster.DeliveryEvent:
		outcome := "sent"
		if ev.Type == poster.EventFailed {
			outcome = "failed"
		}
		m.deliveries.WithLabelValues(d.Transport, outcome).Inc()
		m.deliveryTime.WithLabelValues(d.Transport).Observe(d.Took.Seconds())
		m.attempts.Add(float64(d.Attempts))
	}
}

// Run feeds bus events into the collectors until ctx ends.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsubscribe := bus.Subscribe(256, "scheduler.", "poster.")
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}
