package scheduler

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/storage"
	kit "postbot/internal/transport"
)

const (
	DefaultInterval     = 30 * time.Second
	MinInterval         = time.Second
	MaxInterval         = 60 * time.Second
	DefaultStoreTimeout = 5 * time.Second
	DefaultSinkTimeout  = 30 * time.Second
)

type Config struct {
	Interval     time.Duration
	StoreTimeout time.Duration
	SinkTimeout  time.Duration
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = DefaultSinkTimeout
	}
	return c
}

// DrainTimeout bounds how long Stop may wait for the record in flight: one
// delivery plus its write-back.
func (c Config) DrainTimeout() time.Duration {
	c = c.WithDefaults()
	return c.SinkTimeout + c.StoreTimeout + time.Second
}

func (c Config) Validate() error {
	if c.Interval < MinInterval || c.Interval > MaxInterval {
		return fmt.Errorf("scheduler interval %s out of range [%s, %s]", c.Interval, MinInterval, MaxInterval)
	}
	return nil
}

// Store is the part of storage.Store the loop needs.
type Store interface {
	List(ctx context.Context) ([]storage.Record, error)
	Update(ctx context.Context, rec storage.Record) error
}

// Sink performs the action of a fired record.
type Sink interface {
	Perform(ctx context.Context, p kit.Post) error
}

// TickReport summarizes one tick.
type TickReport struct {
	ID            string        `json:"id"`
	Started       time.Time     `json:"started"`
	Took          time.Duration `json:"took"`
	Records       int           `json:"records"`
	Fired         int           `json:"fired"`
	Skipped       int           `json:"skipped"`
	SinkFailures  int           `json:"sink_failures"`
	WriteFailures int           `json:"write_failures"`
	ListError     string        `json:"list_error,omitempty"`
	// Aborted is set when shutdown interrupted the tick between records.
	Aborted bool `json:"aborted,omitempty"`
}

// FiredEvent is published for every record whose trigger fired.
type FiredEvent struct {
	TickID    string    `json:"tick_id"`
	RecordID  int64     `json:"record_id"`
	Kind      string    `json:"kind"`
	Goal      time.Time `json:"goal"`
	Completed bool      `json:"completed"`
	SinkError string    `json:"sink_error,omitempty"`
}

type Snapshot struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	Ticks    uint64        `json:"ticks"`
	Fired    uint64        `json:"fired"`
	NextAt   time.Time     `json:"next_at,omitzero"`
	Last     *TickReport   `json:"last,omitempty"`
}

const (
	EventTick  = "scheduler.tick"
	EventFired = "scheduler.fired"
)
