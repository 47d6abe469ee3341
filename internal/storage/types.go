package storage

import (
	"context"
	"errors"
	"time"

	"postbot/internal/transport"
)

var (
	// ErrUnavailable marks any failure to reach or use the backing store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
)

// Record is one registered post plus the trigger blob that decides when it is
// sent.
type Record struct {
	ID      int64          `json:"id"`
	Post    transport.Post `json:"post"`
	Trigger string         `json:"trigger"`
}

// Store is the persistence API used by the scheduler and the HTTP layer.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	// Insert stores rec under a new id and returns it. rec.ID is ignored.
	Insert(ctx context.Context, rec Record) (int64, error)
	// Update replaces the record with rec.ID.
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id int64) error
	Close() error
}

// Config configures storage.
type Config struct {
	Driver string
	// Path is the database or snapshot file (file, sqlite).
	Path string
	// DSN is the connection string (postgres).
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means pgx default
}
