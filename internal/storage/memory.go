package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	recs   map[int64]Record
	closed bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{recs: map[int64]Record{}}
}

func (s *memoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, unavailable("list", errClosed)
	}
	return sortedRecords(s.recs), nil
}

func (s *memoryStore) Get(ctx context.Context, id int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, unavailable("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, unavailable("get", errClosed)
	}
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, notFound(id)
	}
	return rec, nil
}

func (s *memoryStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, unavailable("insert", errClosed)
	}
	s.nextID++
	rec.ID = s.nextID
	s.recs[rec.ID] = rec
	return rec.ID, nil
}

func (s *memoryStore) Update(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("update", errClosed)
	}
	if _, ok := s.recs[rec.ID]; !ok {
		return notFound(rec.ID)
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("delete", errClosed)
	}
	if _, ok := s.recs[id]; !ok {
		return notFound(id)
	}
	delete(s.recs, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var errClosed = errors.New("store closed")

func sortedRecords(m map[int64]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
