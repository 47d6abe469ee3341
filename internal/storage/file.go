package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "postbot/pkg/logx"
)

// fileStore keeps records in memory and persists them to two files:
//   - <prefix>.snapshot.json (periodic full snapshot, replaced atomically)
//   - <prefix>.journal.jsonl (append-only put/delete journal)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	nextID int64
	recs   map[int64]Record

	writes int
}

const compactEvery = 200

type fileSnapshot struct {
	NextID  int64    `json:"next_id"`
	Records []Record `json:"records"`
}

type journalEntry struct {
	Op  string  `json:"op"` // "put" | "del"
	Rec *Record `json:"rec,omitempty"`
	ID  int64   `json:"id,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("open", err)
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		recs:         map[int64]Record{},
	}
	journalPath := prefix + ".journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("load snapshot", err)
	}
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("replay journal", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, unavailable("open journal", err)
	}
	s.journal = jf
	log.Debug("file store opened", logx.String("path", s.snapshotPath), logx.Int("records", len(s.recs)))
	return s, nil
}

func (s *fileStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, unavailable("list", errClosed)
	}
	return sortedRecords(s.recs), nil
}

func (s *fileStore) Get(ctx context.Context, id int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, unavailable("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return Record{}, unavailable("get", errClosed)
	}
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, notFound(id)
	}
	return rec, nil
}

func (s *fileStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID + 1
	if err := s.appendLocked(journalEntry{Op: "put", Rec: &rec}); err != nil {
		return 0, unavailable("insert", err)
	}
	s.nextID = rec.ID
	s.recs[rec.ID] = rec
	s.maybeCompactLocked()
	return rec.ID, nil
}

func (s *fileStore) Update(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; !ok {
		return notFound(rec.ID)
	}
	if err := s.appendLocked(journalEntry{Op: "put", Rec: &rec}); err != nil {
		return unavailable("update", err)
	}
	s.recs[rec.ID] = rec
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return notFound(id)
	}
	if err := s.appendLocked(journalEntry{Op: "del", ID: id}); err != nil {
		return unavailable("delete", err)
	}
	delete(s.recs, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err1 := s.compactLocked()
	err2 := s.journal.Close()
	s.journal = nil
	return errors.Join(err1, err2)
}

func (s *fileStore) appendLocked(e journalEntry) error {
	if s.journal == nil {
		return errClosed
	}
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	return s.journal.Sync()
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.writes%compactEvery != 0 {
		return
	}
	// Best-effort: the journal still holds every change.
	if err := s.compactLocked(); err != nil {
		s.log.Warn("file store compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	snap := fileSnapshot{NextID: s.nextID, Records: sortedRecords(s.recs)}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	s.nextID = snap.NextID
	for _, r := range snap.Records {
		s.recs[r.ID] = r
		s.nextID = max(s.nextID, r.ID)
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn final line after a crash is expected; skip it.
			s.log.Warn("file store journal line skipped", logx.Err(err))
			continue
		}
		switch e.Op {
		case "put":
			if e.Rec == nil {
				continue
			}
			s.recs[e.Rec.ID] = *e.Rec
			s.nextID = max(s.nextID, e.Rec.ID)
		case "del":
			delete(s.recs, e.ID)
		}
	}
	return sc.Err()
}
