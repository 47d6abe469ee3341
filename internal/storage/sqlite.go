package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "postbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, unavailable("open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

const sqliteColumns = `id, api_token, room_id, thread_id, body, self_unread, post_condition`

func (s *sqliteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM register ORDER BY id`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM register WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, unavailable("get", err)
	}
	return rec, nil
}

func (s *sqliteStore) Insert(ctx context.Context, rec Record) (int64, error) {
	p := rec.Post
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO register(api_token, room_id, thread_id, body, self_unread, post_condition)
		 VALUES(?,?,?,?,?,?)`,
		p.APIToken, p.RoomID, p.ThreadID, p.Body, p.SelfUnread, rec.Trigger,
	)
	if err != nil {
		return 0, unavailable("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("insert", err)
	}
	return id, nil
}

func (s *sqliteStore) Update(ctx context.Context, rec Record) error {
	p := rec.Post
	res, err := s.db.ExecContext(ctx,
		`UPDATE register
		 SET api_token = ?, room_id = ?, thread_id = ?, body = ?, self_unread = ?, post_condition = ?,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`,
		p.APIToken, p.RoomID, p.ThreadID, p.Body, p.SelfUnread, rec.Trigger, rec.ID,
	)
	return affected(res, err, "update", rec.ID)
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM register WHERE id = ?`, id)
	return affected(res, err, "delete", id)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var rec Record
	err := r.Scan(&rec.ID, &rec.Post.APIToken, &rec.Post.RoomID, &rec.Post.ThreadID,
		&rec.Post.Body, &rec.Post.SelfUnread, &rec.Trigger)
	return rec, err
}

func affected(res sql.Result, err error, op string, id int64) error {
	if err != nil {
		return unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}
