package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "postbot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS register (
		id             BIGSERIAL PRIMARY KEY,
		api_token      TEXT        NOT NULL,
		room_id        TEXT        NOT NULL,
		thread_id      INT         NOT NULL DEFAULT 0,
		body           TEXT        NOT NULL,
		self_unread    BOOLEAN     NOT NULL DEFAULT FALSE,
		post_condition TEXT        NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_register_api_token ON register(api_token);`,
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}
	for _, q := range postgresSchema {
		if _, err := pool.Exec(ctx, q); err != nil {
			pool.Close()
			return nil, unavailable("migrate", err)
		}
	}
	log.Debug("postgres store opened", logx.String("host", pcfg.ConnConfig.Host))
	return &postgresStore{pool: pool, log: log}, nil
}

const postgresColumns = `id, api_token, room_id, thread_id, body, self_unread, post_condition`

func (s *postgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM register ORDER BY id`)
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

func (s *postgresStore) Get(ctx context.Context, id int64) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM register WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, unavailable("get", err)
	}
	return rec, nil
}

func (s *postgresStore) Insert(ctx context.Context, rec Record) (int64, error) {
	p := rec.Post
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO register (api_token, room_id, thread_id, body, self_unread, post_condition)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.APIToken, p.RoomID, p.ThreadID, p.Body, p.SelfUnread, rec.Trigger).Scan(&id)
	if err != nil {
		return 0, unavailable("insert", err)
	}
	return id, nil
}

func (s *postgresStore) Update(ctx context.Context, rec Record) error {
	p := rec.Post
	tag, err := s.pool.Exec(ctx, `
		UPDATE register
		SET api_token = $1, room_id = $2, thread_id = $3, body = $4, self_unread = $5,
		    post_condition = $6, updated_at = NOW()
		WHERE id = $7
	`, p.APIToken, p.RoomID, p.ThreadID, p.Body, p.SelfUnread, rec.Trigger, rec.ID)
	return pgAffected(tag, err, "update", rec.ID)
}

func (s *postgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM register WHERE id = $1`, id)
	return pgAffected(tag, err, "delete", id)
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func pgAffected(tag pgconn.CommandTag, err error, op string, id int64) error {
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}
