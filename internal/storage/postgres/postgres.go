package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytimer/internal/event"
	"studytimer/internal/storage"
)

type PostgresStore struct {
	url  string
	pool *pgxpool.Pool
}

func NewPostgresStore(databaseURL string) *PostgresStore {
	return &PostgresStore{url: databaseURL}
}

var _ storage.Storage = (*PostgresStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS timer_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS timer_events (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	type TEXT NOT NULL,
	tag TEXT NOT NULL DEFAULT '',
	value DOUBLE PRECISION NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_timer_events_timestamp ON timer_events (timestamp);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	config, err := pgxpool.ParseConfig(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// One daemon, one writer
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schemaSQL); err != nil {
		pool.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	s.pool = pool
	log.Println("Postgres storage initialized.")
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM timer_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO timer_kv (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM timer_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO timer_events (timestamp, type, tag, value, notes)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.Timestamp, string(e.Type), e.Tag, e.Value, e.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	query := `SELECT id, timestamp, type, tag, value, notes FROM timer_events
	          WHERE timestamp >= $1 AND timestamp <= $2`
	args := []any{start, end}
	if len(eventTypes) > 0 {
		types := make([]string, len(eventTypes))
		for i, et := range eventTypes {
			types[i] = string(et)
		}
		query += ` AND type = ANY($3)`
		args = append(args, types)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &e.Tag, &e.Value, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Type = event.EventType(typ)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		log.Println("Closing Postgres pool.")
		s.pool.Close()
	}
	return nil
}
