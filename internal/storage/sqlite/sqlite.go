// Package sqlite is the default on-disk backend: a kv table for timer state
// and an events table for the completion history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"studytimer/internal/event"
	"studytimer/internal/storage"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

var _ storage.Storage = (*SQLiteStore)(nil)

type migration struct {
	name string
	sql  string
}

// Applied in order, once each. Append only.
var migrations = []migration{
	{"001_kv", `
		CREATE TABLE kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_ms INTEGER NOT NULL
		)`},
	{"002_events", `
		CREATE TABLE events (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_ms INTEGER NOT NULL,
			type  TEXT NOT NULL,
			tag   TEXT NOT NULL DEFAULT '',
			value REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX idx_events_ts ON events (ts_ms);
		CREATE INDEX idx_events_type_ts ON events (type, ts_ms)`},
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: every write comes from the daemon's event loop anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_ms INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, m.name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if n > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_ms) VALUES (?, ?)`,
			m.name, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
		log.Printf("Applied migration %s", m.name)
	}
	return nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	log.Printf("Opening SQLite store at %s", s.dbPath)
	db, err := openDB(ctx, s.dbPath)
	if err != nil {
		return err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ms = excluded.updated_ms`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts_ms, type, tag, value, notes) VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp.UnixMilli(), string(e.Type), e.Tag, e.Value, e.Notes)
	if err != nil {
		return 0, fmt.Errorf("save %s event: %w", e.Type, err)
	}
	return res.LastInsertId()
}

// GetEvents returns events with start <= timestamp <= end, oldest first,
// optionally limited to the given types.
func (s *SQLiteStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	var q strings.Builder
	q.WriteString(`SELECT id, ts_ms, type, tag, value, notes FROM events WHERE ts_ms BETWEEN ? AND ?`)
	args := []interface{}{start.UnixMilli(), end.UnixMilli()}
	if len(eventTypes) > 0 {
		q.WriteString(` AND type IN (?` + strings.Repeat(`, ?`, len(eventTypes)-1) + `)`)
		for _, et := range eventTypes {
			args = append(args, string(et))
		}
	}
	q.WriteString(` ORDER BY ts_ms, id`)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e  event.Event
			ms int64
		)
		if err := rows.Scan(&e.ID, &ms, &e.Type, &e.Tag, &e.Value, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	log.Println("Closing SQLite store.")
	return s.db.Close()
}
