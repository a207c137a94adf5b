// Package dedup records which alarms were investigated recently so the same
// alarm is not investigated twice within a window.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS investigations (
    alarm_name       TEXT PRIMARY KEY,
    investigated_at  INTEGER NOT NULL,
    expires_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investigations_expires_at ON investigations(expires_at);
`,
	},
}

// Record is one row of the investigations table. Times are unix nanoseconds.
type Record struct {
	AlarmName      string `db:"alarm_name"`
	InvestigatedAt int64  `db:"investigated_at"`
	ExpiresAt      int64  `db:"expires_at"`
}

// Store is a SQLite-backed dedup table.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the database at path and applies pending migrations.
// Pass ":memory:" for a throwaway store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connect to SQLite: %w", err)
	}
	// SQLite allows one writer; a single connection serialises claims.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.Get(&count, `SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns when key was last investigated, or nil when there is no
// unexpired record as of now.
func (s *Store) Get(ctx context.Context, key string, now time.Time) (*time.Time, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec,
		`SELECT alarm_name, investigated_at, expires_at FROM investigations WHERE alarm_name = ? AND expires_at > ?`,
		key, now.UnixNano())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	ts := time.Unix(0, rec.InvestigatedAt).UTC()
	return &ts, nil
}

// Put records that key was investigated at ts, expiring after ttl.
func (s *Store) Put(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO investigations(alarm_name, investigated_at, expires_at) VALUES(?, ?, ?)
ON CONFLICT(alarm_name) DO UPDATE SET investigated_at = excluded.investigated_at, expires_at = excluded.expires_at`,
		key, ts.UnixNano(), ts.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Claim records an investigation of key at now unless one was recorded less
// than window ago. It reports whether the caller won the claim and, if not,
// how long ago the previous investigation happened. The check and the write
// are a single conditional statement, so concurrent callers cannot both win.
func (s *Store) Claim(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO investigations(alarm_name, investigated_at, expires_at) VALUES(?, ?, ?)
ON CONFLICT(alarm_name) DO UPDATE SET investigated_at = excluded.investigated_at, expires_at = excluded.expires_at
WHERE investigations.investigated_at <= ?`,
		key, now.UnixNano(), now.Add(window).UnixNano(), now.Add(-window).UnixNano())
	if err != nil {
		return false, 0, fmt.Errorf("claim %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("claim %q: %w", key, err)
	}
	if n > 0 {
		s.logger.Info("recorded new investigation", zap.String("alarm", key), zap.Duration("ttl", window))
		return true, 0, nil
	}

	var rec Record
	if err := s.db.GetContext(ctx, &rec,
		`SELECT alarm_name, investigated_at, expires_at FROM investigations WHERE alarm_name = ?`, key); err != nil {
		return false, 0, fmt.Errorf("claim %q: %w", key, err)
	}
	since := now.Sub(time.Unix(0, rec.InvestigatedAt))
	s.logger.Info("alarm already investigated", zap.String("alarm", key), zap.Duration("since", since))
	return false, since, nil
}

// Purge deletes expired records and returns how many were removed.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM investigations WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}
