package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_records (
	key        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_records_expires_at ON seen_records(expires_at);
`

// sqliteStore implements a Store backed by SQLite.
type sqliteStore struct {
	db        *sql.DB
	recordTTL time.Duration
	cleanup   *cleanupGate
}

func openSQLite(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	return &sqliteStore{
		db:        db,
		recordTTL: opts.RecordTTL,
		cleanup:   newCleanupGate(opts.CleanupInterval, time.Now()),
	}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SeenRecord(key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}

	now := time.Now()
	if err := s.cleanup.maybeRun(now, s.sweep); err != nil {
		return false, err
	}

	var expiresAt int64
	err := s.db.QueryRow(`SELECT expires_at FROM seen_records WHERE key = ?`, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen record: %w", err)
	}

	if expiresAt <= now.Unix() {
		if _, err := s.db.Exec(`DELETE FROM seen_records WHERE key = ?`, key); err != nil {
			return false, fmt.Errorf("delete expired record: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *sqliteStore) MarkRecord(key string) error {
	if s == nil || s.db == nil {
		return nil
	}

	now := time.Now()
	if err := s.cleanup.maybeRun(now, s.sweep); err != nil {
		return err
	}

	_, err := s.db.Exec(`
INSERT INTO seen_records (key, expires_at) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, now.Add(s.recordTTL).Unix())
	if err != nil {
		return fmt.Errorf("mark record: %w", err)
	}
	return nil
}

func (s *sqliteStore) sweep(now time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM seen_records WHERE expires_at <= ?`, now.Unix()); err != nil {
		return fmt.Errorf("cleanup expired records: %w", err)
	}
	return nil
}
