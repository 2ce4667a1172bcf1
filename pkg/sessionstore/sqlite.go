package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps records in a SQLite database file. Unlike MemoryStore
// it survives AP restarts without a Redis server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		device_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		ap_bssid TEXT NOT NULL,
		suite TEXT NOT NULL,
		key_fp TEXT NOT NULL,
		established_at INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		frames INTEGER NOT NULL DEFAULT 0,
		last_seq INTEGER NOT NULL DEFAULT 0
	);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(device_id, id, ap_bssid, suite, key_fp, established_at, last_seen, frames, last_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.DeviceID, rec.ID, rec.APBSSID, rec.Suite, rec.KeyFingerprint,
		rec.EstablishedAt, rec.LastSeen, rec.Frames, rec.LastSeq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, deviceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, id, ap_bssid, suite, key_fp, established_at, last_seen, frames, last_seq
		FROM sessions WHERE device_id = ?
	`, deviceID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, deviceID string, seq uint64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET frames = frames + 1, last_seq = ?, last_seen = ?
		WHERE device_id = ?
	`, int64(seq), at.UnixMilli(), deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, id, ap_bssid, suite, key_fp, established_at, last_seen, frames, last_seq
		FROM sessions ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.DeviceID, &rec.ID, &rec.APBSSID, &rec.Suite, &rec.KeyFingerprint,
		&rec.EstablishedAt, &rec.LastSeen, &rec.Frames, &rec.LastSeq,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ Store = (*SQLiteStore)(nil)
