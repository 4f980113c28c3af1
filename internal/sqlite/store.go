// Package sqlite provides the durable store behind the cache, progress
// tracker, and rate limiter: a single SQLite database with one table
// per concern, upserted by key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"geopipe/internal/cache"
	"geopipe/internal/progress"
	"geopipe/internal/ratelimit"
)

const timeFormat = time.RFC3339

// Store is the SQLite-backed durable store.
type Store struct {
	db   *sql.DB
	path string
}

var (
	_ cache.DurableStore = (*Store)(nil)
	_ progress.Store     = (*Store)(nil)
	_ ratelimit.Store    = (*Store)(nil)
)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s, label string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: %w", label, s, err)
	}
	return t, nil
}

// Cache entries

// GetCacheRow returns the row for key if it has not expired, nil otherwise.
// Times are stored as RFC3339 UTC strings, which order lexicographically.
func (s *Store) GetCacheRow(ctx context.Context, key string, now time.Time) (*cache.Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, source, data_type, payload, created_at, expires_at
		FROM cache_entries
		WHERE key = ? AND expires_at > ?
	`, key, formatTime(now))

	var r cache.Row
	var createdAt, expiresAt string
	err := row.Scan(&r.Key, &r.Source, &r.DataType, &r.Payload, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry %q: %w", key, err)
	}
	if r.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if r.ExpiresAt, err = parseTime(expiresAt, "expires_at"); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutCacheRow upserts a row by cache key: one durable row per key, the
// latest payload wins.
func (s *Store) PutCacheRow(ctx context.Context, r cache.Row) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, source, data_type, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			source = excluded.source,
			data_type = excluded.data_type,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, r.Key, r.Source, r.DataType, r.Payload, formatTime(r.CreatedAt), formatTime(r.ExpiresAt))
	if err != nil {
		return fmt.Errorf("put cache entry %q: %w", r.Key, err)
	}
	return nil
}

// DeleteExpiredCacheRows removes rows whose expiry has passed.
func (s *Store) DeleteExpiredCacheRows(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return n, nil
}

// Progress records

// PutProgress upserts the record by job id.
func (s *Store) PutProgress(ctx context.Context, rec progress.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_progress
			(job_id, source, data_type, status, percent, total_bytes, downloaded_bytes, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			source = excluded.source,
			data_type = excluded.data_type,
			status = excluded.status,
			percent = excluded.percent,
			total_bytes = excluded.total_bytes,
			downloaded_bytes = excluded.downloaded_bytes,
			error_message = excluded.error_message,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, rec.JobID, rec.Source, rec.DataType, string(rec.Status), rec.Percent,
		rec.TotalBytes, rec.DownloadedBytes, rec.ErrorMessage,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put progress %q: %w", rec.JobID, err)
	}
	return nil
}

// GetProgress returns the record for jobID, or nil if none exists.
func (s *Store) GetProgress(ctx context.Context, jobID string) (*progress.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, source, data_type, status, percent, total_bytes, downloaded_bytes, error_message, created_at, updated_at
		FROM download_progress WHERE job_id = ?
	`, jobID)

	var rec progress.Record
	var status, createdAt, updatedAt string
	err := row.Scan(&rec.JobID, &rec.Source, &rec.DataType, &status, &rec.Percent,
		&rec.TotalBytes, &rec.DownloadedBytes, &rec.ErrorMessage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %q: %w", jobID, err)
	}
	rec.Status = progress.Status(status)
	if rec.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Rate-limit windows

// The endpoint column exists for sources with per-endpoint quotas; the
// limiter currently throttles whole sources, so it stays empty.

// PutWindow upserts the counter for a source.
func (s *Store) PutWindow(ctx context.Context, state ratelimit.WindowState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limits (source, endpoint, request_count, window_start)
		VALUES (?, '', ?, ?)
		ON CONFLICT(source, endpoint) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start
	`, state.Source, state.RequestCount, formatTime(state.WindowStart))
	if err != nil {
		return fmt.Errorf("put rate-limit window %q: %w", state.Source, err)
	}
	return nil
}

// ListWindows returns all persisted counters.
func (s *Store) ListWindows(ctx context.Context) ([]ratelimit.WindowState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source, request_count, window_start FROM rate_limits")
	if err != nil {
		return nil, fmt.Errorf("list rate-limit windows: %w", err)
	}
	defer rows.Close()

	var result []ratelimit.WindowState
	for rows.Next() {
		var st ratelimit.WindowState
		var windowStart string
		if err := rows.Scan(&st.Source, &st.RequestCount, &windowStart); err != nil {
			return nil, fmt.Errorf("scan rate-limit window: %w", err)
		}
		if st.WindowStart, err = parseTime(windowStart, "window_start"); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}
