package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for keys that were never persisted.
var ErrNotFound = errors.New("settings: key not found")

// Metadata names written by the daemon at startup.
const (
	MetaRegistryDigest = "registry_digest"
	MetaRevision       = "revision"
)

// Record is one persisted setting.
type Record struct {
	Key       string    `json:"key"`
	Value     int64     `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists last-applied values over the pq_settings table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetInt returns the persisted value for key.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("settings key is empty")
	}
	var v int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM pq_settings WHERE key = ?;", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, nil
}

// SetInt upserts the value for key.
func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	if key == "" {
		return fmt.Errorf("settings key is empty")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pq_settings(key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, value, now)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// Sync checkpoints the write-ahead log so persisted values survive power
// loss.
func (s *Store) Sync(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL);"); err != nil {
		return fmt.Errorf("sync settings: %w", err)
	}
	return nil
}

// All returns every persisted record ordered by key.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value, updated_at FROM pq_settings ORDER BY key;")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var updated string
		if err := rows.Scan(&r.Key, &r.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			r.UpdatedAt = ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Meta returns a daemon metadata value, "" when unset.
func (s *Store) Meta(ctx context.Context, name string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM pq_meta WHERE name = ?;", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", name, err)
	}
	return v, nil
}

// SetMeta records a daemon metadata value such as the registry digest.
func (s *Store) SetMeta(ctx context.Context, name, value string) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pq_meta(name, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, name, value, now)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", name, err)
	}
	return nil
}
