package visuals

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"shorts-pipeline/types"
)

// sqliteSchemaVersion is the latest schema version. Bump it when adding
// migrations.
const sqliteSchemaVersion = 1

// SQLiteHistory keeps an append-only usage_events table; the freshness of a
// key is its newest event. WAL and busy_timeout let several processes share
// one file.
type SQLiteHistory struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenSQLiteHistory opens (and migrates) the database at path.
func OpenSQLiteHistory(path string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := migrateHistory(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteHistory{db: db, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

func migrateHistory(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	// Migration 0 -> 1: usage events
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS usage_events (
		  id          TEXT PRIMARY KEY,
		  provider    TEXT NOT NULL,
		  external_id TEXT NOT NULL,
		  used_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_events_key
		ON usage_events(provider, external_id, used_at DESC);

		CREATE INDEX IF NOT EXISTS idx_usage_events_used_at
		ON usage_events(used_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
	}

	if version < sqliteSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

func (h *SQLiteHistory) newID(now time.Time) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), h.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Recent implements History.
func (h *SQLiteHistory) Recent(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	p, id, err := splitKey(key)
	if err != nil {
		return false, err
	}

	var last sql.NullInt64
	err = h.db.QueryRowContext(ctx,
		`SELECT MAX(used_at) FROM usage_events WHERE provider = ? AND external_id = ?`,
		string(p), id).Scan(&last)
	if err != nil {
		return false, fmt.Errorf("query usage: %w", err)
	}
	return last.Valid && isRecent(last.Int64, now, window), nil
}

// MarkUsed implements History.
func (h *SQLiteHistory) MarkUsed(ctx context.Context, key string, now time.Time) error {
	p, id, err := splitKey(key)
	if err != nil {
		return err
	}
	eventID, err := h.newID(now)
	if err != nil {
		return err
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, provider, external_id, used_at) VALUES (?, ?, ?, ?)`,
		eventID, string(p), id, now.Unix())
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// Snapshot implements History.
func (h *SQLiteHistory) Snapshot(ctx context.Context) (map[types.Provider]map[string]int64, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT provider, external_id, MAX(used_at) FROM usage_events GROUP BY provider, external_id`)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make(map[types.Provider]map[string]int64)
	for rows.Next() {
		var p, id string
		var ts int64
		if err := rows.Scan(&p, &id, &ts); err != nil {
			return nil, err
		}
		if out[types.Provider(p)] == nil {
			out[types.Provider(p)] = make(map[string]int64)
		}
		out[types.Provider(p)][id] = ts
	}
	return out, rows.Err()
}

// Prune deletes every event older than cutoff. A key whose newest event is
// newer keeps that event, so Recent is unaffected for it.
func (h *SQLiteHistory) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM usage_events WHERE used_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close implements History.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
