package visuals

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

const week = 7 * 24 * time.Hour

func openBackends(t *testing.T) map[string]History {
	t.Helper()
	dir := t.TempDir()

	sq, err := OpenSQLiteHistory(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	bg, err := OpenBadgerHistory(filepath.Join(dir, "badger"))
	require.NoError(t, err)

	backends := map[string]History{
		"json":   NewJSONHistory(filepath.Join(dir, "history.json")),
		"sqlite": sq,
		"badger": bg,
	}
	t.Cleanup(func() {
		for _, h := range backends {
			h.Close()
		}
	})
	return backends
}

func TestHistory_FreshnessWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1718000000, 0)

	for name, h := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			recent, err := h.Recent(ctx, "pexels:1", now, week)
			require.NoError(t, err)
			assert.False(t, recent, "empty store means nothing used")

			require.NoError(t, h.MarkUsed(ctx, "pexels:1", now.Add(-6*24*time.Hour)))
			require.NoError(t, h.MarkUsed(ctx, "pixabay:2", now.Add(-8*24*time.Hour)))

			recent, err = h.Recent(ctx, "pexels:1", now, week)
			require.NoError(t, err)
			assert.True(t, recent)

			recent, err = h.Recent(ctx, "pixabay:2", now, week)
			require.NoError(t, err)
			assert.False(t, recent, "older than the window is reusable")

			recent, err = h.Recent(ctx, "pexels:2", now, week)
			require.NoError(t, err)
			assert.False(t, recent, "ids are scoped per provider")
		})
	}
}

func TestHistory_MarkUsedRefreshes(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1718000000, 0)

	for name, h := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, h.MarkUsed(ctx, "pexels:9", now.Add(-30*24*time.Hour)))
			require.NoError(t, h.MarkUsed(ctx, "pexels:9", now.Add(-time.Hour)))

			recent, err := h.Recent(ctx, "pexels:9", now, week)
			require.NoError(t, err)
			assert.True(t, recent)

			snap, err := h.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, now.Add(-time.Hour).Unix(), snap[types.ProviderPexels]["9"])
		})
	}
}

func TestHistory_Prune(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1718000000, 0)

	for name, h := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, h.MarkUsed(ctx, "pexels:old", now.Add(-10*24*time.Hour)))
			require.NoError(t, h.MarkUsed(ctx, "pixabay:new", now.Add(-time.Hour)))

			n, err := h.Prune(ctx, now.Add(-week))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			snap, err := h.Snapshot(ctx)
			require.NoError(t, err)
			assert.NotContains(t, snap[types.ProviderPexels], "old")
			assert.Contains(t, snap[types.ProviderPixabay], "new")
		})
	}
}

func TestHistory_RejectsMalformedKey(t *testing.T) {
	for name, h := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			err := h.MarkUsed(context.Background(), "no-separator", time.Now())
			assert.Error(t, err)
		})
	}
}

func TestJSONHistory_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video_history.json")
	h := NewJSONHistory(path)
	ctx := context.Background()

	require.NoError(t, h.MarkUsed(ctx, "pexels:123", time.Unix(1718000000, 0)))
	require.NoError(t, h.MarkUsed(ctx, "pixabay:456", time.Unix(1718000100, 0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]int64
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]map[string]int64{
		"pexels":  {"123": 1718000000},
		"pixabay": {"456": 1718000100},
	}, raw)

	// a second instance sees the same data
	snap, err := NewJSONHistory(path).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1718000100), snap[types.ProviderPixabay]["456"])
}

func TestJSONHistory_FractionalTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video_history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pexels": {"1": 1718000000.75}}`), 0o644))

	snap, err := NewJSONHistory(path).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1718000000), snap[types.ProviderPexels]["1"])
}

func TestJSONHistory_MissingOrEmptyFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	snap, err := NewJSONHistory(filepath.Join(dir, "missing.json")).Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	recent, err := NewJSONHistory(empty).Recent(ctx, "pexels:1", time.Now(), week)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestJSONHistory_CorruptFileIsMovedAside(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pexels": {"1": `), 0o644))
	h := NewJSONHistory(path)
	now := time.Unix(1718000000, 0)

	recent, err := h.Recent(ctx, "pexels:1", now, week)
	require.NoError(t, err)
	assert.False(t, recent)
	assert.FileExists(t, path+".corrupt")

	require.NoError(t, h.MarkUsed(ctx, "pexels:1", now))
	recent, err = h.Recent(ctx, "pexels:1", now, week)
	require.NoError(t, err)
	assert.True(t, recent, "dedup resumes after the bad file is set aside")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pexels": {"1": 1718000000}}`, string(data))
}

func TestOpenHistory(t *testing.T) {
	dir := t.TempDir()

	h, err := OpenHistory(config.HistoryConfig{Backend: "json", Path: filepath.Join(dir, "h.json")})
	require.NoError(t, err)
	assert.IsType(t, &JSONHistory{}, h)

	h, err = OpenHistory(config.HistoryConfig{Backend: "sqlite", Path: filepath.Join(dir, "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteHistory{}, h)
	require.NoError(t, h.Close())

	_, err = OpenHistory(config.HistoryConfig{Backend: "redis", Path: "x"})
	assert.Error(t, err)
}

func TestSQLiteHistory_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	ctx := context.Background()

	h, err := OpenSQLiteHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.MarkUsed(ctx, "pexels:1", time.Now()))
	require.NoError(t, h.Close())

	h, err = OpenSQLiteHistory(path)
	require.NoError(t, err)
	defer h.Close()

	var version int
	require.NoError(t, h.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, sqliteSchemaVersion, version)

	recent, err := h.Recent(ctx, "pexels:1", time.Now(), week)
	require.NoError(t, err)
	assert.True(t, recent)
}
