package visuals

import (
	"context"
	"fmt"
	"time"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// History is the cross-run record of which stock assets were used and when.
// A missing or empty store means nothing has been used. Entries are never
// rolled back; only Prune removes them.
type History interface {
	// Recent reports whether key was used less than window before now.
	Recent(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
	// MarkUsed records that key was used at now.
	MarkUsed(ctx context.Context, key string, now time.Time) error
	// Snapshot returns provider -> external id -> last used epoch seconds.
	Snapshot(ctx context.Context) (map[types.Provider]map[string]int64, error)
	// Prune deletes entries last used before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// OpenHistory opens the backend named in cfg.
func OpenHistory(cfg config.HistoryConfig) (History, error) {
	switch cfg.Backend {
	case "", "json":
		return NewJSONHistory(cfg.Path), nil
	case "sqlite":
		return OpenSQLiteHistory(cfg.Path)
	case "badger":
		return OpenBadgerHistory(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func splitKey(key string) (types.Provider, string, error) {
	p, id, ok := types.SplitAssetKey(key)
	if !ok {
		return "", "", fmt.Errorf("invalid asset key %q", key)
	}
	return p, id, nil
}

func isRecent(lastUsed int64, now time.Time, window time.Duration) bool {
	return now.Sub(time.Unix(lastUsed, 0)) < window
}
