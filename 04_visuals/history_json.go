package visuals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shorts-pipeline/types"
)

// JSONHistory stores usage as one JSON object:
//
//	{"pexels": {"123": 1718000000}, "pixabay": {"456": 1718000100}}
//
// The file is re-read on every call so that separate processes sharing it
// see each other's writes, and replaced atomically on every write. A file
// that does not parse is renamed to <path>.corrupt and treated as empty.
type JSONHistory struct {
	mu   sync.Mutex
	path string
}

// NewJSONHistory returns a history backed by path. The file is created on
// first write.
func NewJSONHistory(path string) *JSONHistory {
	return &JSONHistory{path: path}
}

// older files wrote fractional epoch seconds; accept both
type rawHistory map[string]map[string]float64

func (h *JSONHistory) load() (map[types.Provider]map[string]int64, error) {
	out := make(map[types.Provider]map[string]int64)

	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(data) == 0 {
		return out, nil
	}

	var raw rawHistory
	if err := json.Unmarshal(data, &raw); err != nil {
		// moved aside so the next write starts a fresh history
		if err := os.Rename(h.path, h.path+".corrupt"); err != nil {
			return nil, fmt.Errorf("quarantine unreadable history %s: %w", h.path, err)
		}
		return out, nil
	}
	for p, entries := range raw {
		m := make(map[string]int64, len(entries))
		for id, ts := range entries {
			m[id] = int64(math.Floor(ts))
		}
		out[types.Provider(p)] = m
	}
	return out, nil
}

func (h *JSONHistory) save(data map[types.Provider]map[string]int64) error {
	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), h.path)
}

// Recent implements History.
func (h *JSONHistory) Recent(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	p, id, err := splitKey(key)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.load()
	if err != nil {
		return false, err
	}
	ts, ok := data[p][id]
	return ok && isRecent(ts, now, window), nil
}

// MarkUsed implements History.
func (h *JSONHistory) MarkUsed(_ context.Context, key string, now time.Time) error {
	p, id, err := splitKey(key)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.load()
	if err != nil {
		return err
	}
	if data[p] == nil {
		data[p] = make(map[string]int64)
	}
	data[p][id] = now.Unix()
	return h.save(data)
}

// Snapshot implements History.
func (h *JSONHistory) Snapshot(context.Context) (map[types.Provider]map[string]int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// Prune implements History.
func (h *JSONHistory) Prune(_ context.Context, cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.load()
	if err != nil {
		return 0, err
	}
	removed := 0
	for p, entries := range data {
		for id, ts := range entries {
			if ts < cutoff.Unix() {
				delete(entries, id)
				removed++
			}
		}
		if len(entries) == 0 {
			delete(data, p)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, h.save(data)
}

// Close implements History.
func (h *JSONHistory) Close() error { return nil }
