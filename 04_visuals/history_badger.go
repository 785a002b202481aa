package visuals

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"shorts-pipeline/types"
)

const badgerUsagePrefix = "usage/"

// BadgerHistory stores usage/<provider>/<id> -> big-endian epoch seconds in
// an embedded badger database. Unlike the JSON file it does not rewrite the
// whole store on every mark.
type BadgerHistory struct {
	db *badger.DB
}

// OpenBadgerHistory opens the badger directory at path.
func OpenBadgerHistory(path string) (*BadgerHistory, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerHistory{db: db}, nil
}

func badgerKey(p types.Provider, id string) []byte {
	return []byte(badgerUsagePrefix + string(p) + "/" + id)
}

// Recent implements History.
func (h *BadgerHistory) Recent(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	p, id, err := splitKey(key)
	if err != nil {
		return false, err
	}

	var ts int64
	err = h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(p, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt usage value for %s", key)
			}
			ts = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isRecent(ts, now, window), nil
}

// MarkUsed implements History.
func (h *BadgerHistory) MarkUsed(_ context.Context, key string, now time.Time) error {
	p, id, err := splitKey(key)
	if err != nil {
		return err
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(now.Unix()))
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(p, id), val)
	})
}

func (h *BadgerHistory) each(txn *badger.Txn, fn func(key []byte, p types.Provider, id string, ts int64) error) error {
	prefix := []byte(badgerUsagePrefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		rest := strings.TrimPrefix(string(item.Key()), badgerUsagePrefix)
		p, id, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(val) != 8 {
			continue
		}
		if err := fn(item.KeyCopy(nil), types.Provider(p), id, int64(binary.BigEndian.Uint64(val))); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot implements History.
func (h *BadgerHistory) Snapshot(context.Context) (map[types.Provider]map[string]int64, error) {
	out := make(map[types.Provider]map[string]int64)
	err := h.db.View(func(txn *badger.Txn) error {
		return h.each(txn, func(_ []byte, p types.Provider, id string, ts int64) error {
			if out[p] == nil {
				out[p] = make(map[string]int64)
			}
			out[p][id] = ts
			return nil
		})
	})
	return out, err
}

// Prune implements History.
func (h *BadgerHistory) Prune(_ context.Context, cutoff time.Time) (int, error) {
	var stale [][]byte
	err := h.db.View(func(txn *badger.Txn) error {
		return h.each(txn, func(k []byte, _ types.Provider, _ string, ts int64) error {
			if ts < cutoff.Unix() {
				stale = append(stale, k)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	wb := h.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Close implements History.
func (h *BadgerHistory) Close() error {
	return h.db.Close()
}
