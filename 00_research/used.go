package research

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// UsedTopics is a JSON list of normalized topics already turned into
// videos. The file is read on every call so concurrent batch runs see each
// other's entries. An empty path disables the log.
type UsedTopics struct {
	mu   sync.Mutex
	path string
}

// NewUsedTopics returns the log stored at path.
func NewUsedTopics(path string) *UsedTopics {
	return &UsedTopics{path: path}
}

func normalizeTopic(t string) string {
	return strings.ToLower(strings.Join(strings.Fields(t), " "))
}

func (u *UsedTopics) load() map[string]bool {
	used := make(map[string]bool)
	if u.path == "" {
		return used
	}
	data, err := os.ReadFile(u.path)
	if err != nil {
		return used
	}
	var topics []string
	if err := json.Unmarshal(data, &topics); err != nil {
		return used
	}
	for _, t := range topics {
		used[normalizeTopic(t)] = true
	}
	return used
}

// Contains reports whether topic was used before.
func (u *UsedTopics) Contains(topic string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.load()[normalizeTopic(topic)]
}

// Add records topic.
func (u *UsedTopics) Add(topic string) error {
	if u.path == "" {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	used := u.load()
	used[normalizeTopic(topic)] = true

	topics := make([]string, 0, len(used))
	for t := range used {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	data, err := json.MarshalIndent(topics, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return err
	}
	tmp := u.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, u.path)
}
