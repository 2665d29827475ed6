// Package leaderboard keeps rendered ranking outputs in sync with the entity
// store. Each category owns at most one live rendered output; a small
// persisted index remembers which external ref currently shows which
// category, so a restart re-binds instead of posting duplicates.
package leaderboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Index is the persisted category → external ref map. It is loaded once at
// startup and rewritten atomically after every successful render.
type Index struct {
	path string

	mu   sync.Mutex
	refs map[string]string
}

// LoadIndex reads the index file at path. Missing or unreadable files start
// an empty index with a warning — the reconciler will rediscover or recreate
// outputs on its next run.
func LoadIndex(path string) *Index {
	idx := &Index{path: path, refs: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("leaderboard index unreadable, starting empty", "path", path, "error", err)
		}
		return idx
	}
	if err := json.Unmarshal(data, &idx.refs); err != nil {
		slog.Warn("leaderboard index corrupt, starting empty", "path", path, "error", err)
		idx.refs = make(map[string]string)
	}
	return idx
}

// Get returns the known ref for a category.
func (idx *Index) Get(category string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ref, ok := idx.refs[category]
	return ref, ok
}

// Set records a ref and persists immediately.
func (idx *Index) Set(category, ref string) {
	idx.mu.Lock()
	idx.refs[category] = ref
	idx.saveLocked()
	idx.mu.Unlock()
}

// Drop forgets a stale ref and persists immediately.
func (idx *Index) Drop(category string) {
	idx.mu.Lock()
	delete(idx.refs, category)
	idx.saveLocked()
	idx.mu.Unlock()
}

// saveLocked rewrites the index file atomically. Caller holds mu.
func (idx *Index) saveLocked() {
	data, err := json.MarshalIndent(idx.refs, "", "  ")
	if err != nil {
		slog.Error("leaderboard index marshal failed", "error", err)
		return
	}
	if err := writeFileAtomic(idx.path, data); err != nil {
		slog.Warn("leaderboard index save failed", "path", idx.path, "error", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
