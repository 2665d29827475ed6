package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/talgya/campcore/internal/metrics"
)

// Store is the durable entity store. All reads return deep copies; all writes
// go through Update, which rewrites the whole backing file. Whole-store
// rewrite is fine at this entity count — the file is a few hundred records at
// most.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]*Record
	nextSeq int64

	// persistMu serializes file writes independently of per-entity locks.
	// Two entities' updates may race to persist; each write is the full
	// current snapshot, so the last writer wins with no partial state.
	persistMu sync.Mutex
}

// Open loads the store from path. A missing or unreadable file is not fatal:
// the store starts empty with a warning, since this state is supplementary to
// the chat platform's own records.
func Open(path string) *Store {
	s := &Store{
		path:    path,
		records: make(map[string]*Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("entity store file not found, starting empty", "path", path)
		} else {
			slog.Warn("entity store unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	var raw map[string]*Record
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("entity store corrupt, starting empty", "path", path, "error", err)
		return s
	}

	for id, rec := range raw {
		rec.ID = id
		rec.Backfill()
		s.records[id] = rec
		if rec.Seq >= s.nextSeq {
			s.nextSeq = rec.Seq + 1
		}
	}
	slog.Info("entity store loaded", "path", path, "entities", len(s.records))
	return s
}

// GetOrCreate returns the record for id, creating the full default shape on
// first reference. Existing records are backfilled against the current schema
// and their display name refreshed from seedIdentity; the store persists only
// if something actually changed.
func (s *Store) GetOrCreate(id, seedIdentity string) *Record {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		rec = NewRecord(id, seedIdentity)
		rec.Seq = s.nextSeq
		s.nextSeq++
		s.records[id] = rec
		snapshot := s.snapshotLocked()
		out := rec.Clone()
		s.mu.Unlock()

		slog.Info("new entity", "id", id, "name", seedIdentity)
		if err := s.persist(snapshot); err != nil {
			slog.Error("persist failed after entity creation", "id", id, "error", err)
		}
		return out
	}

	changed := rec.Backfill()
	if seedIdentity != "" && rec.DisplayName != seedIdentity {
		rec.DisplayName = seedIdentity
		changed = true
	}

	var snapshot []byte
	if changed {
		snapshot = s.snapshotLocked()
	}
	out := rec.Clone()
	s.mu.Unlock()

	if changed {
		if err := s.persist(snapshot); err != nil {
			slog.Error("persist failed after backfill", "id", id, "error", err)
		}
	}
	return out
}

// Get returns a copy of the record for id, or nil if the entity has never
// been seen.
func (s *Store) Get(id string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// Update replaces the stored record for id and durably persists the whole
// store. Callers deciding on what they read must hold the entity's lock
// (KeyedMutex) around the read-decide-write sequence.
func (s *Store) Update(id string, rec *Record) error {
	s.mu.Lock()
	stored := rec.Clone()
	stored.ID = id
	if prev, ok := s.records[id]; ok {
		stored.Seq = prev.Seq
	} else {
		stored.Seq = s.nextSeq
		s.nextSeq++
	}
	s.records[id] = stored
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(snapshot)
}

// Len returns the number of known entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns copies of every record, in creation order.
func (s *Store) All() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// SortKey selects the ranking dimension for Top.
type SortKey string

const (
	ByMoney        SortKey = "money"
	ByExp          SortKey = "exp"
	ByLevel        SortKey = "lv"
	ByAffection    SortKey = "affection"
	ByStreak       SortKey = "streak"
	ByAchievements SortKey = "achievements" // set cardinality
	ByFlags        SortKey = "flags"        // set cardinality
)

// Top returns up to limit records ordered by the sort key descending. Ties
// are broken by creation sequence ascending, so results are stable and
// deterministic.
func (s *Store) Top(key SortKey, limit int) []*Record {
	ranked := s.All()

	score := func(r *Record) int {
		switch key {
		case ByMoney:
			return r.Money
		case ByExp:
			return r.Exp
		case ByLevel:
			return r.Level
		case ByAffection:
			return r.Affection
		case ByStreak:
			return r.Streak
		case ByAchievements:
			return len(r.Achievements)
		case ByFlags:
			return len(r.Flags)
		}
		return 0
	}

	// All() is already in Seq order; a stable sort keeps that as the tie-break.
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Flush persists the current snapshot. Called once at shutdown; routine
// writes already persist through Update.
func (s *Store) Flush() error {
	s.mu.RLock()
	snapshot := s.snapshotLocked()
	s.mu.RUnlock()
	return s.persist(snapshot)
}

// snapshotLocked marshals the full store. Caller holds mu (read or write).
func (s *Store) snapshotLocked() []byte {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		// Records are plain JSON-safe structs; this cannot fail in practice.
		slog.Error("entity store marshal failed", "error", err)
		return nil
	}
	return data
}

// persist writes a snapshot atomically: temp file in the same directory, then
// rename over the target. In-memory state is never rolled back on failure.
func (s *Store) persist(snapshot []byte) error {
	if snapshot == nil {
		return fmt.Errorf("persist entity store: nil snapshot")
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.StorePersistErrors.Inc()
		return fmt.Errorf("persist entity store: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".entities-*.json")
	if err != nil {
		metrics.StorePersistErrors.Inc()
		return fmt.Errorf("persist entity store: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		metrics.StorePersistErrors.Inc()
		return fmt.Errorf("persist entity store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		metrics.StorePersistErrors.Inc()
		return fmt.Errorf("persist entity store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		metrics.StorePersistErrors.Inc()
		return fmt.Errorf("persist entity store: rename: %w", err)
	}

	metrics.StorePersists.Inc()
	return nil
}
