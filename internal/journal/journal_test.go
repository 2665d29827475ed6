package journal

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	j.Append("u1", "check_in", "streak=1")
	j.Append("u1", "episode_opened", "ep-1")
	j.Append("u2", "pet_fed", "affection +3")

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Kind != "pet_fed" || entries[2].Kind != "check_in" {
		t.Fatalf("ordering wrong: %v %v", entries[0].Kind, entries[2].Kind)
	}
}

func TestRecentForEntityFilters(t *testing.T) {
	j := openTestJournal(t)

	j.Append("u1", "check_in", "")
	j.Append("u2", "check_in", "")
	j.Append("u1", "level_up", "lv 1 -> 2")

	entries, err := j.RecentForEntity("u1", 10)
	if err != nil {
		t.Fatalf("recent for entity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.EntityID != "u1" {
			t.Fatalf("foreign entity leaked: %+v", e)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 10; i++ {
		j.Append("u1", "tick", "")
	}
	entries, err := j.Recent(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("limit ignored: %d", len(entries))
	}
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal

	j.Append("u1", "check_in", "")
	if entries, err := j.Recent(5); err != nil || entries != nil {
		t.Fatalf("nil journal: entries=%v err=%v", entries, err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
