package progress

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/campcore/internal/store"
)

func testDefs() map[string]Achievement {
	return map[string]Achievement{
		AchAttendance:    {ID: AchAttendance, Name: "Perfect Attendance", Icon: "📅"},
		AchLuckyStreak:   {ID: AchLuckyStreak, Name: "Lucky Streak", Icon: "🍀"},
		AchRichPlayer:    {ID: AchRichPlayer, Name: "Rich Player", Icon: "💰"},
		AchCompletionist: {ID: AchCompletionist, Name: "I Want It All", Icon: "🎯"},
	}
}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "entities.json"))
	svc := New(st, store.NewKeyedMutex(), nil, nil, testDefs(), "")
	return svc, st
}

func TestCheckInFirstDay(t *testing.T) {
	svc, st := newService(t)

	result, err := svc.CheckIn("u1", "Alice")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if result.Streak != 1 {
		t.Fatalf("streak = %d, want 1", result.Streak)
	}
	if result.StreakBonus != 5 {
		t.Fatalf("bonus = %d, want 5", result.StreakBonus)
	}
	if result.BaseReward < 50 || result.BaseReward > 1000 {
		t.Fatalf("base reward %d outside fortune table", result.BaseReward)
	}

	rec := st.Get("u1")
	if rec.Money != 100+result.Total {
		t.Fatalf("money = %d, want %d", rec.Money, 100+result.Total)
	}
}

func TestCheckInSameDayRejected(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.CheckIn("u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CheckIn("u1", "Alice")
	var repeat *ErrAlreadyCheckedIn
	if !errors.As(err, &repeat) {
		t.Fatalf("same-day check-in not rejected: %v", err)
	}
}

func TestCheckInStreakContinuesAndResets(t *testing.T) {
	svc, _ := newService(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.SetClock(func() time.Time { return now })

	if r, _ := svc.CheckIn("u1", "Alice"); r.Streak != 1 {
		t.Fatalf("day 1 streak = %d", r.Streak)
	}

	now = base.AddDate(0, 0, 1)
	if r, _ := svc.CheckIn("u1", "Alice"); r.Streak != 2 {
		t.Fatalf("consecutive day streak = %d, want 2", r.Streak)
	}

	// Skip a day: streak resets to 1.
	now = base.AddDate(0, 0, 3)
	if r, _ := svc.CheckIn("u1", "Alice"); r.Streak != 1 {
		t.Fatalf("streak after gap = %d, want 1", r.Streak)
	}
}

func TestStreakAchievements(t *testing.T) {
	svc, st := newService(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.SetClock(func() time.Time { return now })

	for day := 0; day < 7; day++ {
		now = base.AddDate(0, 0, day)
		if _, err := svc.CheckIn("u1", "Alice"); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
	}

	rec := st.Get("u1")
	if !rec.HasAchievement(AchAttendance) {
		t.Fatal("4-day streak achievement missing")
	}
	if !rec.HasAchievement(AchLuckyStreak) {
		t.Fatal("7-day streak achievement missing")
	}
}

func TestLevelUpCarriesOverflow(t *testing.T) {
	svc, st := newService(t)

	if err := svc.AddExperience("u1", "Alice", 25); err != nil {
		t.Fatal(err)
	}
	rec := st.Get("u1")
	if rec.Level != 2 || rec.Exp != 15 {
		t.Fatalf("lv=%d exp=%d, want lv=2 exp=15 (10 per level, overflow carried)", rec.Level, rec.Exp)
	}

	// 15 more puts exp at 30, enough for lv 3 (cost 20) with 10 left.
	if err := svc.AddExperience("u1", "Alice", 15); err != nil {
		t.Fatal(err)
	}
	rec = st.Get("u1")
	if rec.Level != 3 || rec.Exp != 10 {
		t.Fatalf("lv=%d exp=%d, want lv=3 exp=10", rec.Level, rec.Exp)
	}
}

func TestAwardIdempotent(t *testing.T) {
	svc, st := newService(t)
	st.GetOrCreate("u1", "Alice")

	granted, err := svc.Award("u1", AchRichPlayer)
	if err != nil || !granted {
		t.Fatalf("first award: granted=%v err=%v", granted, err)
	}
	granted, err = svc.Award("u1", AchRichPlayer)
	if err != nil || granted {
		t.Fatalf("second award: granted=%v err=%v", granted, err)
	}
	if got := len(st.Get("u1").Achievements); got != 1 {
		t.Fatalf("achievements = %d, want 1", got)
	}
}

func TestAwardUnknownAchievementIsNoop(t *testing.T) {
	svc, st := newService(t)
	st.GetOrCreate("u1", "Alice")

	granted, err := svc.Award("u1", "not_defined")
	if err != nil || granted {
		t.Fatalf("undefined award: granted=%v err=%v", granted, err)
	}
}

func TestCompletionistAwardedOnFullCoverage(t *testing.T) {
	svc, st := newService(t)

	for _, feature := range completionistFeatures[:len(completionistFeatures)-1] {
		if err := svc.TrackFeature("u1", "Alice", feature); err != nil {
			t.Fatal(err)
		}
	}
	if st.Get("u1").HasAchievement(AchCompletionist) {
		t.Fatal("completionist awarded early")
	}

	last := completionistFeatures[len(completionistFeatures)-1]
	if err := svc.TrackFeature("u1", "Alice", last); err != nil {
		t.Fatal(err)
	}
	if !st.Get("u1").HasAchievement(AchCompletionist) {
		t.Fatal("completionist not awarded at full coverage")
	}
}

func TestAddFlagDeduplicates(t *testing.T) {
	svc, st := newService(t)

	added, err := svc.AddFlag("u1", "Alice", "CAMP{first}")
	if err != nil || !added {
		t.Fatalf("first flag: added=%v err=%v", added, err)
	}
	added, err = svc.AddFlag("u1", "Alice", "CAMP{first}")
	if err != nil || added {
		t.Fatalf("duplicate flag: added=%v err=%v", added, err)
	}
	if got := len(st.Get("u1").Flags); got != 1 {
		t.Fatalf("flags = %d, want 1", got)
	}
}
