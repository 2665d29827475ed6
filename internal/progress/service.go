package progress

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/campcore/internal/journal"
	"github.com/talgya/campcore/internal/notify"
	"github.com/talgya/campcore/internal/store"
)

// ErrAlreadyCheckedIn marks a repeat check-in on the same calendar day.
type ErrAlreadyCheckedIn struct {
	Date string
}

func (e *ErrAlreadyCheckedIn) Error() string {
	return fmt.Sprintf("already checked in on %s", e.Date)
}

// fortune is one draw from the daily fortune table.
type fortune struct {
	Label string
	Min   int
	Max   int
}

// fortunes runs from legendary down to mini; a draw picks uniformly.
var fortunes = []fortune{
	{"🌟 Legendary fortune!", 500, 1000},
	{"🚀 Super mega fortune!", 300, 500},
	{"🎊 Mega fortune!", 200, 300},
	{"😄 Great fortune!", 150, 200},
	{"😊 Good fortune!", 100, 150},
	{"🙂 Fair fortune!", 80, 120},
	{"🤔 Small fortune!", 60, 100},
	{"🤏 Mini fortune!", 50, 80},
}

// streakBonusPerDay is the extra money per consecutive check-in day.
const streakBonusPerDay = 5

// CheckInResult reports one successful daily check-in.
type CheckInResult struct {
	Fortune     string
	BaseReward  int
	Streak      int
	StreakBonus int
	Total       int
	Money       int
}

// Service coordinates progression state changes over the shared store.
type Service struct {
	store        *store.Store
	locks        *store.KeyedMutex
	notifier     notify.Notifier
	journal      *journal.Journal
	achievements map[string]Achievement
	announceAt   string

	now func() time.Time
}

// New wires the progression service. announceAt is the chat location for
// achievement and level-up announcements.
func New(st *store.Store, locks *store.KeyedMutex, n notify.Notifier, jnl *journal.Journal, defs map[string]Achievement, announceAt string) *Service {
	return &Service{
		store:        st,
		locks:        locks,
		notifier:     n,
		journal:      jnl,
		achievements: defs,
		announceAt:   announceAt,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CheckIn performs id's daily check-in: one per calendar day, streak
// continues only when yesterday was also checked in, reward is a fortune
// draw plus a streak bonus.
func (s *Service) CheckIn(id, displayName string) (*CheckInResult, error) {
	var result *CheckInResult

	err := s.locks.WithLock(id, func() error {
		rec := s.store.GetOrCreate(id, displayName)

		today := s.now().Format("2006-01-02")
		if rec.LastCheckIn == today {
			return &ErrAlreadyCheckedIn{Date: today}
		}

		yesterday := s.now().AddDate(0, 0, -1).Format("2006-01-02")
		streak := 1
		if rec.LastCheckIn == yesterday {
			streak = rec.Streak + 1
		}

		draw := fortunes[rand.Intn(len(fortunes))]
		base := draw.Min + rand.Intn(draw.Max-draw.Min+1)
		bonus := streak * streakBonusPerDay

		rec.AddMoney(base + bonus)
		rec.LastCheckIn = today
		rec.Streak = streak
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("check-in: %w", err)
		}

		result = &CheckInResult{
			Fortune:     draw.Label,
			BaseReward:  base,
			Streak:      streak,
			StreakBonus: bonus,
			Total:       base + bonus,
			Money:       rec.Money,
		}

		s.journal.Append(id, "check_in", fmt.Sprintf("streak=%d reward=%d", streak, base+bonus))

		if streak == 4 {
			s.awardLocked(rec, AchAttendance)
		}
		if streak >= 7 {
			s.awardLocked(rec, AchLuckyStreak)
		}
		if rec.Money >= richPlayerThreshold {
			s.awardLocked(rec, AchRichPlayer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddExperience grants exp to id and applies level-ups. Each level requires
// 10*level exp; overflow carries into the next level.
func (s *Service) AddExperience(id, displayName string, gain int) error {
	return s.locks.WithLock(id, func() error {
		rec := s.store.GetOrCreate(id, displayName)

		before := rec.Level
		rec.Exp += gain
		for rec.Exp >= 10*rec.Level {
			rec.Exp -= 10 * rec.Level
			rec.Level++
		}

		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("add experience: %w", err)
		}

		if rec.Level > before {
			s.journal.Append(id, "level_up", fmt.Sprintf("lv %d -> %d", before, rec.Level))
			s.announce(fmt.Sprintf("🎉 **%s** reached **Lv. %d**!", subjectName(rec), rec.Level))
		}
		return nil
	})
}

// MessageExp is the per-message experience hook: a random 1-3 exp gain.
func (s *Service) MessageExp(id, displayName string) error {
	return s.AddExperience(id, displayName, 1+rand.Intn(3))
}

// Award grants an achievement to id if it is defined and not yet held.
// Awarding is idempotent; the announcement fires only on the first grant.
func (s *Service) Award(id, achievementID string) (bool, error) {
	granted := false
	err := s.locks.WithLock(id, func() error {
		rec := s.store.Get(id)
		if rec == nil {
			return fmt.Errorf("award: unknown entity %s", id)
		}
		granted = s.awardLocked(rec, achievementID)
		return nil
	})
	return granted, err
}

// awardLocked mutates rec in place; the caller persists. Caller holds the
// entity lock.
func (s *Service) awardLocked(rec *store.Record, achievementID string) bool {
	def, defined := s.achievements[achievementID]
	if !defined {
		return false
	}
	if !rec.GrantAchievement(achievementID) {
		return false
	}
	if err := s.store.Update(rec.ID, rec); err != nil {
		slog.Error("persist failed after achievement", "entity", rec.ID, "achievement", achievementID, "error", err)
	}

	s.journal.Append(rec.ID, "achievement", achievementID)
	s.announce(fmt.Sprintf("🎉 **%s** unlocked **%s %s** — %s", subjectName(rec), def.Icon, def.Name, def.Description))
	return true
}

// TrackFeature records first use of a feature and checks the completionist
// achievement once the full required set is covered.
func (s *Service) TrackFeature(id, displayName, feature string) error {
	return s.locks.WithLock(id, func() error {
		rec := s.store.GetOrCreate(id, displayName)
		if !rec.MarkFeatureUsed(feature) {
			return nil
		}
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("track feature: %w", err)
		}

		if s.hasAllFeatures(rec) {
			s.awardLocked(rec, AchCompletionist)
		}
		return nil
	})
}

// AddFlag records a found easter-egg flag for id.
func (s *Service) AddFlag(id, displayName, flag string) (bool, error) {
	added := false
	err := s.locks.WithLock(id, func() error {
		rec := s.store.GetOrCreate(id, displayName)
		if !rec.AddFlag(flag) {
			return nil
		}
		added = true
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("add flag: %w", err)
		}
		s.journal.Append(id, "flag_found", flag)
		s.announce(fmt.Sprintf("🚩 **%s** found a flag! That makes %s.",
			subjectName(rec), humanize.Ordinal(len(rec.Flags))))
		return nil
	})
	return added, err
}

func (s *Service) hasAllFeatures(rec *store.Record) bool {
	used := make(map[string]bool, len(rec.UsedFeatures))
	for _, f := range rec.UsedFeatures {
		used[f] = true
	}
	for _, required := range completionistFeatures {
		if !used[required] {
			return false
		}
	}
	return true
}

func (s *Service) announce(text string) {
	if s.notifier == nil || s.announceAt == "" {
		return
	}
	if err := s.notifier.Notify(s.announceAt, text); err != nil {
		slog.Warn("announcement failed", "error", err)
	}
}

func subjectName(rec *store.Record) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.ID
}
