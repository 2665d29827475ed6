// Package mood implements the per-pet episode state machine: Idle →
// AwaitingResponse → Idle. An episode opens when the scheduler fires a mood
// drop, and closes exactly once — either a caretaker response resolves it or
// the timeout sweep penalizes it. Both closing paths re-check the episode
// under the entity's lock, so whichever acquires the lock first wins and the
// loser observes a closed episode and no-ops.
package mood

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/campcore/internal/journal"
	"github.com/talgya/campcore/internal/metrics"
	"github.com/talgya/campcore/internal/notify"
	"github.com/talgya/campcore/internal/store"
)

// Score bounds and fixed deltas, matching the original bot's comfort tiers
// (poor -1 … excellent +5, ignored -2).
const (
	ScoreMin       = -1
	ScoreMax       = 5
	NeutralScore   = 1
	TimeoutPenalty = -2
)

// Analyzer judges the quality of a caretaker's response. Failures are treated
// as a neutral score, never as a reason to leave an episode open.
type Analyzer interface {
	AnalyzeResponseQuality(petName, personality, text string) (score int, reasoning string, err error)
}

// Outcome reports how a resolution attempt ended.
type Outcome int

const (
	// OutcomeNoEpisode means the episode was already closed by the other
	// path. A defined no-op, not an error.
	OutcomeNoEpisode Outcome = iota
	OutcomeResolved
	OutcomeTimedOut
)

// Machine drives episode transitions over the entity store.
type Machine struct {
	store    *store.Store
	locks    *store.KeyedMutex
	analyzer Analyzer
	notifier notify.Notifier
	journal  *journal.Journal

	now func() time.Time
}

// New wires a machine over the shared store and lock registry.
func New(st *store.Store, locks *store.KeyedMutex, analyzer Analyzer, notifier notify.Notifier, jnl *journal.Journal) *Machine {
	return &Machine{
		store:    st,
		locks:    locks,
		analyzer: analyzer,
		notifier: notifier,
		journal:  jnl,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *Machine) SetClock(now func() time.Time) { m.now = now }

// Open starts an episode for id: the entity is unhappy and awaits a caretaker
// response in origin within timeout. No-op if an episode is already open.
func (m *Machine) Open(id, origin string, timeout time.Duration) error {
	return m.locks.WithLock(id, func() error {
		rec := m.store.Get(id)
		if rec == nil {
			return fmt.Errorf("open episode: unknown entity %s", id)
		}
		if rec.Mood != nil {
			return nil // one episode at a time
		}

		rec.Mood = &store.MoodState{
			EpisodeID:      uuid.NewString(),
			StartedAt:      m.now(),
			TimeoutSeconds: int(timeout.Seconds()),
			Origin:         origin,
		}
		if err := m.store.Update(id, rec); err != nil {
			slog.Error("persist failed after opening episode", "entity", id, "error", err)
		}

		metrics.EpisodesOpened.Inc()
		m.journal.Append(id, "episode_opened", rec.Mood.EpisodeID)
		m.sendNotice(origin, fmt.Sprintf(
			"%s is feeling down and needs some comfort — say something kind within %d seconds!",
			subjectName(rec), rec.Mood.TimeoutSeconds))
		return nil
	})
}

// TryResolve handles a caretaker message posted in an open episode's origin.
// Returns the applied affection delta alongside the outcome. Called by the
// message-observation layer for every caretaker post; a closed episode is an
// expected no-op.
func (m *Machine) TryResolve(id, responseText string) (Outcome, int, error) {
	outcome := OutcomeNoEpisode
	delta := 0

	err := m.locks.WithLock(id, func() error {
		rec := m.store.Get(id)
		if rec == nil || rec.Mood == nil {
			return nil // already closed by the sweep (or never open)
		}

		delta = m.scoreResponse(rec, responseText)
		episodeID := rec.Mood.EpisodeID
		origin := rec.Mood.Origin

		rec.AddAffection(delta)
		rec.Mood = nil
		if err := m.store.Update(id, rec); err != nil {
			// In-memory state is committed; the next update rewrites the file.
			slog.Error("persist failed after resolving episode", "entity", id, "error", err)
		}
		outcome = OutcomeResolved

		// Side effects strictly after the durable clear, so a losing racer
		// can never see a notification for a state that still looks open.
		metrics.EpisodesResolved.Inc()
		m.journal.Append(id, "episode_resolved", fmt.Sprintf("%s delta=%+d", episodeID, delta))
		m.sendNotice(origin, fmt.Sprintf(
			"%s feels better! Affection %+d (now %d).", subjectName(rec), delta, rec.Affection))
		return nil
	})
	return outcome, delta, err
}

// SweepTimeouts closes every episode whose window has elapsed, applying the
// fixed penalty. Called by the scheduler each tick.
func (m *Machine) SweepTimeouts() {
	now := m.now()

	// Candidates from a snapshot; the decision is re-made under each lock.
	var due []string
	for _, rec := range m.store.All() {
		if rec.Mood != nil && m.expired(rec.Mood, now) {
			due = append(due, rec.ID)
		}
	}

	for _, id := range due {
		if _, _, err := m.timeOut(id); err != nil {
			slog.Error("timeout sweep failed", "entity", id, "error", err)
		}
	}
}

// timeOut closes one entity's episode with the fixed penalty, if it is still
// open and still expired once the lock is held.
func (m *Machine) timeOut(id string) (Outcome, int, error) {
	outcome := OutcomeNoEpisode
	delta := 0

	err := m.locks.WithLock(id, func() error {
		rec := m.store.Get(id)
		if rec == nil || rec.Mood == nil {
			return nil // a response got here first
		}
		if !m.expired(rec.Mood, m.now()) {
			return nil
		}

		episodeID := rec.Mood.EpisodeID
		origin := rec.Mood.Origin
		delta = TimeoutPenalty

		rec.AddAffection(delta)
		rec.Mood = nil
		if err := m.store.Update(id, rec); err != nil {
			slog.Error("persist failed after episode timeout", "entity", id, "error", err)
		}
		outcome = OutcomeTimedOut

		metrics.EpisodesTimedOut.Inc()
		m.journal.Append(id, "episode_timed_out", fmt.Sprintf("%s delta=%+d", episodeID, delta))
		m.sendNotice(origin, fmt.Sprintf(
			"%s waited and waited, but nobody came… Affection %d (now %d).",
			subjectName(rec), delta, rec.Affection))
		return nil
	})
	return outcome, delta, err
}

func (m *Machine) expired(ms *store.MoodState, now time.Time) bool {
	return now.Sub(ms.StartedAt) >= time.Duration(ms.TimeoutSeconds)*time.Second
}

// scoreResponse asks the analyzer for a quality score, clamped to the valid
// range. Analyzer failure yields the neutral score.
func (m *Machine) scoreResponse(rec *store.Record, text string) int {
	petName, personality := "", ""
	if rec.Pet != nil {
		petName = rec.Pet.Name
		personality = rec.Pet.Personality
	}

	if m.analyzer == nil {
		return NeutralScore
	}
	score, _, err := m.analyzer.AnalyzeResponseQuality(petName, personality, text)
	if err != nil {
		slog.Warn("response analysis failed, using neutral score", "entity", rec.ID, "error", err)
		return NeutralScore
	}
	if score < ScoreMin {
		score = ScoreMin
	}
	if score > ScoreMax {
		score = ScoreMax
	}
	return score
}

func (m *Machine) sendNotice(location, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(location, text); err != nil {
		slog.Warn("episode notification failed", "location", location, "error", err)
	}
}

func subjectName(rec *store.Record) string {
	if rec.Pet != nil && rec.Pet.Name != "" {
		return rec.Pet.Name
	}
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.ID
}
