// Package pets implements the collectible-pet feature: adoption, feeding,
// playing, and the background behaviors the scheduler fires for every pet
// owner. A pet lives on its owner's entity record; the mood machine owns the
// sad-pet episode that the mood_drop behavior opens.
package pets

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/campcore/internal/ai"
	"github.com/talgya/campcore/internal/journal"
	"github.com/talgya/campcore/internal/mood"
	"github.com/talgya/campcore/internal/notify"
	"github.com/talgya/campcore/internal/sched"
	"github.com/talgya/campcore/internal/store"
)

// Behavior kinds fired by the scheduler for each pet owner.
const (
	EventGift     sched.EventKind = "gift"
	EventDance    sched.EventKind = "dance"
	EventTreasure sched.EventKind = "treasure"
	EventNap      sched.EventKind = "nap"
	EventMoodDrop sched.EventKind = "mood_drop"
)

const (
	adoptionAffection = 10
	feedCooldown      = 8 * time.Hour
	playCooldown      = 6 * time.Hour
	comfortTimeout    = 300 * time.Second
)

// toyGains maps each toy to its affection reward.
var toyGains = map[string]int{
	"red ball":    2,
	"blue ball":   3,
	"squeaky toy": 4,
}

// CooldownError reports how long until an action is available again.
type CooldownError struct {
	Action string
	Until  time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s is on cooldown for %s", e.Action, humanize.Time(time.Now().Add(e.Until)))
}

// Service coordinates pet state changes over the shared store.
type Service struct {
	store    *store.Store
	locks    *store.KeyedMutex
	mood     *mood.Machine
	notifier notify.Notifier
	journal  *journal.Journal
	client   *ai.Client

	now func() time.Time
}

// New wires the pet service.
func New(st *store.Store, locks *store.KeyedMutex, m *mood.Machine, n notify.Notifier, jnl *journal.Journal, client *ai.Client) *Service {
	return &Service{
		store:    st,
		locks:    locks,
		mood:     m,
		notifier: n,
		journal:  jnl,
		client:   client,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Adopt gives id a pet named name, homed at origin. An owner has at most one
// pet; re-adopting is an error.
func (s *Service) Adopt(id, displayName, name, origin string) (*store.PetProfile, error) {
	var profile *store.PetProfile

	err := s.locks.WithLock(id, func() error {
		rec := s.store.GetOrCreate(id, displayName)
		if rec.Pet != nil {
			return fmt.Errorf("adopt: %s already has a pet named %s", id, rec.Pet.Name)
		}

		rec.Pet = &store.PetProfile{
			Name:        name,
			Personality: ai.GeneratePersonality(s.client, name),
			Emoji:       ai.PickEmoji(),
			Origin:      origin,
			AdoptedAt:   s.now(),
		}
		rec.Affection = adoptionAffection
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("adopt: %w", err)
		}
		profile = rec.Pet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.journal.Append(id, "pet_adopted", name)
	s.notify(origin, fmt.Sprintf("%s **%s** has joined the family! %s", profile.Emoji, name, profile.Personality))
	return profile, nil
}

// Feed feeds the pet for a random affection gain of 2-4. Eight hour cooldown.
func (s *Service) Feed(id string) (gain int, err error) {
	err = s.locks.WithLock(id, func() error {
		rec := s.store.Get(id)
		if rec == nil || rec.Pet == nil {
			return fmt.Errorf("feed: %s has no pet", id)
		}
		if rec.Pet.LastFed != nil {
			if remaining := feedCooldown - s.now().Sub(*rec.Pet.LastFed); remaining > 0 {
				return &CooldownError{Action: "feeding", Until: remaining}
			}
		}

		gain = 2 + rand.Intn(3)
		rec.AddAffection(gain)
		now := s.now()
		rec.Pet.LastFed = &now
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("feed: %w", err)
		}

		s.journal.Append(id, "pet_fed", fmt.Sprintf("affection +%d", gain))
		s.notify(rec.Pet.Origin, fmt.Sprintf("%s **%s** eats happily! Affection +%d (now %d).",
			rec.Pet.Emoji, rec.Pet.Name, gain, rec.Affection))
		return nil
	})
	return gain, err
}

// Play plays one round with the named toy. Six hour cooldown; the toy picks
// the affection gain.
func (s *Service) Play(id, toy string) (gain int, err error) {
	reward, ok := toyGains[toy]
	if !ok {
		return 0, fmt.Errorf("play: unknown toy %q", toy)
	}

	err = s.locks.WithLock(id, func() error {
		rec := s.store.Get(id)
		if rec == nil || rec.Pet == nil {
			return fmt.Errorf("play: %s has no pet", id)
		}
		if rec.Pet.LastPlayed != nil {
			if remaining := playCooldown - s.now().Sub(*rec.Pet.LastPlayed); remaining > 0 {
				return &CooldownError{Action: "playing", Until: remaining}
			}
		}

		gain = reward
		rec.AddAffection(gain)
		now := s.now()
		rec.Pet.LastPlayed = &now
		if err := s.store.Update(id, rec); err != nil {
			return fmt.Errorf("play: %w", err)
		}

		s.journal.Append(id, "pet_played", fmt.Sprintf("%s affection +%d", toy, gain))
		s.notify(rec.Pet.Origin, fmt.Sprintf("%s **%s** had a great time with the %s! Affection +%d (now %d).",
			rec.Pet.Emoji, rec.Pet.Name, toy, gain, rec.Affection))
		return nil
	})
	return gain, err
}

// Status returns a copy of id's pet profile and current affection.
func (s *Service) Status(id string) (*store.PetProfile, int, error) {
	rec := s.store.Get(id)
	if rec == nil || rec.Pet == nil {
		return nil, 0, fmt.Errorf("status: %s has no pet", id)
	}
	return rec.Pet, rec.Affection, nil
}

// RegisterTimers binds every pet behavior kind on the scheduler and tracks
// all current pet owners. Called once at startup; newly adopted pets are
// tracked by the caller after Adopt.
func (s *Service) RegisterTimers(sc *sched.Scheduler, windows map[sched.EventKind]sched.Window) {
	kinds := []sched.EventKind{EventGift, EventDance, EventTreasure, EventNap, EventMoodDrop}
	for _, kind := range kinds {
		w, ok := windows[kind]
		if !ok {
			continue
		}
		k := kind
		sc.Register(k, w, func(entityID string) { s.handleEvent(entityID, k) })
	}

	for _, rec := range s.store.All() {
		if rec.Pet != nil {
			sc.Track(rec.ID)
		}
	}
}

// handleEvent runs one fired behavior for one pet owner.
func (s *Service) handleEvent(id string, kind sched.EventKind) {
	rec := s.store.Get(id)
	if rec == nil || rec.Pet == nil {
		return
	}

	if kind == EventMoodDrop {
		if err := s.mood.Open(id, rec.Pet.Origin, comfortTimeout); err != nil {
			slog.Error("mood drop failed", "entity", id, "error", err)
		}
		return
	}

	line := ai.BehaviorLine(s.client, rec.Pet.Name, rec.Pet.Personality, string(kind))
	s.notify(rec.Pet.Origin, fmt.Sprintf("%s **%s** %s", rec.Pet.Emoji, rec.Pet.Name, line))

	delta := 0
	switch kind {
	case EventGift, EventDance:
		delta = 1
	case EventTreasure:
		delta = 2
	}
	if delta > 0 {
		if err := s.locks.WithLock(id, func() error {
			cur := s.store.Get(id)
			if cur == nil || cur.Pet == nil {
				return nil
			}
			cur.AddAffection(delta)
			return s.store.Update(id, cur)
		}); err != nil {
			slog.Error("behavior reward failed", "entity", id, "kind", kind, "error", err)
		}
	}

	s.journal.Append(id, "pet_event", string(kind))
}

func (s *Service) notify(location, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(location, text); err != nil {
		slog.Warn("pet notification failed", "location", location, "error", err)
	}
}
