// Package sched provides the background timer loop. One goroutine ticks at a
// coarse fixed interval; each tick first runs the mood timeout sweep, then
// fires every per-entity timer that has come due and reschedules it with a
// freshly randomized offset. Randomized offsets keep entities from drifting
// into synchronized bursts of side effects.
package sched

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/campcore/internal/metrics"
)

// EventKind names one class of per-entity timed event.
type EventKind string

// Handler runs one fired event for one entity. Handlers may block on
// external calls; a slow handler delays its own timer, never duplicates it.
type Handler func(entityID string)

// Window bounds the random delay before an event kind fires again.
type Window struct {
	Min time.Duration
	Max time.Duration
}

type timerKey struct {
	entity string
	kind   EventKind
}

// Scheduler owns the timer table. The table is in-memory only: it is rebuilt
// with fresh offsets on every process start. Only the mood episode itself
// (which carries a reward obligation) is persisted, on the entity record.
type Scheduler struct {
	tick  time.Duration
	sweep func() // timeout sweep, runs first each tick

	mu       sync.Mutex
	windows  map[EventKind]Window
	handlers map[EventKind]Handler
	next     map[timerKey]time.Time
	inFlight map[timerKey]bool

	rng *rand.Rand
	now func() time.Time
}

// New creates a scheduler ticking every tick, running sweep at the start of
// each tick. sweep may be nil.
func New(tick time.Duration, sweep func()) *Scheduler {
	return &Scheduler{
		tick:     tick,
		sweep:    sweep,
		windows:  make(map[EventKind]Window),
		handlers: make(map[EventKind]Handler),
		next:     make(map[timerKey]time.Time),
		inFlight: make(map[timerKey]bool),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Register binds an event kind to its reschedule window and handler.
func (s *Scheduler) Register(kind EventKind, w Window, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[kind] = w
	s.handlers[kind] = h
}

// Track schedules every registered event kind for entityID, each with an
// independent random first offset. Re-tracking an entity leaves existing
// timers alone.
func (s *Scheduler) Track(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for kind, w := range s.windows {
		key := timerKey{entityID, kind}
		if _, ok := s.next[key]; !ok {
			s.next[key] = now.Add(s.offset(w))
		}
	}
}

// Pending returns the number of scheduled timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.next)
}

// Run drives the loop until ctx is cancelled. An in-flight tick always
// finishes before Run returns, so no handler is abandoned mid-mutation.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.step()
		}
	}
}

// step runs one tick: sweep, then fire everything due. A timer fires at most
// once per tick no matter how many windows have elapsed, and is rescheduled
// from "now" — there is never a catch-up backlog.
func (s *Scheduler) step() {
	metrics.SchedulerTicks.Inc()

	if s.sweep != nil {
		s.sweep()
	}

	now := s.now()

	s.mu.Lock()
	var due []timerKey
	for key, at := range s.next {
		if !at.After(now) && !s.inFlight[key] {
			due = append(due, key)
			s.inFlight[key] = true
		}
	}
	s.mu.Unlock()

	for _, key := range due {
		s.fire(key)
	}
}

// fire runs one due timer's handler and reschedules it from the current time.
func (s *Scheduler) fire(key timerKey) {
	s.mu.Lock()
	handler := s.handlers[key.kind]
	s.mu.Unlock()

	metrics.TimerFires.WithLabelValues(string(key.kind)).Inc()
	if handler != nil {
		handler(key.entity)
	}

	s.mu.Lock()
	s.next[key] = s.now().Add(s.offset(s.windows[key.kind]))
	delete(s.inFlight, key)
	s.mu.Unlock()
}

// offset draws a uniform random delay in [Min, Max]. Caller holds mu.
func (s *Scheduler) offset(w Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(s.rng.Int63n(int64(w.Max-w.Min)+1))
}
