// Package metrics registers the Prometheus counters the core exposes on
// /metrics. Counters only — the point is spotting stuck schedulers and
// failing persists, not a full observability stack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StorePersists = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_store_persists_total",
		Help: "Successful whole-store writes of the entity file.",
	})
	StorePersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_store_persist_errors_total",
		Help: "Failed attempts to write the entity file.",
	})

	EpisodesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_mood_episodes_opened_total",
		Help: "Mood episodes opened by the scheduler.",
	})
	EpisodesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_mood_episodes_resolved_total",
		Help: "Mood episodes closed by a caretaker response.",
	})
	EpisodesTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_mood_episodes_timed_out_total",
		Help: "Mood episodes closed by the timeout sweep.",
	})

	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_scheduler_ticks_total",
		Help: "Scheduler loop iterations.",
	})
	TimerFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campcore_timer_fires_total",
		Help: "Per-entity timer events fired, by kind.",
	}, []string{"kind"})

	LeaderboardRenders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_leaderboard_renders_total",
		Help: "Successful leaderboard create/update renders.",
	})
	LeaderboardErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campcore_leaderboard_errors_total",
		Help: "Failed leaderboard render attempts.",
	})
)
