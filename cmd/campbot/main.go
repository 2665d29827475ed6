// Command campbot runs the community bot's systems core: the durable entity
// store, the pet mood state machine, the background behavior scheduler, the
// leaderboard reconciler, and the HTTP API the chat relay talks to.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/talgya/campcore/internal/ai"
	"github.com/talgya/campcore/internal/api"
	"github.com/talgya/campcore/internal/config"
	"github.com/talgya/campcore/internal/journal"
	"github.com/talgya/campcore/internal/leaderboard"
	"github.com/talgya/campcore/internal/mood"
	"github.com/talgya/campcore/internal/notify"
	"github.com/talgya/campcore/internal/pets"
	"github.com/talgya/campcore/internal/progress"
	"github.com/talgya/campcore/internal/sched"
	"github.com/talgya/campcore/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("campcore starting", "data_dir", cfg.DataDir, "tick", cfg.TickInterval)

	os.MkdirAll(cfg.DataDir, 0o755)

	// ── State ─────────────────────────────────────────────────────────
	entities := store.Open(cfg.StorePath)
	locks := store.NewKeyedMutex()

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		slog.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer jnl.Close()

	// ── Outbound ──────────────────────────────────────────────────────
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.RelayURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.RelayURL + "/notify")
	}

	client := ai.NewClient(cfg.AnthropicKey)
	if !client.Enabled() {
		slog.Warn("ANTHROPIC_API_KEY not set, AI features degraded to fallbacks")
	}

	// ── Features ──────────────────────────────────────────────────────
	machine := mood.New(entities, locks, client, notifier, jnl)

	scheduler := sched.New(cfg.TickInterval, machine.SweepTimeouts)
	petSvc := pets.New(entities, locks, machine, notifier, jnl, client)
	petSvc.RegisterTimers(scheduler, cfg.TimerWindows)

	defs := progress.LoadAchievements(cfg.AchievementsPath)
	progSvc := progress.New(entities, locks, notifier, jnl, defs, cfg.AnnounceAt)

	categories := leaderboard.DefaultCategories()
	index := leaderboard.LoadIndex(cfg.IndexPath)
	var renderer leaderboard.Renderer = leaderboard.NewLogRenderer()
	if relay := leaderboard.NewRelayRenderer(cfg.RelayURL); relay != nil {
		renderer = relay
	}
	reconciler := leaderboard.NewReconciler(entities, index, renderer, categories)

	// ── Serve ─────────────────────────────────────────────────────────
	server := &api.Server{
		Store:      entities,
		Journal:    jnl,
		Categories: categories,
		Port:       cfg.APIPort,
		AdminKey:   cfg.AdminKey,
		Ingress: &api.Ingress{
			Mood:      machine,
			Pets:      petSvc,
			Progress:  progSvc,
			Scheduler: scheduler,
		},
	}
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		reconciler.Run(ctx, cfg.ReconcileInterval)
	}()

	slog.Info("campcore ready", "entities", entities.Len())

	// ── Shutdown ──────────────────────────────────────────────────────
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	cancel()
	// An in-flight tick or reconcile finishes its critical sections before the
	// final flush; nothing exits mid-mutation.
	loops.Wait()
	if err := entities.Flush(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("goodbye")
}
