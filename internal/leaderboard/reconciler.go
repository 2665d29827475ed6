package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/campcore/internal/metrics"
	"github.com/talgya/campcore/internal/store"
)

// ErrNotFound is returned by Renderer.Update when the target output no longer
// exists (deleted on the platform side). The reconciler treats it as "recreate".
var ErrNotFound = errors.New("rendered output not found")

// Rendered is one previously rendered output discovered in channel history.
type Rendered struct {
	Ref     string
	Content string
}

// Renderer is the platform boundary for leaderboard output. Render creates a
// new output and returns its ref; Update edits an existing one in place;
// History lists the bot's own recent outputs so a cold start can re-bind to
// outputs whose refs the index lost.
type Renderer interface {
	Render(content string) (ref string, err error)
	Update(ref, content string) error
	History(limit int) ([]Rendered, error)
}

// Category is one ranking dimension with its presentation.
type Category struct {
	Name   string
	Title  string
	Key    store.SortKey
	Format func(r *store.Record) string
}

// DefaultCategories returns the standard board set.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:   "money",
			Title:  "💰 Money Leaderboard",
			Key:    store.ByMoney,
			Format: func(r *store.Record) string { return humanize.Comma(int64(r.Money)) + " coins" },
		},
		{
			Name:  "exp",
			Title: "⭐ Experience Leaderboard",
			Key:   store.ByExp,
			Format: func(r *store.Record) string {
				return fmt.Sprintf("Lv.%d · %s exp", r.Level, humanize.Comma(int64(r.Exp)))
			},
		},
		{
			Name:   "achievements",
			Title:  "🏆 Achievement Leaderboard",
			Key:    store.ByAchievements,
			Format: func(r *store.Record) string { return fmt.Sprintf("%d unlocked", len(r.Achievements)) },
		},
		{
			Name:  "flags",
			Title: "🚩 Flag Hunter Leaderboard",
			Key:   store.ByFlags,
			Format: func(r *store.Record) string {
				return fmt.Sprintf("%d flags found", len(r.Flags))
			},
		},
		{
			Name:   "affection",
			Title:  "💕 Pet Affection Leaderboard",
			Key:    store.ByAffection,
			Format: func(r *store.Record) string { return fmt.Sprintf("%d affection", r.Affection) },
		},
	}
}

// Reconciler drives each category's rendered output toward the current store
// contents. It creates a category's output at most once: afterwards it always
// edits in place, surviving restarts via the persisted index and, failing
// that, a history scan.
type Reconciler struct {
	store      *store.Store
	index      *Index
	renderer   Renderer
	categories []Category

	topN        int
	historyScan int

	scanned bool
	history []Rendered
}

// NewReconciler wires a reconciler over the store and index.
func NewReconciler(st *store.Store, idx *Index, r Renderer, categories []Category) *Reconciler {
	return &Reconciler{
		store:       st,
		index:       idx,
		renderer:    r,
		categories:  categories,
		topN:        10,
		historyScan: 50,
	}
}

// Run reconciles once immediately, then on every interval until ctx is
// cancelled.
func (rc *Reconciler) Run(ctx context.Context, interval time.Duration) {
	slog.Info("leaderboard reconciler started", "interval", interval, "categories", len(rc.categories))
	rc.RunOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("leaderboard reconciler stopped")
			return
		case <-ticker.C:
			rc.RunOnce()
		}
	}
}

// RunOnce reconciles every category against the current store contents.
func (rc *Reconciler) RunOnce() {
	for _, cat := range rc.categories {
		if err := rc.reconcile(cat); err != nil {
			metrics.LeaderboardErrors.Inc()
			slog.Warn("leaderboard reconcile failed", "category", cat.Name, "error", err)
		}
	}
}

func (rc *Reconciler) reconcile(cat Category) error {
	content := rc.compose(cat)

	ref, known := rc.index.Get(cat.Name)
	if !known {
		// The index may have been lost (fresh volume, corrupt file). Scan the
		// renderer's own recent outputs once per process and re-bind by title
		// before ever creating, so a lost index never duplicates a board.
		if found, ok := rc.discover(cat); ok {
			ref, known = found, true
			rc.index.Set(cat.Name, ref)
		}
	}

	if known {
		err := rc.renderer.Update(ref, content)
		if err == nil {
			metrics.LeaderboardRenders.Inc()
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			// Transient failure. Keep the ref; next run retries the edit.
			return fmt.Errorf("update %s: %w", ref, err)
		}
		slog.Info("leaderboard output vanished, recreating", "category", cat.Name, "ref", ref)
		rc.index.Drop(cat.Name)
	}

	newRef, err := rc.renderer.Render(content)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	rc.index.Set(cat.Name, newRef)
	metrics.LeaderboardRenders.Inc()
	return nil
}

// discover scans the renderer's recent outputs for one whose content starts
// with the category title. The history fetch runs at most once per process;
// every unbound category matches against the same snapshot.
func (rc *Reconciler) discover(cat Category) (string, bool) {
	if !rc.scanned {
		history, err := rc.renderer.History(rc.historyScan)
		if err != nil {
			slog.Warn("leaderboard history scan failed", "category", cat.Name, "error", err)
			return "", false
		}
		rc.scanned = true
		rc.history = history
	}
	for _, out := range rc.history {
		if strings.HasPrefix(out.Content, cat.Title) {
			return out.Ref, true
		}
	}
	return "", false
}

// compose formats one category's board text from the current top records.
func (rc *Reconciler) compose(cat Category) string {
	ranked := rc.store.Top(cat.Key, rc.topN)

	var b strings.Builder
	b.WriteString(cat.Title)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("_updated %s_\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC")))

	if len(ranked) == 0 {
		b.WriteString("Nobody here yet — be the first!")
		return b.String()
	}

	medals := []string{"🥇", "🥈", "🥉"}
	for i, rec := range ranked {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := rec.DisplayName
		if name == "" {
			name = rec.ID
		}
		b.WriteString(fmt.Sprintf("%s **%s** — %s\n", rank, name, cat.Format(rec)))
	}
	return b.String()
}
