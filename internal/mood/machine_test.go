package mood

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/talgya/campcore/internal/store"
)

var errAnalyzer = errors.New("analyzer unavailable")

type fixedAnalyzer struct {
	score int
	err   error
}

func (f fixedAnalyzer) AnalyzeResponseQuality(petName, personality, text string) (int, string, error) {
	return f.score, "fixed", f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	where []string
}

func (r *recordingNotifier) Notify(location, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.where = append(r.where, location)
	return nil
}

func newMachine(t *testing.T, analyzer Analyzer) (*Machine, *store.Store, *recordingNotifier) {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "entities.json"))
	notifier := &recordingNotifier{}
	m := New(st, store.NewKeyedMutex(), analyzer, notifier, nil)
	return m, st, notifier
}

func adoptPet(t *testing.T, st *store.Store, id string) {
	t.Helper()
	rec := st.GetOrCreate(id, id)
	rec.Pet = &store.PetProfile{Name: "Mochi", Personality: "gentle", Origin: "thread-1"}
	rec.Affection = 10
	if err := st.Update(id, rec); err != nil {
		t.Fatalf("seed pet: %v", err)
	}
}

func TestResolveBeforeTimeout(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{score: 3})
	adoptPet(t, st, "u1")

	if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Get("u1").Mood == nil {
		t.Fatal("episode not recorded")
	}

	outcome, delta, err := m.TryResolve("u1", "there there, it's okay")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if outcome != OutcomeResolved || delta != 3 {
		t.Fatalf("outcome=%v delta=%d, want resolved +3", outcome, delta)
	}

	rec := st.Get("u1")
	if rec.Mood != nil {
		t.Fatal("episode still open after resolution")
	}
	if rec.Affection != 13 {
		t.Fatalf("affection = %d, want 13", rec.Affection)
	}

	// Sweeping after resolution must be a no-op even far in the future.
	m.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	m.SweepTimeouts()
	if got := st.Get("u1").Affection; got != 13 {
		t.Fatalf("sweep after resolution changed affection: %d", got)
	}
}

func TestTimeoutAppliesPenaltyOnce(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{score: 5})
	adoptPet(t, st, "u1")

	base := time.Now()
	now := base
	m.SetClock(func() time.Time { return now })

	if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Not yet expired: sweep must leave the episode open.
	now = base.Add(299 * time.Second)
	m.SweepTimeouts()
	if st.Get("u1").Mood == nil {
		t.Fatal("sweep closed an unexpired episode")
	}

	now = base.Add(301 * time.Second)
	m.SweepTimeouts()

	rec := st.Get("u1")
	if rec.Mood != nil {
		t.Fatal("expired episode not closed")
	}
	if rec.Affection != 8 {
		t.Fatalf("affection = %d, want 8 after -2 penalty", rec.Affection)
	}

	// A late response must be a defined no-op.
	outcome, delta, err := m.TryResolve("u1", "sorry I'm late!")
	if err != nil {
		t.Fatalf("late resolve: %v", err)
	}
	if outcome != OutcomeNoEpisode || delta != 0 {
		t.Fatalf("late response scored: outcome=%v delta=%d", outcome, delta)
	}
	if got := st.Get("u1").Affection; got != 8 {
		t.Fatalf("late response changed affection: %d", got)
	}
}

func TestTimeoutPenaltyClampsAtZero(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{score: 1})
	adoptPet(t, st, "u1")

	rec := st.Get("u1")
	rec.Affection = 1
	if err := st.Update("u1", rec); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	now := base
	m.SetClock(func() time.Time { return now })

	if err := m.Open("u1", "thread-1", 10*time.Second); err != nil {
		t.Fatalf("open: %v", err)
	}
	now = base.Add(time.Minute)
	m.SweepTimeouts()

	if got := st.Get("u1").Affection; got != 0 {
		t.Fatalf("affection = %d, want clamp at 0", got)
	}
}

func TestOpenIsIdempotentWhileOpen(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{score: 1})
	adoptPet(t, st, "u1")

	if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatal(err)
	}
	first := st.Get("u1").Mood.EpisodeID

	if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatal(err)
	}
	if got := st.Get("u1").Mood.EpisodeID; got != first {
		t.Fatal("second Open replaced the live episode")
	}
}

func TestAnalyzerFailureScoresNeutral(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{err: errAnalyzer})
	adoptPet(t, st, "u1")

	if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatal(err)
	}
	_, delta, err := m.TryResolve("u1", "hello")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if delta != NeutralScore {
		t.Fatalf("delta = %d, want neutral %d", delta, NeutralScore)
	}
}

func TestScoreClamping(t *testing.T) {
	for _, tc := range []struct{ raw, want int }{
		{raw: 100, want: ScoreMax},
		{raw: -100, want: ScoreMin},
		{raw: 4, want: 4},
	} {
		m, st, _ := newMachine(t, fixedAnalyzer{score: tc.raw})
		adoptPet(t, st, "u1")
		if err := m.Open("u1", "thread-1", 300*time.Second); err != nil {
			t.Fatal(err)
		}
		_, delta, _ := m.TryResolve("u1", "hey")
		if delta != tc.want {
			t.Fatalf("raw %d: delta = %d, want %d", tc.raw, delta, tc.want)
		}
	}
}

func TestConcurrentResolveAndSweepClosesOnce(t *testing.T) {
	m, st, _ := newMachine(t, fixedAnalyzer{score: 2})
	adoptPet(t, st, "u1")

	base := time.Now()
	now := base
	m.SetClock(func() time.Time { return now })

	for i := 0; i < 20; i++ {
		if err := m.Open("u1", "thread-1", 5*time.Second); err != nil {
			t.Fatal(err)
		}
		before := st.Get("u1").Affection

		// Race the response against the expired sweep.
		now = base.Add(time.Duration(i+1) * time.Minute)
		var wg sync.WaitGroup
		outcomes := make([]Outcome, 2)
		deltas := make([]int, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcomes[0], deltas[0], _ = m.TryResolve("u1", "it's okay")
		}()
		go func() {
			defer wg.Done()
			m.SweepTimeouts()
		}()
		wg.Wait()

		rec := st.Get("u1")
		if rec.Mood != nil {
			t.Fatal("episode left open after race")
		}

		// Exactly one path applied its delta.
		want := 0
		if outcomes[0] == OutcomeResolved {
			want = before + deltas[0]
		} else {
			want = before + TimeoutPenalty
		}
		if want < 0 {
			want = 0
		}
		if rec.Affection != want {
			t.Fatalf("round %d: affection = %d, want %d (resolved=%v)", i, rec.Affection, want, outcomes[0] == OutcomeResolved)
		}
	}
}
