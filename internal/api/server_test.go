package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/campcore/internal/leaderboard"
	"github.com/talgya/campcore/internal/mood"
	"github.com/talgya/campcore/internal/pets"
	"github.com/talgya/campcore/internal/progress"
	"github.com/talgya/campcore/internal/sched"
	"github.com/talgya/campcore/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "entities.json"))
	locks := store.NewKeyedMutex()
	machine := mood.New(st, locks, nil, nil, nil)
	petSvc := pets.New(st, locks, machine, nil, nil, nil)
	progSvc := progress.New(st, locks, nil, nil, map[string]progress.Achievement{}, "")

	srv := &Server{
		Store:      st,
		Journal:    nil,
		Categories: leaderboard.DefaultCategories(),
		AdminKey:   "secret",
		Ingress: &Ingress{
			Mood:      machine,
			Pets:      petSvc,
			Progress:  progSvc,
			Scheduler: sched.New(time.Second, nil),
		},
	}
	return srv, st
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	rec := st.GetOrCreate("u1", "Alice")
	rec.Money = 700
	if err := st.Update("u1", rec); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.handleLeaderboard(w, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard/money", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var out struct {
		Category string `json:"category"`
		Entries  []struct {
			Rank int    `json:"rank"`
			Name string `json:"name"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Category != "money" || len(out.Entries) != 1 || out.Entries[0].Name != "Alice" {
		t.Fatalf("unexpected payload: %s", w.Body.String())
	}
}

func TestLeaderboardUnknownCategory(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.handleLeaderboard(w, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard/bananas", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestEntityDetailNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.handleEntityDetail(w, httptest.NewRequest(http.MethodGet, "/api/v1/entity/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAdminAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.adminOnly(srv.handleFlush)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/api/v1/flush", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated POST: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flush", nil)
	req.Header.Set("Authorization", "Bearer secret")
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated POST: status = %d, want 200", w.Code)
	}
}

func TestMessageIngressResolvesEpisode(t *testing.T) {
	srv, st := newTestServer(t)

	// Seed a pet with an open episode.
	if _, err := srv.Ingress.Pets.Adopt("u1", "Alice", "Mochi", "thread-1"); err != nil {
		t.Fatal(err)
	}
	if err := srv.Ingress.Mood.Open("u1", "thread-1", 300*time.Second); err != nil {
		t.Fatal(err)
	}

	body := strings.NewReader(`{"entity_id": "u1", "display_name": "Alice", "text": "there there"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", body)
	req.Header.Set("Authorization", "Bearer secret")
	srv.adminOnly(srv.handleMessage)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var out struct {
		Resolved bool `json:"resolved"`
		Delta    int  `json:"delta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Resolved {
		t.Fatalf("episode not resolved: %s", w.Body.String())
	}
	if st.Get("u1").Mood != nil {
		t.Fatal("episode still open after ingress message")
	}
}

func TestMessageIngressRejectsEmptyText(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"entity_id": "u1", "display_name": "Alice"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", body)
	req.Header.Set("Authorization", "Bearer secret")
	srv.adminOnly(srv.handleMessage)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty text: status = %d, want 400", w.Code)
	}
}

func TestCommandIngressCheckin(t *testing.T) {
	srv, st := newTestServer(t)

	body := strings.NewReader(`{"entity_id": "u1", "display_name": "Alice", "command": "checkin"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	req.Header.Set("Authorization", "Bearer secret")
	srv.adminOnly(srv.handleCommand)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if st.Get("u1").Streak != 1 {
		t.Fatal("check-in did not apply")
	}

	// Same day again: conflict.
	body = strings.NewReader(`{"entity_id": "u1", "display_name": "Alice", "command": "checkin"}`)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	req.Header.Set("Authorization", "Bearer secret")
	srv.adminOnly(srv.handleCommand)(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat check-in: status = %d, want 409", w.Code)
	}
}

func TestCommandIngressUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"entity_id": "u1", "command": "explode"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	req.Header.Set("Authorization", "Bearer secret")
	srv.adminOnly(srv.handleCommand)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
