// Package api provides the read-only HTTP API over the entity store and
// journal. GET endpoints are public observation; POST endpoints require a
// bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/campcore/internal/journal"
	"github.com/talgya/campcore/internal/leaderboard"
	"github.com/talgya/campcore/internal/store"
)

// Server serves entity state over HTTP.
type Server struct {
	Store      *store.Store
	Journal    *journal.Journal
	Categories []leaderboard.Category
	Ingress    *Ingress
	Port       int
	AdminKey   string // Bearer token for POST endpoints. Empty = POST disabled.

	startedAt time.Time
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.startedAt = time.Now()

	eventsLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/entities", s.handleEntities)
	mux.HandleFunc("/api/v1/entity/", s.handleEntityDetail)
	mux.HandleFunc("/api/v1/leaderboard/", s.handleLeaderboard)
	mux.HandleFunc("/api/v1/events", RateLimitMiddleware(eventsLimiter, s.handleEvents))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/flush", s.adminOnly(s.handleFlush))
	s.mount(mux)

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"entities":       s.Store.Len(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	type entitySummary struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Level     int    `json:"lv"`
		Money     int    `json:"money"`
		Affection int    `json:"affection"`
		HasPet    bool   `json:"has_pet"`
	}

	records := s.Store.All()
	out := make([]entitySummary, 0, len(records))
	for _, rec := range records {
		out = append(out, entitySummary{
			ID:        rec.ID,
			Name:      rec.DisplayName,
			Level:     rec.Level,
			Money:     rec.Money,
			Affection: rec.Affection,
			HasPet:    rec.Pet != nil,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleEntityDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/entity/")
	if id == "" {
		http.Error(w, "entity id required", http.StatusBadRequest)
		return
	}

	rec := s.Store.Get(id)
	if rec == nil {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/leaderboard/")

	for _, cat := range s.Categories {
		if cat.Name != name {
			continue
		}

		type rankedEntry struct {
			Rank  int    `json:"rank"`
			ID    string `json:"id"`
			Name  string `json:"name"`
			Value string `json:"value"`
		}

		ranked := s.Store.Top(cat.Key, 10)
		out := make([]rankedEntry, 0, len(ranked))
		for i, rec := range ranked {
			out = append(out, rankedEntry{
				Rank:  i + 1,
				ID:    rec.ID,
				Name:  rec.DisplayName,
				Value: cat.Format(rec),
			})
		}
		writeJSON(w, map[string]any{"category": name, "entries": out})
		return
	}
	http.Error(w, "unknown category", http.StatusNotFound)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var (
		entries []journal.Entry
		err     error
	)
	if entity := r.URL.Query().Get("entity"); entity != "" {
		entries, err = s.Journal.RecentForEntity(entity, limit)
	} else {
		entries, err = s.Journal.Recent(limit)
	}
	if err != nil {
		slog.Error("events query failed", "error", err)
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, entries)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.Flush(); err != nil {
		slog.Error("manual flush failed", "error", err)
		http.Error(w, "flush failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"flushed": true, "entities": s.Store.Len()})
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
