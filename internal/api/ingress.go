package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/talgya/campcore/internal/mood"
	"github.com/talgya/campcore/internal/pets"
	"github.com/talgya/campcore/internal/progress"
	"github.com/talgya/campcore/internal/sched"
)

// Ingress receives relay-forwarded chat activity: plain messages feed
// experience and open-episode resolution, commands invoke features.
type Ingress struct {
	Mood      *mood.Machine
	Pets      *pets.Service
	Progress  *progress.Service
	Scheduler *sched.Scheduler
}

// mount registers the ingress routes on mux behind auth.
func (s *Server) mount(mux *http.ServeMux) {
	if s.Ingress == nil {
		return
	}
	mux.HandleFunc("/api/v1/message", s.adminOnly(s.handleMessage))
	mux.HandleFunc("/api/v1/command", s.adminOnly(s.handleCommand))
}

type messageEvent struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
}

// handleMessage processes one chat message: grant message exp, then offer the
// text to the mood machine in case the entity has an open episode.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var ev messageEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.EntityID == "" || ev.Text == "" {
		http.Error(w, "entity_id and text required", http.StatusBadRequest)
		return
	}

	if err := s.Ingress.Progress.MessageExp(ev.EntityID, ev.DisplayName); err != nil {
		slog.Error("message exp failed", "entity", ev.EntityID, "error", err)
	}

	outcome, delta, err := s.Ingress.Mood.TryResolve(ev.EntityID, ev.Text)
	if err != nil {
		slog.Error("resolve attempt failed", "entity", ev.EntityID, "error", err)
		http.Error(w, "resolve failed", http.StatusInternalServerError)
		return
	}
	if outcome == mood.OutcomeResolved {
		if err := s.Ingress.Progress.TrackFeature(ev.EntityID, ev.DisplayName, "pet_comfort"); err != nil {
			slog.Error("feature tracking failed", "entity", ev.EntityID, "error", err)
		}
	}

	writeJSON(w, map[string]any{
		"resolved": outcome == mood.OutcomeResolved,
		"delta":    delta,
	})
}

type commandEvent struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name"`
	Command     string `json:"command"`
	Args        struct {
		PetName string `json:"pet_name"`
		Origin  string `json:"origin"`
		Toy     string `json:"toy"`
		Flag    string `json:"flag"`
		Feature string `json:"feature"`
	} `json:"args"`
}

// handleCommand dispatches one feature command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var ev commandEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.EntityID == "" || ev.Command == "" {
		http.Error(w, "entity_id and command required", http.StatusBadRequest)
		return
	}

	result, err := s.dispatch(ev)
	if err != nil {
		var cooldown *pets.CooldownError
		var repeat *progress.ErrAlreadyCheckedIn
		switch {
		case errors.As(err, &cooldown), errors.As(err, &repeat):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("command failed", "entity", ev.EntityID, "command", ev.Command, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, result)
}

func (s *Server) dispatch(ev commandEvent) (any, error) {
	in := s.Ingress
	switch ev.Command {
	case "checkin":
		result, err := in.Progress.CheckIn(ev.EntityID, ev.DisplayName)
		if err != nil {
			return nil, err
		}
		if err := in.Progress.TrackFeature(ev.EntityID, ev.DisplayName, "checkin"); err != nil {
			slog.Error("feature tracking failed", "entity", ev.EntityID, "error", err)
		}
		return result, nil

	case "adopt":
		profile, err := in.Pets.Adopt(ev.EntityID, ev.DisplayName, ev.Args.PetName, ev.Args.Origin)
		if err != nil {
			return nil, err
		}
		in.Scheduler.Track(ev.EntityID)
		return profile, nil

	case "feed":
		gain, err := in.Pets.Feed(ev.EntityID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"affection_gain": gain}, nil

	case "play":
		gain, err := in.Pets.Play(ev.EntityID, ev.Args.Toy)
		if err != nil {
			return nil, err
		}
		return map[string]any{"affection_gain": gain}, nil

	case "pet_status":
		profile, affection, err := in.Pets.Status(ev.EntityID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pet": profile, "affection": affection}, nil

	case "flag":
		added, err := in.Progress.AddFlag(ev.EntityID, ev.DisplayName, ev.Args.Flag)
		if err != nil {
			return nil, err
		}
		return map[string]any{"added": added}, nil

	case "feature":
		if err := in.Progress.TrackFeature(ev.EntityID, ev.DisplayName, ev.Args.Feature); err != nil {
			return nil, err
		}
		return map[string]any{"tracked": true}, nil
	}
	return nil, fmt.Errorf("unknown command %q", ev.Command)
}
