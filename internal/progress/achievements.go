// Package progress implements player progression: daily check-ins with
// streaks and fortune rewards, message experience with level-ups, and the
// achievement system with its feature-usage tracker.
package progress

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Achievement is one unlockable badge, defined in a data file so the set can
// change without a rebuild.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Well-known achievement IDs checked by code. The data file may define more;
// those are awarded through explicit Award calls.
const (
	AchAttendance    = "attendance_award" // 4-day check-in streak
	AchLuckyStreak   = "lucky_streak"     // 7-day check-in streak
	AchRichPlayer    = "rich_player"      // 10000 money
	AchCompletionist = "i_want_all"       // used every core feature
)

// richPlayerThreshold is the money total that unlocks rich_player.
const richPlayerThreshold = 10000

// completionistFeatures is the feature set required for i_want_all.
var completionistFeatures = []string{
	"profile",
	"checkin",
	"game_slot",
	"game_dice",
	"game_rps",
	"pet_comfort",
	"note_search",
	"links",
	"achievements",
	"egg",
}

// LoadAchievements reads the achievement definitions file. A missing or
// malformed file yields an empty set with a warning; award checks against an
// unknown ID are silent no-ops.
func LoadAchievements(path string) map[string]Achievement {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("achievement definitions unavailable, using empty set", "path", path, "error", err)
		return map[string]Achievement{}
	}

	var defs map[string]Achievement
	if err := json.Unmarshal(data, &defs); err != nil {
		slog.Warn("achievement definitions unparsable, using empty set", "path", path, "error", err)
		return map[string]Achievement{}
	}

	for id, def := range defs {
		def.ID = id
		defs[id] = def
	}
	slog.Info("achievement definitions loaded", "path", path, "count", len(defs))
	return defs
}
