// Package config reads runtime configuration from the environment. Every
// setting has a sensible default; the binary starts with zero configuration
// and degrades features whose keys are absent.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/talgya/campcore/internal/sched"
)

// Config holds all runtime settings.
type Config struct {
	DataDir          string
	StorePath        string
	IndexPath        string
	JournalPath      string
	AchievementsPath string

	TickInterval      time.Duration
	ReconcileInterval time.Duration
	TimerWindows      map[sched.EventKind]sched.Window

	APIPort  int
	AdminKey string

	AnthropicKey string
	RelayURL     string
	AnnounceAt   string
}

// Load builds the configuration from the environment.
func Load() Config {
	dataDir := getenv("CAMPCORE_DATA_DIR", "data")

	return Config{
		DataDir:          dataDir,
		StorePath:        filepath.Join(dataDir, "entities.json"),
		IndexPath:        filepath.Join(dataDir, "leaderboard_index.json"),
		JournalPath:      filepath.Join(dataDir, "journal.db"),
		AchievementsPath: filepath.Join(dataDir, "achievement.json"),

		TickInterval:      getduration("CAMPCORE_TICK_INTERVAL", 30*time.Second),
		ReconcileInterval: getduration("CAMPCORE_RECONCILE_INTERVAL", 5*time.Minute),
		TimerWindows:      defaultWindows(),

		APIPort:  getint("CAMPCORE_API_PORT", 8080),
		AdminKey: os.Getenv("CAMPCORE_ADMIN_KEY"),

		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		RelayURL:     os.Getenv("CAMPCORE_RELAY_URL"),
		AnnounceAt:   os.Getenv("CAMPCORE_ANNOUNCE_AT"),
	}
}

// defaultWindows mirrors the live bot's behavior cadence: mood drops every
// few hours, treasure hunts roughly daily, the rest spread through the day.
func defaultWindows() map[sched.EventKind]sched.Window {
	return map[sched.EventKind]sched.Window{
		"gift":      {Min: 3 * time.Hour, Max: 6 * time.Hour},
		"dance":     {Min: 3 * time.Hour, Max: 6 * time.Hour},
		"nap":       {Min: 2 * time.Hour, Max: 4 * time.Hour},
		"treasure":  {Min: 1400 * time.Minute, Max: 1500 * time.Minute},
		"mood_drop": {Min: 220 * time.Minute, Max: 260 * time.Minute},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
