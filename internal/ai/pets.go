package ai

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

// personalityTemplates seed personality generation and serve as the fallback
// when the API is unavailable.
var personalityTemplates = []string{
	"lively and curious, always exploring something new",
	"gentle and affectionate, never far from its owner",
	"clever and alert, notices everything around it",
	"lazy and sleepy, a connoisseur of long naps",
	"mischievous, forever getting into unexpected trouble",
	"elegant and dignified, with impeccable manners",
	"brave and loyal, protecting its owner above all",
	"shy and reserved, slow to warm up to strangers",
}

var petEmojis = []string{"🐱", "🐶", "🐰", "🐹", "🦊", "🐼", "🐻", "🐺", "🦁", "🐯"}

// fallbackBehaviors covers every timed event kind when the API is down.
var fallbackBehaviors = map[string]string{
	"gift":      "brought you a little something it found! (´▽｀)",
	"dance":     "is doing a happy wiggle dance!",
	"treasure":  "dug up something shiny and dropped it at your feet!",
	"nap":       "curled up into a tiny ball and drifted off to sleep… zzz",
	"mood_drop": "is looking at you with big sad eyes…",
}

// GeneratePersonality asks the model for a short pet personality blurb seeded
// from a random template. Falls back to the template itself on any failure.
func GeneratePersonality(c *Client, petName string) string {
	base := personalityTemplates[rand.Intn(len(personalityTemplates))]
	if !c.Enabled() {
		return fmt.Sprintf("I'm %s, a pet who is %s!", petName, base)
	}

	prompt := fmt.Sprintf(
		"Write a 1-2 sentence personality description for a virtual pet named %s. "+
			"Base temperament: %s. Write it in the pet's own voice, playful, no hashtags.",
		petName, base)
	text, err := c.Complete("", prompt, 200)
	if err != nil || strings.TrimSpace(text) == "" {
		return fmt.Sprintf("I'm %s, a pet who is %s!", petName, base)
	}
	return strings.TrimSpace(text)
}

// PickEmoji picks a random face for a new pet.
func PickEmoji() string {
	return petEmojis[rand.Intn(len(petEmojis))]
}

// BehaviorLine narrates one timed pet event in the pet's voice. Falls back to
// a canned line per event kind.
func BehaviorLine(c *Client, petName, personality, kind string) string {
	fallback := fallbackBehaviors[kind]
	if fallback == "" {
		fallback = "is being adorable! (´▽｀)"
	}
	if !c.Enabled() {
		return fallback
	}

	prompt := fmt.Sprintf(
		"You are a virtual pet named %s. Personality: %s\n"+
			"Narrate, in one short sentence and third person, the pet doing this: %s. "+
			"Keep it cute and under 25 words.",
		petName, personality, kind)
	text, err := c.Complete("", prompt, 120)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(text)
}

// analysis is the model's judgment of a comfort message.
type analysis struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// AnalyzeResponseQuality scores how well a caretaker's message comforts the
// pet. Scores range from -1 (dismissive) through +1 (minimal effort) up to +5
// (genuinely heartfelt). Returns an error when the API is unavailable or the
// reply is malformed; callers fall back to a neutral score.
func (c *Client) AnalyzeResponseQuality(petName, personality, text string) (int, string, error) {
	if !c.Enabled() {
		return 0, "", fmt.Errorf("AI client not configured")
	}

	system := "You judge how comforting a message is to a sad virtual pet. " +
		"Reply with ONLY a JSON object: {\"score\": <int>, \"reasoning\": \"<one short sentence>\"}. " +
		"Scale: 5 = heartfelt and personal, 3 = warm and kind, 2 = decent effort, " +
		"1 = minimal acknowledgement, -1 = dismissive or mean."
	prompt := fmt.Sprintf("Pet: %s\nPersonality: %s\nOwner's message: %q", petName, personality, text)

	reply, err := c.Complete(system, prompt, 200)
	if err != nil {
		return 0, "", err
	}

	var result analysis
	if err := json.Unmarshal([]byte(extractJSON(reply)), &result); err != nil {
		return 0, "", fmt.Errorf("parse analysis: %w", err)
	}
	return result.Score, result.Reasoning, nil
}

// extractJSON trims any prose the model wrapped around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
