// Package store provides the durable per-entity record store shared by every
// feature module: a concurrency-safe map from entity ID to record, mirrored to
// a single JSON file, plus the per-entity mutation locks layered on top of it.
package store

import (
	"encoding/json"
	"time"
)

// Record is one entity's durable state. An entity is a user or a user-owned
// pet owner; records are created lazily on first reference and never deleted.
type Record struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	Level       int    `json:"lv"`
	Exp         int    `json:"exp"`
	Money       int    `json:"money"`
	Affection   int    `json:"affection"`
	LastCheckIn string `json:"last_sign_in"` // ISO date of last daily check-in, "" = never
	Streak      int    `json:"sign_in_streak"`

	Achievements []string `json:"achievements"`
	Flags        []string `json:"found_flags"`
	UsedFeatures []string `json:"used_features"`

	Pet  *PetProfile `json:"pet,omitempty"`
	Mood *MoodState  `json:"mood,omitempty"`

	// Seq is the record's creation sequence number, assigned once by the
	// store. Leaderboard ties are broken by ascending Seq so rankings are
	// deterministic.
	Seq int64 `json:"seq"`

	// Unknown fields from older or newer schema revisions. Carried through
	// load/persist untouched — the schema is additive, never destructive.
	extra map[string]json.RawMessage

	// Known keys actually present in the stored form. Nil for records built
	// in memory. Backfill uses this to add fields without overwriting
	// legitimate zero values.
	present map[string]bool
}

// PetProfile is the collectible-pet state attached to an owner's record.
type PetProfile struct {
	Name        string     `json:"name"`
	Personality string     `json:"personality"`
	Emoji       string     `json:"emoji"`
	Origin      string     `json:"origin"` // chat location ref for the pet's home thread
	AdoptedAt   time.Time  `json:"adopted_at"`
	LastFed     *time.Time `json:"last_fed,omitempty"`
	LastPlayed  *time.Time `json:"last_played,omitempty"`
}

// MoodState marks an open "needs attention" episode. At most one episode is
// open per entity; clearing it to nil is the only way an episode ends.
type MoodState struct {
	EpisodeID      string    `json:"episode_id"`
	StartedAt      time.Time `json:"started_at"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Origin         string    `json:"origin"`
}

// recordKeys lists every field the current schema understands. Anything else
// found in a stored record is preserved verbatim in extra.
var recordKeys = map[string]bool{
	"id": true, "display_name": true,
	"lv": true, "exp": true, "money": true, "affection": true,
	"last_sign_in": true, "sign_in_streak": true,
	"achievements": true, "found_flags": true, "used_features": true,
	"pet": true, "mood": true, "seq": true,
}

// recordAlias strips Record's methods so the default codec can be reused.
type recordAlias Record

// NewRecord builds the fully-populated default record shape. A fresh entity
// always gets every field, never a partial record.
func NewRecord(id, displayName string) *Record {
	return &Record{
		ID:           id,
		DisplayName:  displayName,
		Level:        1,
		Exp:          0,
		Money:        100,
		Affection:    0,
		LastCheckIn:  "",
		Streak:       0,
		Achievements: []string{},
		Flags:        []string{},
		UsedFeatures: []string{},
	}
}

// UnmarshalJSON decodes the known fields and stashes everything else in extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var a recordAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record(a)
	r.present = make(map[string]bool, len(raw))
	for key, val := range raw {
		if recordKeys[key] {
			r.present[key] = true
			continue
		}
		if r.extra == nil {
			r.extra = make(map[string]json.RawMessage)
		}
		r.extra[key] = val
	}
	return nil
}

// Backfill adds any fields missing relative to the current default schema,
// without overwriting values that were present (a stored zero stays zero).
// Each backfilled key is marked present, so a later Backfill never re-applies
// a default over progress committed since load. Returns true if the record
// changed and should be persisted.
func (r *Record) Backfill() bool {
	fill := func(key string) bool {
		if r.present == nil || r.present[key] {
			return false
		}
		r.present[key] = true
		return true
	}

	changed := false
	if fill("lv") {
		r.Level = 1
		changed = true
	}
	if fill("money") {
		r.Money = 100
		changed = true
	}
	if r.Achievements == nil {
		r.Achievements = []string{}
		if fill("achievements") {
			changed = true
		}
	}
	if r.Flags == nil {
		r.Flags = []string{}
		if fill("found_flags") {
			changed = true
		}
	}
	if r.UsedFeatures == nil {
		r.UsedFeatures = []string{}
		if fill("used_features") {
			changed = true
		}
	}
	return changed
}

// MarshalJSON re-emits the known fields merged with any preserved unknowns.
func (r *Record) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(recordAlias(*r))
	if err != nil {
		return nil, err
	}
	if len(r.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for key, val := range r.extra {
		if _, taken := merged[key]; !taken {
			merged[key] = val
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy. The store only ever hands out clones, so callers
// can mutate freely and commit through Update.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Achievements = append([]string(nil), r.Achievements...)
	cp.Flags = append([]string(nil), r.Flags...)
	cp.UsedFeatures = append([]string(nil), r.UsedFeatures...)
	if r.Pet != nil {
		pet := *r.Pet
		if r.Pet.LastFed != nil {
			t := *r.Pet.LastFed
			pet.LastFed = &t
		}
		if r.Pet.LastPlayed != nil {
			t := *r.Pet.LastPlayed
			pet.LastPlayed = &t
		}
		cp.Pet = &pet
	}
	if r.Mood != nil {
		mood := *r.Mood
		cp.Mood = &mood
	}
	if r.extra != nil {
		cp.extra = make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			cp.extra[k] = v
		}
	}
	if r.present != nil {
		cp.present = make(map[string]bool, len(r.present))
		for k, v := range r.present {
			cp.present[k] = v
		}
	}
	return &cp
}

// AddMoney applies a delta to the money counter, clamped at zero. Deltas are
// clamped at application time, never validated up front.
func (r *Record) AddMoney(delta int) {
	r.Money += delta
	if r.Money < 0 {
		r.Money = 0
	}
}

// AddAffection applies a delta to the pet affection counter, clamped at zero.
func (r *Record) AddAffection(delta int) {
	r.Affection += delta
	if r.Affection < 0 {
		r.Affection = 0
	}
}

// HasAchievement reports set membership.
func (r *Record) HasAchievement(id string) bool {
	return contains(r.Achievements, id)
}

// GrantAchievement adds an achievement; duplicates are ignored. Returns true
// if the set changed.
func (r *Record) GrantAchievement(id string) bool {
	if contains(r.Achievements, id) {
		return false
	}
	r.Achievements = append(r.Achievements, id)
	return true
}

// MarkFeatureUsed records first use of a feature. Returns true if the set changed.
func (r *Record) MarkFeatureUsed(name string) bool {
	if contains(r.UsedFeatures, name) {
		return false
	}
	r.UsedFeatures = append(r.UsedFeatures, name)
	return true
}

// AddFlag records a found easter-egg flag. Returns true if the set changed.
func (r *Record) AddFlag(name string) bool {
	if contains(r.Flags, name) {
		return false
	}
	r.Flags = append(r.Flags, name)
	return true
}

func contains(set []string, item string) bool {
	for _, s := range set {
		if s == item {
			return true
		}
	}
	return false
}
