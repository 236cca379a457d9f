// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package concerns tracks the companion's ongoing awareness of the
// operator's projects, relationships, health, learning goals, recurring
// patterns and personal interests: signals from orientation and chat turns
// get folded into existing concerns or spawn new ones, salience decays with
// neglect, and the highest-priority subset is surfaced back into prompts.
package concerns

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/embercore/ember/pkg/store"
)

// Type is the closed set of concern categories a signal can resolve to.
type Type string

const (
	ProjectWork      Type = "ProjectWork"
	Relationship     Type = "Relationship"
	HealthWellbeing  Type = "HealthWellbeing"
	LearningGoal     Type = "LearningGoal"
	RecurringPattern Type = "RecurringPattern"
	PersonalInterest Type = "PersonalInterest"
)

// typeByKind maps a signal's free-text kind (case-folded) to a Type; an
// unrecognized kind defaults to PersonalInterest.
var typeByKind = map[string]Type{
	"project":    ProjectWork,
	"work":       ProjectWork,
	"relationship": Relationship,
	"health":     HealthWellbeing,
	"wellbeing":  HealthWellbeing,
	"learning":   LearningGoal,
	"goal":       LearningGoal,
	"pattern":    RecurringPattern,
	"recurring":  RecurringPattern,
	"interest":   PersonalInterest,
}

func inferType(kind string) Type {
	if t, ok := typeByKind[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return t
	}
	return PersonalInterest
}

// Salience is how actively a concern is being tracked.
type Salience string

const (
	Active     Salience = "Active"
	Monitoring Salience = "Monitoring"
	Background Salience = "Background"
	Dormant    Salience = "Dormant"
)

// rank orders Salience from most to least active, for priority sorting.
func (s Salience) rank() int {
	switch s {
	case Active:
		return 3
	case Monitoring:
		return 2
	case Background:
		return 1
	default:
		return 0
	}
}

// minConfidence is the ingest threshold below which a signal is discarded.
const minConfidence = 0.35

// Signal is one observation fed into Ingest, typically surfaced by the
// orientation engine or a chat turn.
type Signal struct {
	Kind              string
	Summary           string
	Confidence        float64
	KeyEvent          string
	RelatedMemoryKeys []string
	Notes             []string
	TouchOnly         bool
	// Metadata carries type-specific probes: project_name, category,
	// component, topic, trigger_condition, with_whom.
	Metadata map[string]string
}

// Concern is one tracked thread of ongoing relevance.
type Concern struct {
	ID                string
	ConcernType       Type
	Summary           string
	Salience          Salience
	LastTouched       time.Time
	CreatedAt         time.Time
	KeyEvents         []string
	RelatedMemoryKeys []string
	Notes             []string
	Metadata          map[string]string
}

// Tracker persists concerns against the companion's store.
type Tracker struct {
	store *store.Store
}

// New builds a Tracker over s.
func New(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// similar implements the ingest matching rule: case-folded equality, or one
// string contains the other when the shorter side is at least 10 characters
// (too short a substring would false-positive on nearly anything).
func similar(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 10 {
		return false
	}
	return strings.Contains(longer, shorter)
}

// Ingest folds one signal into the tracker: discarding it outright if it's
// too low-confidence or empty, touching a matching existing concern, or
// creating a new one when nothing matches and touch_only isn't set.
func (t *Tracker) Ingest(ctx context.Context, sig Signal) (*Concern, error) {
	summary := normalizeSummary(sig.Summary)
	if sig.Confidence < minConfidence || summary == "" {
		return nil, nil
	}

	all, err := t.list(ctx)
	if err != nil {
		return nil, err
	}

	for i := range all {
		if similar(all[i].Summary, summary) {
			touched := touch(all[i], sig.KeyEvent, sig.RelatedMemoryKeys, sig.Notes)
			if err := t.save(ctx, touched); err != nil {
				return nil, err
			}
			return &touched, nil
		}
	}

	if sig.TouchOnly {
		return nil, nil
	}

	now := time.Now().UTC()
	c := Concern{
		ID:          uuid.NewString(),
		ConcernType: inferType(sig.Kind),
		Summary:     summary,
		Salience:    Active,
		LastTouched: now,
		CreatedAt:   now,
		Metadata:    sig.Metadata,
	}
	if sig.KeyEvent != "" {
		c.KeyEvents = append(c.KeyEvents, sig.KeyEvent)
	}
	c.RelatedMemoryKeys = append(c.RelatedMemoryKeys, sig.RelatedMemoryKeys...)
	c.Notes = append(c.Notes, sig.Notes...)

	if err := t.save(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// touch returns c updated to reflect a fresh signal match: reset to Active
// salience, merge in new key events/memory keys/notes, bump last_touched.
func touch(c Concern, keyEvent string, relatedMemoryKeys, notes []string) Concern {
	c.LastTouched = time.Now().UTC()
	c.Salience = Active
	if keyEvent != "" {
		c.KeyEvents = append(c.KeyEvents, keyEvent)
	}
	c.RelatedMemoryKeys = mergeUnique(c.RelatedMemoryKeys, relatedMemoryKeys)
	c.Notes = append(c.Notes, notes...)
	return c
}

func mergeUnique(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, a := range additions {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	return existing
}

// probe returns the type-specific substring candidates for touch-from-text
// matching, keeping only the metadata values that meet their key's minimum
// length.
func probe(c Concern) []string {
	var probes []string
	add := func(key string, minLen int) {
		if v, ok := c.Metadata[key]; ok && len(v) >= minLen {
			probes = append(probes, v)
		}
	}
	add("project_name", 4)
	add("category", 4)
	add("component", 4)
	add("topic", 4)
	add("trigger_condition", 4)
	add("with_whom", 3)
	return probes
}

// TouchFromText scans haystack for any concern whose summary (if at least 4
// characters) or type-specific probe appears as a substring, touching every
// match and returning the touched concerns.
func (t *Tracker) TouchFromText(ctx context.Context, haystack string) ([]Concern, error) {
	lower := strings.ToLower(haystack)
	all, err := t.list(ctx)
	if err != nil {
		return nil, err
	}

	var touched []Concern
	for _, c := range all {
		matched := false
		if len(c.Summary) >= 4 && strings.Contains(lower, strings.ToLower(c.Summary)) {
			matched = true
		}
		if !matched {
			for _, p := range probe(c) {
				if strings.Contains(lower, strings.ToLower(p)) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		next := touch(c, "", nil, nil)
		if err := t.save(ctx, next); err != nil {
			return nil, err
		}
		touched = append(touched, next)
	}
	return touched, nil
}

// salienceFor maps days-since-touch to the salience bucket it belongs in.
func salienceFor(daysSinceTouch float64) Salience {
	switch {
	case daysSinceTouch < 7:
		return Active
	case daysSinceTouch < 30:
		return Monitoring
	case daysSinceTouch < 90:
		return Background
	default:
		return Dormant
	}
}

// DecaySalience re-evaluates every concern's salience against how long it's
// been since it was last touched, persisting and recording a key event for
// any concern whose bucket changed.
func (t *Tracker) DecaySalience(ctx context.Context, now time.Time) ([]Concern, error) {
	all, err := t.list(ctx)
	if err != nil {
		return nil, err
	}

	var changed []Concern
	for _, c := range all {
		days := now.Sub(c.LastTouched).Hours() / 24
		next := salienceFor(days)
		if next == c.Salience {
			continue
		}
		c.Salience = next
		c.KeyEvents = append(c.KeyEvents, fmt.Sprintf("salience decayed to %s", next))
		if err := t.save(ctx, c); err != nil {
			return nil, err
		}
		changed = append(changed, c)
	}
	return changed, nil
}

// SnippetLookup resolves a related memory key to a short display snippet;
// PriorityContext calls it once per related key it includes.
type SnippetLookup func(ctx context.Context, key string) (string, bool)

// PriorityContext selects the non-Dormant concerns worth surfacing into a
// prompt: ranked by (salience desc, last_touched desc), capped at
// maxConcerns, rendered as lines and stopped once the word-count budget
// (a stand-in for a token budget) would be exceeded.
func (t *Tracker) PriorityContext(ctx context.Context, maxConcerns, tokenBudget int, lookup SnippetLookup) ([]string, error) {
	all, err := t.list(ctx)
	if err != nil {
		return nil, err
	}

	var active []Concern
	for _, c := range all {
		if c.Salience != Dormant {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Salience.rank() != active[j].Salience.rank() {
			return active[i].Salience.rank() > active[j].Salience.rank()
		}
		return active[i].LastTouched.After(active[j].LastTouched)
	})
	if maxConcerns > 0 && len(active) > maxConcerns {
		active = active[:maxConcerns]
	}

	var lines []string
	wordsUsed := 0
	for _, c := range active {
		line := fmt.Sprintf("[%s/%s] %s", c.ConcernType, c.Salience, c.Summary)
		for _, key := range c.RelatedMemoryKeys {
			if lookup == nil {
				break
			}
			if snippet, ok := lookup(ctx, key); ok {
				line += fmt.Sprintf(" (%s: %s)", key, snippet)
			}
		}

		words := len(strings.Fields(line))
		if tokenBudget > 0 && wordsUsed+words > tokenBudget {
			break
		}
		lines = append(lines, line)
		wordsUsed += words
	}
	return lines, nil
}

// --- persistence -------------------------------------------------------

type row struct {
	ID                string
	ConcernType       string
	Summary           string
	Salience          string
	LastTouched       string
	CreatedAt         string
	KeyEventsJSON     string
	RelatedKeysJSON   string
	NotesJSON         string
	MetadataJSON      string
}

func (t *Tracker) list(ctx context.Context) ([]Concern, error) {
	t.store.RLock()
	defer t.store.RUnlock()

	rows, err := t.store.DB().QueryContext(ctx, `
		SELECT id, concern_type, summary, salience, last_touched, created_at,
		       key_events_json, related_memory_keys_json, notes_json, metadata_json
		FROM concerns`)
	if err != nil {
		return nil, fmt.Errorf("list concerns: %w", err)
	}
	defer rows.Close()

	var out []Concern
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.ConcernType, &r.Summary, &r.Salience, &r.LastTouched, &r.CreatedAt,
			&r.KeyEventsJSON, &r.RelatedKeysJSON, &r.NotesJSON, &r.MetadataJSON); err != nil {
			return nil, fmt.Errorf("scan concern: %w", err)
		}
		c, err := r.toConcern()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r row) toConcern() (Concern, error) {
	lastTouched, err := time.Parse(time.RFC3339Nano, r.LastTouched)
	if err != nil {
		return Concern{}, fmt.Errorf("parse last_touched: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Concern{}, fmt.Errorf("parse created_at: %w", err)
	}

	c := Concern{
		ID:          r.ID,
		ConcernType: Type(r.ConcernType),
		Summary:     r.Summary,
		Salience:    Salience(r.Salience),
		LastTouched: lastTouched,
		CreatedAt:   createdAt,
	}
	if err := json.Unmarshal([]byte(r.KeyEventsJSON), &c.KeyEvents); err != nil {
		return Concern{}, fmt.Errorf("decode key_events: %w", err)
	}
	if err := json.Unmarshal([]byte(r.RelatedKeysJSON), &c.RelatedMemoryKeys); err != nil {
		return Concern{}, fmt.Errorf("decode related_memory_keys: %w", err)
	}
	if err := json.Unmarshal([]byte(r.NotesJSON), &c.Notes); err != nil {
		return Concern{}, fmt.Errorf("decode notes: %w", err)
	}
	if err := json.Unmarshal([]byte(r.MetadataJSON), &c.Metadata); err != nil {
		return Concern{}, fmt.Errorf("decode metadata: %w", err)
	}
	return c, nil
}

func (t *Tracker) save(ctx context.Context, c Concern) error {
	keyEvents, err := json.Marshal(c.KeyEvents)
	if err != nil {
		return fmt.Errorf("encode key_events: %w", err)
	}
	relatedKeys, err := json.Marshal(c.RelatedMemoryKeys)
	if err != nil {
		return fmt.Errorf("encode related_memory_keys: %w", err)
	}
	notes, err := json.Marshal(c.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	t.store.Lock()
	defer t.store.Unlock()
	_, err = t.store.DB().ExecContext(ctx, `
		INSERT INTO concerns (id, concern_type, summary, salience, last_touched, created_at,
		                      key_events_json, related_memory_keys_json, notes_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			concern_type = excluded.concern_type,
			summary = excluded.summary,
			salience = excluded.salience,
			last_touched = excluded.last_touched,
			key_events_json = excluded.key_events_json,
			related_memory_keys_json = excluded.related_memory_keys_json,
			notes_json = excluded.notes_json,
			metadata_json = excluded.metadata_json`,
		c.ID, string(c.ConcernType), c.Summary, string(c.Salience),
		c.LastTouched.Format(time.RFC3339Nano), c.CreatedAt.Format(time.RFC3339Nano),
		string(keyEvents), string(relatedKeys), string(notes), string(metadataJSON))
	if err != nil {
		return fmt.Errorf("save concern %q: %w", c.ID, err)
	}
	return nil
}

// Get returns a single concern by id.
func (t *Tracker) Get(ctx context.Context, id string) (Concern, bool, error) {
	all, err := t.list(ctx)
	if err != nil {
		return Concern{}, false, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, true, nil
		}
	}
	return Concern{}, false, nil
}

// List returns every tracked concern.
func (t *Tracker) List(ctx context.Context) ([]Concern, error) {
	return t.list(ctx)
}

// KnownIDs returns the set of concern ids currently tracked, used to filter
// a model-proposed related_concerns list down to ones that actually exist.
func (t *Tracker) KnownIDs(ctx context.Context) (map[string]bool, error) {
	all, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(all))
	for _, c := range all {
		ids[c.ID] = true
	}
	return ids, nil
}
