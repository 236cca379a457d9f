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

// Package journal produces the companion's rate-limited reflective entries:
// written only on a transition into the Journal disposition, never more
// often than the configured minimum interval, and only when the model
// doesn't opt out.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/embercore/ember/pkg/store"
)

// Entry is one written journal entry.
type Entry struct {
	Mood             string
	Narrative        string
	RelatedConcerns  []string
	CreatedAt        time.Time
}

// Draft is what a model produces when asked to write an entry; Skip lets it
// opt out of writing anything this tick.
type Draft struct {
	Skip            bool
	Mood            string
	Narrative       string
	RelatedConcerns []string
}

// Writer persists journal entries, honoring the minimum interval between
// them and the disposition-transition gate.
type Writer struct {
	store       *store.Store
	minInterval time.Duration
}

// New builds a Writer; minInterval is the minimum time required between two
// entries regardless of how often ShouldWrite's caller ticks.
func New(s *store.Store, minInterval time.Duration) *Writer {
	return &Writer{store: s, minInterval: minInterval}
}

// ShouldWrite reports whether an entry may be written this tick: the
// disposition must be Journal, the previous disposition must not have been
// Journal (entries only fire on the transition edge), and at least
// minInterval must have elapsed since the last entry.
func (w *Writer) ShouldWrite(ctx context.Context, disposition, previousDisposition string, now time.Time) (bool, error) {
	if disposition != "Journal" || previousDisposition == "Journal" {
		return false, nil
	}
	last, ok, err := w.latest(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last.CreatedAt) >= w.minInterval, nil
}

// Write persists draft as an entry, filtering related_concerns against
// knownConcernIDs and defaulting mood to fallbackMood when the model left it
// blank. It returns (nil, nil) when the draft opted out via Skip.
func (w *Writer) Write(ctx context.Context, draft Draft, knownConcernIDs map[string]bool, fallbackMood string) (*Entry, error) {
	if draft.Skip {
		return nil, nil
	}

	mood := draft.Mood
	if mood == "" {
		mood = fallbackMood
	}

	var related []string
	for _, id := range draft.RelatedConcerns {
		if knownConcernIDs == nil || knownConcernIDs[id] {
			related = append(related, id)
		}
	}

	entry := Entry{
		Mood:            mood,
		Narrative:       draft.Narrative,
		RelatedConcerns: related,
		CreatedAt:       time.Now().UTC(),
	}
	if err := w.save(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Recent returns the limit most recently written entries, most recent
// first, so prompts can avoid repeating themselves.
func (w *Writer) Recent(ctx context.Context, limit int) ([]Entry, error) {
	w.store.RLock()
	defer w.store.RUnlock()

	rows, err := w.store.DB().QueryContext(ctx, `
		SELECT mood, narrative, related_concerns_json, created_at
		FROM journal_entries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(rows scanner) (Entry, error) {
	var mood, narrative, relatedJSON, createdAt string
	if err := rows.Scan(&mood, &narrative, &relatedJSON, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	var related []string
	if err := json.Unmarshal([]byte(relatedJSON), &related); err != nil {
		return Entry{}, fmt.Errorf("decode related_concerns: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	return Entry{Mood: mood, Narrative: narrative, RelatedConcerns: related, CreatedAt: ts}, nil
}

func (w *Writer) latest(ctx context.Context) (Entry, bool, error) {
	entries, err := w.Recent(ctx, 1)
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

func (w *Writer) save(ctx context.Context, e Entry) error {
	related, err := json.Marshal(e.RelatedConcerns)
	if err != nil {
		return fmt.Errorf("encode related_concerns: %w", err)
	}

	w.store.Lock()
	defer w.store.Unlock()
	_, err = w.store.DB().ExecContext(ctx, `
		INSERT INTO journal_entries (mood, narrative, related_concerns_json, created_at)
		VALUES (?, ?, ?, ?)`,
		e.Mood, e.Narrative, string(related), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save journal entry: %w", err)
	}
	return nil
}
