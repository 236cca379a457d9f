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

// Package episodic is the third working-memory design in the lineage: each
// write appends a new timestamped, salience-scored episode under a key
// instead of overwriting in place, and retrieval favors what is both recent
// and salient rather than only what matches query terms.
package episodic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/store"
)

// halfLife is how long it takes a salience-1.0 episode's recency weight to
// decay to 0.5, tuned for a companion that ticks on the order of minutes to
// hours rather than seconds.
const halfLife = 6 * time.Hour

// Backend implements memory.Backend over working_memory_episodes.
type Backend struct {
	store *store.Store
}

// New wraps s as an episodic memory.Backend.
func New(s *store.Store) *Backend {
	return &Backend{store: s}
}

// DesignVersion identifies this as design "episodic", schema version 3.
func (b *Backend) DesignVersion() memory.Design {
	return memory.Design{ID: "episodic", SchemaVersion: 3, Description: "recency/salience-weighted episodic memory"}
}

// SetEntry appends a new episode under key with default salience 0.5.
func (b *Backend) SetEntry(ctx context.Context, key, content string) error {
	return b.AppendEpisode(ctx, key, content, 0.5)
}

// AppendEpisode records a new episode under key with an explicit salience
// in [0,1].
func (b *Backend) AppendEpisode(ctx context.Context, key, content string, salience float64) error {
	b.store.Lock()
	defer b.store.Unlock()
	now := time.Now().UTC()
	_, err := b.store.DB().ExecContext(ctx,
		`INSERT INTO working_memory_episodes (key, content, occurred_at, salience, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, content, now.Format(time.RFC3339Nano), salience, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append episode %q: %w", key, err)
	}
	return nil
}

// GetEntry returns the most recent episode under key.
func (b *Backend) GetEntry(ctx context.Context, key string) (memory.Entry, bool, error) {
	b.store.RLock()
	defer b.store.RUnlock()
	var content, occurredAt string
	err := b.store.DB().QueryRowContext(ctx,
		`SELECT content, occurred_at FROM working_memory_episodes WHERE key = ? ORDER BY id DESC LIMIT 1`, key).
		Scan(&content, &occurredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Entry{}, false, nil
		}
		return memory.Entry{}, false, fmt.Errorf("get episode %q: %w", key, err)
	}
	return memory.Entry{Key: key, Content: content, UpdatedAt: occurredAt}, true, nil
}

// DeleteEntry removes every episode under key.
func (b *Backend) DeleteEntry(ctx context.Context, key string) (bool, error) {
	b.store.Lock()
	defer b.store.Unlock()
	res, err := b.store.DB().ExecContext(ctx, `DELETE FROM working_memory_episodes WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete episodes %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListEntries returns the most recent episode for every distinct key.
func (b *Backend) ListEntries(ctx context.Context) ([]memory.Entry, error) {
	b.store.RLock()
	defer b.store.RUnlock()
	rows, err := b.store.DB().QueryContext(ctx, `
		SELECT key, content, occurred_at FROM working_memory_episodes e
		WHERE id = (SELECT MAX(id) FROM working_memory_episodes WHERE key = e.key)
		ORDER BY occurred_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		if err := rows.Scan(&e.Key, &e.Content, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type episodeRow struct {
	key        string
	content    string
	occurredAt time.Time
	salience   float64
}

// Query ranks episodes by term-match count weighted by an exponential
// recency decay and the episode's stored salience, so a vivid recent memory
// outranks a stale frequent one.
func (b *Backend) Query(ctx context.Context, text string, limit int) ([]memory.Entry, error) {
	b.store.RLock()
	rows, err := b.store.DB().QueryContext(ctx,
		`SELECT key, content, occurred_at, salience FROM working_memory_episodes`)
	b.store.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []episodeRow
	for rows.Next() {
		var r episodeRow
		var occurredAt string
		if err := rows.Scan(&r.key, &r.content, &occurredAt, &r.salience); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		r.occurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		episodes = append(episodes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(text))
	now := time.Now().UTC()

	type scored struct {
		entry memory.Entry
		score float64
	}
	var candidates []scored
	for _, ep := range episodes {
		hay := strings.ToLower(ep.key + " " + ep.content)
		var matches float64
		for _, term := range terms {
			if strings.Contains(hay, term) {
				matches++
			}
		}
		if matches == 0 && len(terms) > 0 {
			continue
		}
		age := now.Sub(ep.occurredAt)
		recency := math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
		score := (matches + 1) * ep.salience * recency
		candidates = append(candidates, scored{
			entry: memory.Entry{Key: ep.key, Content: ep.content, UpdatedAt: ep.occurredAt.Format(time.RFC3339Nano), Score: score},
			score: score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.Key < candidates[j].entry.Key
	})

	if limit <= 0 {
		limit = 20
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]memory.Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}
