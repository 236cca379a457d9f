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

// Package fts is the second working-memory design in the lineage: a
// key/value store backed by a SQLite FTS5 virtual table, giving it real
// relevance-ranked search instead of kv's substring scan.
package fts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/store"
)

// Backend implements memory.Backend over working_memory_fts_docs / _index.
type Backend struct {
	store *store.Store
}

// New wraps s as an FTS memory.Backend.
func New(s *store.Store) *Backend {
	return &Backend{store: s}
}

// DesignVersion identifies this as design "fts", schema version 2.
func (b *Backend) DesignVersion() memory.Design {
	return memory.Design{ID: "fts", SchemaVersion: 2, Description: "FTS5-backed working memory"}
}

func (b *Backend) SetEntry(ctx context.Context, key, content string) error {
	b.store.Lock()
	defer b.store.Unlock()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := b.store.DB().ExecContext(ctx,
		`INSERT INTO working_memory_fts_docs (key, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content, now)
	if err != nil {
		return fmt.Errorf("set fts entry %q: %w", key, err)
	}
	return nil
}

func (b *Backend) GetEntry(ctx context.Context, key string) (memory.Entry, bool, error) {
	b.store.RLock()
	defer b.store.RUnlock()
	var content, updatedAt string
	err := b.store.DB().QueryRowContext(ctx,
		`SELECT content, updated_at FROM working_memory_fts_docs WHERE key = ?`, key).Scan(&content, &updatedAt)
	if err == sql.ErrNoRows {
		return memory.Entry{}, false, nil
	}
	if err != nil {
		return memory.Entry{}, false, fmt.Errorf("get fts entry %q: %w", key, err)
	}
	return memory.Entry{Key: key, Content: content, UpdatedAt: updatedAt}, true, nil
}

func (b *Backend) DeleteEntry(ctx context.Context, key string) (bool, error) {
	b.store.Lock()
	defer b.store.Unlock()
	res, err := b.store.DB().ExecContext(ctx, `DELETE FROM working_memory_fts_docs WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete fts entry %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (b *Backend) ListEntries(ctx context.Context) ([]memory.Entry, error) {
	b.store.RLock()
	defer b.store.RUnlock()
	rows, err := b.store.DB().QueryContext(ctx,
		`SELECT key, content, updated_at FROM working_memory_fts_docs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list fts entries: %w", err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		if err := rows.Scan(&e.Key, &e.Content, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fts entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ftsQuote turns free text into a safe FTS5 MATCH query: each term quoted
// and OR'd together, so punctuation in the input can't break the query
// syntax.
func ftsQuote(text string) string {
	terms := strings.Fields(text)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, fmt.Sprintf(`"%s"`, t))
	}
	return strings.Join(quoted, " OR ")
}

// Query runs an FTS5 MATCH query ranked by bm25, descending relevance (bm25
// scores are negative in SQLite; lower is better, so we negate for Entry.Score).
func (b *Backend) Query(ctx context.Context, text string, limit int) ([]memory.Entry, error) {
	match := ftsQuote(text)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	b.store.RLock()
	defer b.store.RUnlock()
	rows, err := b.store.DB().QueryContext(ctx, `
		SELECT d.key, d.content, d.updated_at, bm25(working_memory_fts_index) AS rank
		FROM working_memory_fts_index
		JOIN working_memory_fts_docs d ON d.id = working_memory_fts_index.rowid
		WHERE working_memory_fts_index MATCH ?
		ORDER BY rank ASC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var rank float64
		if err := rows.Scan(&e.Key, &e.Content, &e.UpdatedAt, &rank); err != nil {
			return nil, fmt.Errorf("scan fts match: %w", err)
		}
		e.Score = -rank
		out = append(out, e)
	}
	return out, rows.Err()
}
