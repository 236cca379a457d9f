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

// Package kv is the baseline working-memory design: a flat key/value store
// with no ranking beyond substring matching. It is the oldest, simplest
// design in the lineage and the fallback every migration path can always
// reach.
package kv

import (
	"context"
	"sort"
	"strings"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/store"
)

// Backend implements memory.Backend over store.Store's working_memory table.
type Backend struct {
	store *store.Store
}

// New wraps s as a kv memory.Backend.
func New(s *store.Store) *Backend {
	return &Backend{store: s}
}

// DesignVersion identifies this as design "kv", schema version 1.
func (b *Backend) DesignVersion() memory.Design {
	return memory.Design{ID: "kv", SchemaVersion: 1, Description: "flat key/value working memory"}
}

func (b *Backend) SetEntry(ctx context.Context, key, content string) error {
	return b.store.SetWorkingMemory(ctx, key, content)
}

func (b *Backend) GetEntry(ctx context.Context, key string) (memory.Entry, bool, error) {
	row, ok, err := b.store.GetWorkingMemory(ctx, key)
	if err != nil || !ok {
		return memory.Entry{}, ok, err
	}
	return memory.Entry{Key: row.Key, Content: row.Content, UpdatedAt: row.UpdatedAt}, true, nil
}

func (b *Backend) DeleteEntry(ctx context.Context, key string) (bool, error) {
	return b.store.DeleteWorkingMemory(ctx, key)
}

// ListEntries returns every entry, most recently updated first.
func (b *Backend) ListEntries(ctx context.Context) ([]memory.Entry, error) {
	rows, err := b.store.ListWorkingMemory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, memory.Entry{Key: row.Key, Content: row.Content, UpdatedAt: row.UpdatedAt})
	}
	return out, nil
}

// Query ranks entries by the number of query terms found as a substring of
// the entry's content or key, descending. Ties break by key for determinism.
func (b *Backend) Query(ctx context.Context, text string, limit int) ([]memory.Entry, error) {
	entries, err := b.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(text))
	scored := make([]memory.Entry, 0, len(entries))
	for _, e := range entries {
		hay := strings.ToLower(e.Key + " " + e.Content)
		var score float64
		for _, term := range terms {
			if strings.Contains(hay, term) {
				score++
			}
		}
		if score > 0 || len(terms) == 0 {
			e.Score = score
			scored = append(scored, e)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Key < scored[j].Key
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
