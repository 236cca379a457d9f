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

// Package migration tracks the directed graph of known data migrations
// between working-memory backend designs, and applies them when the
// promotion gate decides to switch the active design.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/embercore/ember/pkg/memory"
)

// ErrNoRoute is returned when no sequence of registered migrations connects
// two designs.
var ErrNoRoute = errors.New("no memory migration registered")

// Migration moves every entry from one design to another.
type Migration struct {
	From memory.Design
	To   memory.Design
	// Apply copies/transforms data from src into dst. Both backends are
	// live and already schema-initialized; Apply only needs to move rows.
	Apply func(ctx context.Context, src, dst memory.Backend) error
}

func edgeKey(from, to string) string {
	return from + "->" + to
}

// Registry holds the known direct migrations between designs.
type Registry struct {
	mu    sync.RWMutex
	edges map[string]Migration
}

// NewRegistry builds an empty migration registry.
func NewRegistry() *Registry {
	return &Registry{edges: make(map[string]Migration)}
}

// Register adds a direct migration edge. Re-registering the same (from, to)
// pair overwrites the previous edge.
func (r *Registry) Register(m Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges[edgeKey(m.From.ID, m.To.ID)] = m
}

// FindDirect returns the migration registered directly from fromID to toID,
// if any.
func (r *Registry) FindDirect(fromID, toID string) (Migration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.edges[edgeKey(fromID, toID)]
	return m, ok
}

// FindPath does a breadth-first search over the registered edges for a
// sequence of direct migrations connecting fromID to toID. It returns nil,
// false if no path exists. In the trivial case fromID == toID, which needs
// no migration at all, it returns nil, true.
func (r *Registry) FindPath(fromID, toID string) ([]Migration, bool) {
	if fromID == toID {
		return nil, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type node struct {
		id   string
		path []Migration
	}
	visited := map[string]bool{fromID: true}
	queue := []node{{id: fromID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for key, m := range r.edges {
			if m.From.ID != cur.id {
				continue
			}
			if visited[m.To.ID] {
				continue
			}
			_ = key
			nextPath := append(append([]Migration{}, cur.path...), m)
			if m.To.ID == toID {
				return nextPath, true
			}
			visited[m.To.ID] = true
			queue = append(queue, node{id: m.To.ID, path: nextPath})
		}
	}
	return nil, false
}

// ApplyDirect runs the single migration registered between the two
// backends' current designs.
func (r *Registry) ApplyDirect(ctx context.Context, src, dst memory.Backend) error {
	from := src.DesignVersion()
	to := dst.DesignVersion()
	m, ok := r.FindDirect(from.ID, to.ID)
	if !ok {
		return fmt.Errorf("%w: %q to %q", ErrNoRoute, from.ID, to.ID)
	}
	return m.Apply(ctx, src, dst)
}

// CopyAllEntries is a reusable Migration.Apply implementation for
// migrations where the destination design's SetEntry can faithfully
// represent every source entry unchanged (e.g. kv -> fts).
func CopyAllEntries(ctx context.Context, src, dst memory.Backend) error {
	entries, err := src.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("list source entries: %w", err)
	}
	for _, e := range entries {
		if err := dst.SetEntry(ctx, e.Key, e.Content); err != nil {
			return fmt.Errorf("copy entry %q: %w", e.Key, err)
		}
	}
	return nil
}
