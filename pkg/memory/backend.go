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

// Package memory defines the pluggable working-memory backend contract.
// Every candidate design for "how the companion remembers things" — plain
// key/value, full-text search, episodic with recency/salience, eventually
// vector/semantic — implements Backend so the migration, eval and promotion
// machinery in its sibling packages can treat them uniformly.
package memory

import (
	"context"
	"errors"
)

// ErrNoActiveEntry reports that a key has no current, non-superseded entry,
// as distinct from the key never having existed. None of the backends in
// this module return it: their GetEntry reports a missing key as ok ==
// false with a nil error.
var ErrNoActiveEntry = errors.New("memory: no active entry for key")

// Entry is one unit of stored memory, backend-agnostic.
type Entry struct {
	Key       string
	Content   string
	UpdatedAt string
	// Score is populated by ListEntries when the backend ranks results
	// (e.g. FTS match quality); zero for backends with no natural ranking.
	Score float64
}

// Design identifies one versioned backend implementation.
type Design struct {
	ID            string
	SchemaVersion int
	Description   string
}

// Backend is the minimal contract a working-memory implementation exposes.
type Backend interface {
	// DesignVersion identifies which design/schema version this instance
	// implements, for the migration registry and eval harness.
	DesignVersion() Design

	SetEntry(ctx context.Context, key, content string) error
	GetEntry(ctx context.Context, key string) (Entry, bool, error)
	ListEntries(ctx context.Context) ([]Entry, error)
	DeleteEntry(ctx context.Context, key string) (bool, error)

	// Query performs a backend-specific retrieval for text, returning
	// entries ranked most to least relevant, capped at limit. Backends with
	// no ranking notion (plain kv) fall back to substring match.
	Query(ctx context.Context, text string, limit int) ([]Entry, error)
}
