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

// Package semantic is the fourth working-memory design in the lineage: an
// in-process chromem-go collection ranked by embedding similarity instead of
// kv's substring scan or fts's bm25. The eval harness must stay offline and
// deterministic, so entries are embedded with a fixed bag-of-words hash
// rather than calling out to a real embedding model.
package semantic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/embercore/ember/pkg/memory"
)

// embeddingDimensions bounds the bag-of-words hash space. It has no
// relationship to any real embedding model's dimensionality; it only needs
// to be large enough that unrelated short strings rarely collide.
const embeddingDimensions = 256

const collectionName = "working_memory"

// Backend implements memory.Backend over an in-memory chromem-go collection.
// chromem-go has no "get a document by id" call, so Backend keeps its own
// key/content index for GetEntry/ListEntries/DeleteEntry and uses the
// collection purely for Query's similarity ranking.
type Backend struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	entries    map[string]memory.Entry
}

// New builds an empty semantic memory.Backend. Like the other reference
// designs, it is process-local and meant to be constructed fresh per eval
// run, not shared across one.
func New() (*Backend, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create semantic collection: %w", err)
	}
	return &Backend{db: db, collection: col, entries: make(map[string]memory.Entry)}, nil
}

// DesignVersion identifies this as design "semantic", schema version 4.
func (b *Backend) DesignVersion() memory.Design {
	return memory.Design{ID: "semantic", SchemaVersion: 4, Description: "chromem-go embedding-ranked working memory"}
}

func (b *Backend) SetEntry(ctx context.Context, key, content string) error {
	vec, err := embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed entry %q: %w", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc := chromem.Document{ID: key, Content: content, Embedding: vec}
	if err := b.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("upsert semantic entry %q: %w", key, err)
	}
	b.entries[key] = memory.Entry{Key: key, Content: content, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	return nil
}

func (b *Backend) GetEntry(ctx context.Context, key string) (memory.Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	return e, ok, nil
}

func (b *Backend) ListEntries(ctx context.Context) ([]memory.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]memory.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

func (b *Backend) DeleteEntry(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return false, nil
	}
	if err := b.collection.Delete(ctx, nil, nil, key); err != nil {
		return false, fmt.Errorf("delete semantic entry %q: %w", key, err)
	}
	delete(b.entries, key)
	return true, nil
}

// Query embeds text with the same deterministic function used at write
// time and ranks stored entries by chromem-go's cosine similarity.
func (b *Backend) Query(ctx context.Context, text string, limit int) ([]memory.Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	vec, err := embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n := limit
	if n > len(b.entries) {
		n = len(b.entries)
	}
	if n == 0 {
		return nil, nil
	}

	results, err := b.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	out := make([]memory.Entry, 0, len(results))
	for _, r := range results {
		e, ok := b.entries[r.ID]
		if !ok {
			continue
		}
		e.Score = float64(r.Similarity)
		out = append(out, e)
	}
	return out, nil
}

// embed is a deterministic, offline stand-in for a real embedding model:
// every lowercased word hashes into one of embeddingDimensions buckets,
// incrementing its count, and the resulting vector is L2-normalized so
// cosine similarity behaves sensibly. Two texts sharing more vocabulary
// land closer together; it captures nothing of meaning beyond that.
func embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%embeddingDimensions]++
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec, nil
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
