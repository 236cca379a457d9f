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

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/episodic"
	"github.com/embercore/ember/pkg/memory/eval"
	"github.com/embercore/ember/pkg/memory/fts"
	"github.com/embercore/ember/pkg/memory/kv"
	"github.com/embercore/ember/pkg/memory/migration"
	"github.com/embercore/ember/pkg/memory/semantic"
	"github.com/embercore/ember/pkg/store"
)

// memoryDesignStateKey is the agent_state key holding the Design.ID of the
// working-memory backend currently in service. Unset means kv, the original
// design every store starts on.
const memoryDesignStateKey = "memory_design_id"

// memorySchemaStateKey tracks the schema version alongside the design ID,
// so a future migration path can tell "design changed" from "schema bumped
// under the same design" apart.
const memorySchemaStateKey = "memory_schema_version"

// allMemoryBackends constructs every known working-memory design over the
// same store, for the eval/promotion cycle to compare against each other.
func allMemoryBackends(s *store.Store) (map[string]memory.Backend, error) {
	semanticBackend, err := semantic.New()
	if err != nil {
		return nil, fmt.Errorf("build semantic backend: %w", err)
	}
	backends := map[string]memory.Backend{
		"kv":       kv.New(s),
		"fts":      fts.New(s),
		"episodic": episodic.New(s),
		"semantic": semanticBackend,
	}
	return backends, nil
}

// selectActiveMemoryBackend resolves which working-memory design is in
// service for this store, defaulting to kv when agent_state names no
// design yet or names one this binary no longer recognizes.
func selectActiveMemoryBackend(ctx context.Context, s *store.Store, logger *zap.Logger) (memory.Backend, error) {
	backends, err := allMemoryBackends(s)
	if err != nil {
		return nil, err
	}

	designID, ok, err := s.GetAgentState(ctx, memoryDesignStateKey)
	if err != nil {
		return nil, fmt.Errorf("read active memory design: %w", err)
	}
	if !ok || designID == "" {
		return backends["kv"], nil
	}

	backend, known := backends[designID]
	if !known {
		logger.Warn("unknown active memory design, falling back to kv", zap.String("design_id", designID))
		return backends["kv"], nil
	}
	return backend, nil
}

// evalCandidates builds one eval.Candidate per known working-memory design,
// each constructing a fresh, empty backend on demand so traces never leak
// state between candidates or touch the real store.
func evalCandidates() []eval.Candidate {
	return []eval.Candidate{
		{Build: freshKVBackend},
		{Build: freshFTSBackend},
		{Build: freshEpisodicBackend},
		{Build: freshSemanticBackend},
	}
}

func freshKVBackend(ctx context.Context) (memory.Backend, func(), error) {
	s, err := store.New(ctx, store.Config{Path: ":memory:"}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open kv eval store: %w", err)
	}
	return kv.New(s), func() { s.Close() }, nil
}

func freshFTSBackend(ctx context.Context) (memory.Backend, func(), error) {
	s, err := store.New(ctx, store.Config{Path: ":memory:"}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open fts eval store: %w", err)
	}
	return fts.New(s), func() { s.Close() }, nil
}

func freshEpisodicBackend(ctx context.Context) (memory.Backend, func(), error) {
	s, err := store.New(ctx, store.Config{Path: ":memory:"}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open episodic eval store: %w", err)
	}
	return episodic.New(s), func() { s.Close() }, nil
}

func freshSemanticBackend(ctx context.Context) (memory.Backend, func(), error) {
	b, err := semantic.New()
	if err != nil {
		return nil, nil, fmt.Errorf("build semantic eval backend: %w", err)
	}
	return b, nil, nil
}

// buildMigrationRegistry registers a direct edge between every ordered pair
// of known designs, all backed by the same generic copy-every-entry
// implementation. Any design can migrate to any other; what differs between
// them is retrieval behavior, not storage shape, so one Apply func suffices.
func buildMigrationRegistry(backends map[string]memory.Backend) *migration.Registry {
	reg := migration.NewRegistry()
	for fromID, from := range backends {
		for toID, to := range backends {
			if fromID == toID {
				continue
			}
			reg.Register(migration.Migration{
				From:  from.DesignVersion(),
				To:    to.DesignVersion(),
				Apply: migration.CopyAllEntries,
			})
		}
	}
	return reg
}
