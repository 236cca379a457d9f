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

package builtin

import (
	"context"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/tools/registry"
)

// SearchMemoryTool queries the active working-memory backend.
type SearchMemoryTool struct{ Backend memory.Backend }

// searchMemoryParams is reflected into SearchMemoryTool's JSON-Schema.
type searchMemoryParams struct {
	Query string `json:"query" jsonschema:"required,description=Free-text search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 5)"`
}

func (t *SearchMemoryTool) Name() string        { return "search_memory" }
func (t *SearchMemoryTool) Description() string { return "Search working memory for relevant entries." }
func (t *SearchMemoryTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&searchMemoryParams{})
}

func (t *SearchMemoryTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	query, _ := params["query"].(string)
	limit := 5
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	results, err := t.Backend.Query(ctx, query, limit)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}

	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{"key": r.Key, "content": r.Content, "score": r.Score}
	}
	return &registry.Result{Success: true, Data: out}, nil
}

// WriteMemoryTool stores an entry in the active working-memory backend.
type WriteMemoryTool struct{ Backend memory.Backend }

// writeMemoryParams is reflected into WriteMemoryTool's JSON-Schema.
type writeMemoryParams struct {
	Key     string `json:"key" jsonschema:"required,description=Key to store the entry under"`
	Content string `json:"content" jsonschema:"required,description=Content to remember"`
}

func (t *WriteMemoryTool) Name() string        { return "write_memory" }
func (t *WriteMemoryTool) Description() string { return "Write an entry to working memory under a key." }
func (t *WriteMemoryTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&writeMemoryParams{})
}

func (t *WriteMemoryTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	key, _ := params["key"].(string)
	content, _ := params["content"].(string)
	if key == "" {
		return &registry.Result{Success: false, Error: "key is required"}, nil
	}
	if err := t.Backend.SetEntry(ctx, key, content); err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	return &registry.Result{Success: true, Data: "stored"}, nil
}
