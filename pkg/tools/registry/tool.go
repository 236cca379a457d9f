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

// Package registry holds the tool registration and dispatch machinery the
// agentic loop calls into: every built-in and MCP-provided tool implements
// Tool, and the Registry resolves capability policy and the approval gate
// before actually running one.
package registry

import "context"

// JSONSchema is a minimal JSON Schema object sufficient to describe a tool's
// input parameters to an LLM provider's function-calling API.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// Result is what a tool's Execute call reports back to the agentic loop.
type Result struct {
	Success         bool           `json:"success"`
	Data            any            `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms,omitempty"`
}

// Tool is the contract every built-in or MCP-bridged capability implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *JSONSchema
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}
