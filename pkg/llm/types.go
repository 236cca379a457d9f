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

// Package llm is the companion's model-facing client: an OpenAI-compatible
// chat-completions HTTP client (works unmodified against Ollama, vLLM, and
// hosted OpenAI-compatible endpoints), plus the decoding helpers the
// agentic loop needs on top of a raw response — thinking-tag extraction,
// legacy JSON-decision fallback, and token estimation.
package llm

import "time"

// ToolCall is a single function call the model asked to make.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Usage reports token accounting for one request.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Message is one turn of conversation sent to or received from the model.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolUseID  string     `json:"tool_use_id,omitempty"` // set on role "tool"
	ToolResult string     `json:"tool_result,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Response is the model's reply to a Chat call.
type Response struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	// Thinking holds any <think>/<thinking> block extracted from Content;
	// Content itself has the block removed.
	Thinking string `json:"thinking,omitempty"`
}

// StreamDelta is one incremental chunk of a streamed response.
type StreamDelta struct {
	ContentDelta string
	ToolCall     *ToolCall // set once a tool call's arguments are complete
	Done         bool
	FinalUsage   Usage
}

// ToolDefinition describes one callable tool to the model's function-calling API.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}
