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

// Package agent runs the multi-iteration tool-calling dialog between the
// language model and the tool registry: one call out to the model, zero or
// more tool dispatches fed back as results, repeated until the model answers
// with plain text or the iteration budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/tools/approval"
	"github.com/embercore/ember/pkg/tools/capability"
	"github.com/embercore/ember/pkg/tools/registry"
)

// ToolContext scopes one Run to a session context and an optional explicit
// allow-set on top of the capability policy's own per-context rules.
type ToolContext struct {
	Session   capability.SessionContext
	SessionID string
	// AllowedTools, when non-nil, is an explicit allow-set intersected with
	// the policy's disallow-set; nil means "no additional restriction".
	AllowedTools []string
}

func (tc ToolContext) permits(name string) bool {
	if tc.AllowedTools == nil {
		return true
	}
	for _, n := range tc.AllowedTools {
		if n == name {
			return true
		}
	}
	return false
}

// ToolEvent is emitted once per tool call, in the order the model returned
// them, whether or not the call actually ran.
type ToolEvent struct {
	ToolCallID    string
	ToolName      string
	Arguments     map[string]any
	Result        *registry.Result
	Err           error
	NeedsApproval bool
}

// RunOptions configures one Run.
type RunOptions struct {
	// MaxIterations bounds the number of model calls; nil means unbounded.
	MaxIterations *int
	// Stream requests incremental content deltas; on failure the loop falls
	// back to a single non-streamed call transparently.
	Stream bool
	// OnDelta receives the cumulative visible content so far, and whether
	// this is the final delta of the turn.
	OnDelta func(partialContent string, done bool)
	// OnToolEvent is called once per tool call, before the loop proceeds.
	OnToolEvent func(ToolEvent)
	// StopRequested is polled before each new iteration begins; any
	// in-flight tool call still runs to completion.
	StopRequested func() bool
}

// Result is what a Run produces: either a final answer, a synthetic
// iteration-limit message, or a paused turn awaiting tool approval.
type Result struct {
	Content       string
	Thinking      string
	Messages      []llm.Message
	Iterations    int
	HitLimit      bool
	NeedsApproval *ToolEvent
}

// Loop wires a model client to a tool registry.
type Loop struct {
	Client   *llm.Client
	Registry *registry.Registry
	Logger   *zap.Logger
}

// New builds a Loop.
func New(client *llm.Client, reg *registry.Registry, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{Client: client, Registry: reg, Logger: logger}
}

// Run drives the agentic loop to completion: system prompt + history + the
// new user message go to the model, any tool calls are dispatched in order
// and fed back, and the cycle repeats until the model answers in plain text,
// a tool call requires approval, the caller requests a stop, or the
// iteration budget is exhausted.
func (l *Loop) Run(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string, tc ToolContext, opts RunOptions) (*Result, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt, Timestamp: time.Now()})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage, Timestamp: time.Now()})

	toolDefs := l.toolDefinitions(tc)

	iterations := 0
	for {
		if opts.StopRequested != nil && opts.StopRequested() {
			return &Result{Messages: messages, Iterations: iterations, HitLimit: false}, nil
		}
		if opts.MaxIterations != nil && iterations >= *opts.MaxIterations {
			content := fmt.Sprintf("Reached maximum of %d tool-calling iterations", *opts.MaxIterations)
			messages = append(messages, llm.Message{Role: "assistant", Content: content, Timestamp: time.Now()})
			if opts.OnDelta != nil {
				opts.OnDelta(content, true)
			}
			return &Result{Content: content, Messages: messages, Iterations: iterations, HitLimit: true}, nil
		}

		iterations++
		resp, err := l.callModel(ctx, messages, toolDefs, opts)
		if err != nil {
			return nil, fmt.Errorf("agentic loop: model call %d: %w", iterations, err)
		}

		if len(resp.ToolCalls) == 0 {
			content, thinking := llm.ExtractThinking(resp.Content)
			messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, Timestamp: time.Now()})
			if opts.OnDelta != nil {
				opts.OnDelta(content, true)
			}
			return &Result{Content: content, Thinking: thinking, Messages: messages, Iterations: iterations}, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls, Timestamp: time.Now()})

		for _, call := range resp.ToolCalls {
			result, needsApproval, execErr := l.dispatchToolCall(ctx, tc, call)

			ev := ToolEvent{ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Input, Result: result, Err: execErr, NeedsApproval: needsApproval}
			if opts.OnToolEvent != nil {
				opts.OnToolEvent(ev)
			}

			if needsApproval {
				return &Result{Messages: messages, Iterations: iterations, NeedsApproval: &ev}, nil
			}

			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolUseID:  call.ID,
				ToolResult: toolResultText(result, execErr),
				Timestamp:  time.Now(),
			})
		}
	}
}

func toolResultText(result *registry.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("[BLOCKED] %s", err.Error())
	}
	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return result.Error
	}
	return string(data)
}

// dispatchToolCall runs the per-call contract: policy check, approval check,
// safety validate/execute/check-output. An error it returns does not end the
// turn: Run records it on the ToolEvent and feeds it back to the model as an
// in-band "[BLOCKED]" tool message.
func (l *Loop) dispatchToolCall(ctx context.Context, tc ToolContext, call llm.ToolCall) (result *registry.Result, needsApproval bool, err error) {
	tool, ok := l.Registry.Get(call.Name)
	if !ok {
		return nil, false, fmt.Errorf("unknown tool %q", call.Name)
	}

	params := call.Input
	if params == nil {
		params = map[string]any{}
		l.Logger.Warn("tool call arguments failed to parse, using empty object", zap.String("tool", call.Name))
	}

	policy := l.Registry.Policy()
	allowed := tc.permits(call.Name)
	if allowed && policy != nil {
		var policyAllowed bool
		policyAllowed, needsApproval = policy.NeedsApproval(tc.Session, call.Name)
		allowed = allowed && policyAllowed
	}
	if !allowed {
		return nil, false, fmt.Errorf("%w: %q", approval.ErrToolDisabled, call.Name)
	}
	if needsApproval {
		return nil, true, nil
	}

	if err := l.Registry.Safety().ValidateInput(call.Name, tool.InputSchema(), params); err != nil {
		return nil, false, fmt.Errorf("blocked: %w", err)
	}

	start := time.Now()
	result, execErr := tool.Execute(ctx, params)
	if execErr != nil {
		return nil, false, fmt.Errorf("execute %q: %w", call.Name, execErr)
	}
	if result == nil {
		result = &registry.Result{Success: true}
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	if err := l.Registry.Safety().CheckOutput(call.Name, result); err != nil {
		result = &registry.Result{Success: false, Error: fmt.Sprintf("[BLOCKED] %s", err.Error())}
	}

	return result, false, nil
}

// toolDefinitions builds the model-facing tool catalog, filtered to the
// tools this ToolContext's session permits.
func (l *Loop) toolDefinitions(tc ToolContext) []llm.ToolDefinition {
	policy := l.Registry.Policy()
	var defs []llm.ToolDefinition
	for _, t := range l.Registry.List() {
		if !tc.permits(t.Name()) {
			continue
		}
		if policy != nil {
			if allowed, _ := policy.NeedsApproval(tc.Session, t.Name()); !allowed {
				continue
			}
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schemaToParameters(t.InputSchema()),
		})
	}
	return defs
}

// schemaToParameters round-trips a registry.JSONSchema through JSON into the
// plain map[string]any shape the wire protocol expects for a tool's
// "parameters" field.
func schemaToParameters(schema *registry.JSONSchema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// callModel calls the model, streaming if requested. A streaming failure
// falls back to a single non-streamed call transparently.
func (l *Loop) callModel(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts RunOptions) (*llm.Response, error) {
	if !opts.Stream {
		return l.Client.Chat(ctx, messages, tools)
	}

	stream, err := l.Client.ChatStream(ctx, messages, tools)
	if err != nil {
		return l.Client.Chat(ctx, messages, tools)
	}

	var cumulative string
	var toolCalls []llm.ToolCall
	var usage llm.Usage

	for delta := range stream {
		if delta.ContentDelta != "" {
			cumulative += delta.ContentDelta
			if opts.OnDelta != nil {
				opts.OnDelta(cumulative, false)
			}
		}
		if delta.ToolCall != nil {
			toolCalls = append(toolCalls, *delta.ToolCall)
		}
		if delta.FinalUsage.TotalTokens > 0 {
			usage = delta.FinalUsage
		}
	}

	return &llm.Response{Content: cumulative, ToolCalls: toolCalls, Usage: usage}, nil
}
