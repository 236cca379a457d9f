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

package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embercore/ember/pkg/tools/approval"
	"github.com/embercore/ember/pkg/tools/capability"
)

// toolMetrics is the subset of observability.Metrics this package depends
// on, kept narrow so pkg/tools/registry never imports pkg/observability
// directly and a nil *observability.Metrics satisfies it for free.
type toolMetrics interface {
	RecordToolCall(toolName string, success bool, duration time.Duration)
}

// SafetyPipeline is the pair of hooks the registry runs around every
// dispatch: ValidateInput can reject a call before it runs, CheckOutput can
// reject or redact a result before it is handed back to the model.
type SafetyPipeline interface {
	ValidateInput(toolName string, schema *JSONSchema, params map[string]any) error
	CheckOutput(toolName string, result *Result) error
}

// noopSafety passes everything through; used when no pipeline is configured.
type noopSafety struct{}

func (noopSafety) ValidateInput(string, *JSONSchema, map[string]any) error { return nil }
func (noopSafety) CheckOutput(string, *Result) error                      { return nil }

// Registry holds every known tool and dispatches calls through the
// capability policy, approval gate and safety pipeline.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	policy  *capability.Policy
	gate    approval.Gate
	safety  SafetyPipeline
	logger  *zap.Logger
	metrics toolMetrics
}

// New builds a Registry. gate may be nil to skip the approval step
// entirely (e.g. a test harness); safety may be nil to use a no-op
// pipeline.
func New(policy *capability.Policy, gate approval.Gate, safety SafetyPipeline, logger *zap.Logger) *Registry {
	if safety == nil {
		safety = noopSafety{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		policy: policy,
		gate:   gate,
		safety: safety,
		logger: logger,
	}
}

// Register adds t to the registry, keyed by its Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Policy returns the capability policy this registry dispatches against, so
// callers that need finer control than Dispatch (e.g. the agentic loop's
// non-blocking approval handling) can resolve decisions themselves.
func (r *Registry) Policy() *capability.Policy { return r.policy }

// Gate returns the approval gate this registry dispatches through. May be nil.
func (r *Registry) Gate() approval.Gate { return r.gate }

// Safety returns the safety pipeline this registry runs around dispatch.
func (r *Registry) Safety() SafetyPipeline { return r.safety }

// SetMetrics wires a metrics collector into Dispatch. Optional — a
// Registry with no metrics set records nothing.
func (r *Registry) SetMetrics(m toolMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// List returns every registered tool, for building the LLM-facing tool
// catalog.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Dispatch resolves capability policy for (ctx, toolName), waits on the
// approval gate if required, validates input, runs the tool, and checks its
// output — in that order. sessionID identifies the approval scope.
func (r *Registry) Dispatch(ctx context.Context, sessionCtx capability.SessionContext, sessionID, toolCallID, toolName string, params map[string]any) (*Result, error) {
	r.mu.RLock()
	tool, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", toolName)
	}

	if r.policy != nil {
		allowed, needsApproval := r.policy.NeedsApproval(sessionCtx, toolName)
		if !allowed {
			return nil, fmt.Errorf("%w: %q in session context %q", approval.ErrToolDisabled, toolName, sessionCtx)
		}
		if needsApproval && r.gate != nil {
			if toolCallID == "" {
				toolCallID = uuid.NewString()
			}
			if err := r.gate.Request(ctx, approval.Request{
				ID:         uuid.NewString(),
				ToolCallID: toolCallID,
				ToolName:   toolName,
				SessionID:  sessionID,
				Timeout:    5 * time.Minute,
			}); err != nil {
				return nil, fmt.Errorf("approval denied for %q: %w", toolName, err)
			}
		}
	}

	if err := r.safety.ValidateInput(toolName, tool.InputSchema(), params); err != nil {
		return nil, fmt.Errorf("input validation failed for %q: %w", toolName, err)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	if err != nil {
		r.recordMetrics(toolName, false, time.Since(start))
		return nil, fmt.Errorf("execute %q: %w", toolName, err)
	}
	if result == nil {
		result = &Result{Success: true}
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	r.recordMetrics(toolName, result.Success, time.Since(start))

	if err := r.safety.CheckOutput(toolName, result); err != nil {
		return nil, fmt.Errorf("output check failed for %q: %w", toolName, err)
	}

	return result, nil
}

func (r *Registry) recordMetrics(toolName string, success bool, duration time.Duration) {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()
	if m != nil {
		m.RecordToolCall(toolName, success, duration)
	}
}
