package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/agent"
	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/tools/capability"
	"github.com/embercore/ember/pkg/tools/registry"
)

// echoTool always succeeds and returns its input back as data.
type echoTool struct{ calls int }

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes input" }
func (t *echoTool) InputSchema() *registry.JSONSchema {
	return &registry.JSONSchema{Type: "object"}
}
func (t *echoTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	t.calls++
	return &registry.Result{Success: true, Data: params}, nil
}

func chatModelServer(t *testing.T, responses []string) *httptest.Server {
	t.Helper()
	idx := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := responses[idx]
		if idx < len(responses)-1 {
			idx++
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func toolCallResponse(toolName string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":%q,"arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`, toolName)
}

const finalTextResponse = `{"choices":[{"message":{"content":"all done"},"finish_reason":"stop"}]}`

func newRegistry(t *testing.T, tool registry.Tool) *registry.Registry {
	t.Helper()
	policy := capability.NewPolicy(nil)
	reg := registry.New(policy, nil, nil, nil)
	reg.Register(tool)
	return reg
}

func TestRunFinalTextNoToolCalls(t *testing.T) {
	srv := chatModelServer(t, []string{finalTextResponse})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	reg := newRegistry(t, &echoTool{})
	loop := agent.New(client, reg, nil)

	result, err := loop.Run(context.Background(), "system prompt", nil, "hello", agent.ToolContext{Session: capability.PrivateChat}, agent.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "all done", result.Content)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.HitLimit)
}

func TestRunExecutesToolThenFinishes(t *testing.T) {
	srv := chatModelServer(t, []string{toolCallResponse("echo"), finalTextResponse})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	tool := &echoTool{}
	reg := newRegistry(t, tool)
	loop := agent.New(client, reg, nil)

	var events []agent.ToolEvent
	result, err := loop.Run(context.Background(), "system prompt", nil, "use echo", agent.ToolContext{Session: capability.PrivateChat}, agent.RunOptions{
		OnToolEvent: func(ev agent.ToolEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.Equal(t, "all done", result.Content)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, tool.calls)
	require.Len(t, events, 1)
	assert.Equal(t, "echo", events[0].ToolName)
	assert.True(t, events[0].Result.Success)
}

func TestRunHitsIterationLimit(t *testing.T) {
	srv := chatModelServer(t, []string{toolCallResponse("echo")})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	reg := newRegistry(t, &echoTool{})
	loop := agent.New(client, reg, nil)

	limit := 1
	result, err := loop.Run(context.Background(), "system prompt", nil, "use echo repeatedly", agent.ToolContext{Session: capability.PrivateChat}, agent.RunOptions{
		MaxIterations: &limit,
	})
	require.NoError(t, err)
	assert.True(t, result.HitLimit)
	assert.Contains(t, result.Content, "Reached maximum of 1 tool-calling iterations")
}

func TestRunToolDisallowedInContext(t *testing.T) {
	srv := chatModelServer(t, []string{toolCallResponse("echo"), finalTextResponse})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	reg := newRegistry(t, &echoTool{})
	loop := agent.New(client, reg, nil)

	var events []agent.ToolEvent
	result, err := loop.Run(context.Background(), "system prompt", nil, "use echo", agent.ToolContext{Session: capability.Dream}, agent.RunOptions{
		OnToolEvent: func(ev agent.ToolEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Error(t, events[0].Err)
	assert.Contains(t, result.Content, "all done")
}

func TestRunNeedsApprovalStopsTurn(t *testing.T) {
	srv := chatModelServer(t, []string{toolCallResponse("echo")})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	policy := capability.NewPolicy(nil)
	policy.SetToolMode("echo", capability.AlwaysAsk)
	reg := registry.New(policy, nil, nil, nil)
	reg.Register(&echoTool{})
	loop := agent.New(client, reg, nil)

	result, err := loop.Run(context.Background(), "system prompt", nil, "use echo", agent.ToolContext{Session: capability.PrivateChat}, agent.RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.NeedsApproval)
	assert.Equal(t, "echo", result.NeedsApproval.ToolName)
}

func TestRunStreamingFallsBackOnError(t *testing.T) {
	srv := chatModelServer(t, []string{finalTextResponse})
	defer srv.Close()

	client := llm.New(llm.Config{Endpoint: srv.URL})
	reg := newRegistry(t, &echoTool{})
	loop := agent.New(client, reg, nil)

	result, err := loop.Run(context.Background(), "system", nil, "hi", agent.ToolContext{Session: capability.PrivateChat}, agent.RunOptions{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "all done", result.Content)
}

func TestToolResultMarshalsCleanly(t *testing.T) {
	data, err := json.Marshal(&registry.Result{Success: true, Data: map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"success\":true")
}
