package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/llm"
)

func TestClientChatParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {"content": "<think>checking</think>hello there"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := llm.New(llm.Config{Endpoint: srv.URL})
	resp, err := c.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "checking", resp.Thinking)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClientChatWithToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "search_memory", "arguments": "{\"query\":\"kitchen\"}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := llm.New(llm.Config{Endpoint: srv.URL})
	resp, err := c.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, []llm.ToolDefinition{
		{Name: "search_memory", Description: "search", Parameters: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search_memory", resp.ToolCalls[0].Name)
	assert.Equal(t, "kitchen", resp.ToolCalls[0].Input["query"])
}

func TestClientChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := llm.New(llm.Config{Endpoint: srv.URL})
	_, err := c.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
}

func TestNewResolvesDefaults(t *testing.T) {
	c := llm.New(llm.Config{})
	assert.NotNil(t, c)
}
