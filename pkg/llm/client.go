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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultEndpoint points at a local Ollama instance's OpenAI-compatible
	// endpoint, matching how the companion has always been run by default.
	DefaultEndpoint    = "http://localhost:11434/v1/chat/completions"
	DefaultModel       = "llama3.2"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
)

// Config configures a Client. Zero-valued Model, Endpoint and APIKey fall
// back first to their environment variables (EMBER_LLM_* before LLM_*);
// zero-valued Model, Endpoint, Timeout, MaxTokens and Temperature then fall
// back to the package defaults. APIKey has no default.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func resolveConfig(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = firstEnv("EMBER_LLM_MODEL", "LLM_MODEL")
		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = firstEnv("EMBER_LLM_API_URL", "LLM_API_URL")
		if cfg.Endpoint == "" {
			cfg.Endpoint = DefaultEndpoint
		}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = firstEnv("EMBER_LLM_API_KEY", "LLM_API_KEY")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return cfg
}

// Client is a chat-completions client for any OpenAI-compatible endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client, resolving unset Config fields from environment
// variables and package defaults.
func New(cfg Config) *Client {
	cfg = resolveConfig(cfg)
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// wireMessage mirrors the OpenAI chat-completions message shape.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func convertMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			wm.Content = m.ToolResult
			wm.ToolCallID = m.ToolUseID
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Input)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func convertTools(tools []ToolDefinition) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

// Chat sends messages (and optional tool definitions) and returns the
// model's full, non-streamed response.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    convertMessages(messages),
		Tools:       convertTools(tools),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request returned %d: %s", resp.StatusCode, string(body))
	}

	var wire chatResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse chat response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("chat response contained no choices")
	}

	choice := wire.Choices[0]
	result := &Response{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		result.ToolCalls = append(result.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: args})
	}

	result.Content, result.Thinking = ExtractThinking(result.Content)
	return result, nil
}
