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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// partialToolCall accumulates one tool call's streamed argument fragments;
// the API streams a tool call's id/name once and its arguments in pieces.
type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

// ChatStream sends messages and tool definitions with streaming enabled and
// emits StreamDeltas onto the returned channel: one per content fragment,
// one per completed tool call once the choice reports a finish reason, and a
// closing delta with Done set to true. A chunk that reports usage is emitted
// as an extra Done delta carrying FinalUsage, ahead of that chunk's content;
// the closing Done delta carries no usage. The channel is closed once the
// stream ends or ctx is cancelled.
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamDelta, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    convertMessages(messages),
		Tools:       convertTools(tools),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("chat stream request returned %d", resp.StatusCode)
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		pending := map[int]*partialToolCall{}
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				send(ctx, out, StreamDelta{Done: true})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Usage != nil {
				send(ctx, out, StreamDelta{
					Done: true,
					FinalUsage: Usage{
						InputTokens:  chunk.Usage.PromptTokens,
						OutputTokens: chunk.Usage.CompletionTokens,
						TotalTokens:  chunk.Usage.TotalTokens,
					},
				})
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				send(ctx, out, StreamDelta{ContentDelta: choice.Delta.Content})
			}
			for i, tc := range choice.Delta.ToolCalls {
				p, exists := pending[i]
				if !exists {
					p = &partialToolCall{}
					pending[i] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != nil {
				for _, p := range pending {
					var args map[string]any
					_ = json.Unmarshal([]byte(p.args.String()), &args)
					send(ctx, out, StreamDelta{ToolCall: &ToolCall{ID: p.id, Name: p.name, Input: args}})
				}
				send(ctx, out, StreamDelta{Done: true})
				return
			}
		}
	}()

	return out, nil
}

func send(ctx context.Context, out chan<- StreamDelta, delta StreamDelta) {
	select {
	case out <- delta:
	case <-ctx.Done():
	}
}
