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
	"encoding/json"
	"regexp"
	"strings"
)

var thinkTagPattern = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>`)

// ExtractThinking pulls the first <think>...</think> or <thinking>...</thinking>
// block out of raw model output, returning the remaining visible content
// separately from the extracted reasoning. Some local models leave the
// closing tag off entirely when the reasoning runs to the end of the
// response; that case is treated as "everything after the opening tag is
// thinking, nothing is left over to show".
func ExtractThinking(raw string) (content string, thinking string) {
	if m := thinkTagPattern.FindStringSubmatchIndex(raw); m != nil {
		thinking = strings.TrimSpace(raw[m[2]:m[3]])
		content = strings.TrimSpace(raw[:m[0]] + raw[m[1]:])
		return content, thinking
	}

	for _, open := range []string{"<thinking>", "<think>"} {
		if idx := strings.Index(raw, open); idx != -1 {
			thinking = strings.TrimSpace(raw[idx+len(open):])
			content = strings.TrimSpace(raw[:idx])
			return content, thinking
		}
	}

	return strings.TrimSpace(raw), ""
}

// legacyDecision is the JSON shape older, non-tool-calling models were asked
// to emit directly in their response body: a single tool invocation encoded
// as text instead of through the function-calling API.
type legacyDecision struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Reply      string         `json:"reply"`
}

var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractLegacyToolCall looks for a JSON tool-call object embedded in content
// emitted by models with no native function-calling support: first a fenced
// ```json code block, then a bare top-level JSON object. Returns ok=false if
// neither form decodes to something naming a tool.
func ExtractLegacyToolCall(content string) (call ToolCall, reply string, ok bool) {
	candidates := make([]string, 0, 2)
	if m := jsonFencePattern.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if trimmed := strings.TrimSpace(content); strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed)
	}

	for _, candidate := range candidates {
		var dec legacyDecision
		if err := json.Unmarshal([]byte(candidate), &dec); err != nil {
			continue
		}
		if dec.Tool == "" {
			continue
		}
		return ToolCall{Name: dec.Tool, Input: dec.Parameters}, dec.Reply, true
	}
	return ToolCall{}, content, false
}
