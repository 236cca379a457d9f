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
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// local models don't expose their own tokenizer over the wire; cl100k_base
// is close enough across llama/mistral/gpt families to budget context
// windows and estimate cost before a request is sent.
const estimationEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(estimationEncoding)
	})
	return enc, encErr
}

// EstimateTokens returns an approximate token count for text. On any
// tokenizer load failure it falls back to a conservative chars/4 estimate
// rather than failing the caller's request.
func EstimateTokens(text string) int {
	e, err := encoder()
	if err != nil {
		return len(text)/4 + 1
	}
	return len(e.Encode(text, nil, nil))
}

// EstimateMessages sums EstimateTokens across a conversation, adding a small
// per-message overhead for role/formatting tokens that the raw content count
// misses.
func EstimateMessages(messages []Message) int {
	const perMessageOverhead = 4
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + perMessageOverhead
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(tc.Name) + 8
		}
	}
	return total
}

// costPerMillionTokens is a pricing table for commonly used hosted models;
// anything not listed (including all local Ollama models) costs nothing.
var costPerMillionTokens = map[string]struct{ Input, Output float64 }{
	"gpt-4o":      {Input: 2.50, Output: 10.00},
	"gpt-4o-mini": {Input: 0.15, Output: 0.60},
}

// EstimateCostUSD prices a request/response pair against a known hosted
// model's rate card. Models absent from the table (the local default among
// them) price at zero.
func EstimateCostUSD(model string, inputTokens, outputTokens int) float64 {
	rate, ok := costPerMillionTokens[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*rate.Input + float64(outputTokens)*rate.Output) / 1_000_000
}
