package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embercore/ember/pkg/llm"
)

func TestExtractThinkingWithClosedTag(t *testing.T) {
	content, thinking := llm.ExtractThinking("<think>weighing options</think>sure, I can help with that")
	assert.Equal(t, "sure, I can help with that", content)
	assert.Equal(t, "weighing options", thinking)
}

func TestExtractThinkingWithThinkingAlias(t *testing.T) {
	content, thinking := llm.ExtractThinking("before <thinking>considering the request</thinking> after")
	assert.Equal(t, "before  after", content)
	assert.Equal(t, "considering the request", thinking)
}

func TestExtractThinkingUnclosedTagConsumesRest(t *testing.T) {
	content, thinking := llm.ExtractThinking("<think>still reasoning and never wraps up")
	assert.Equal(t, "", content)
	assert.Equal(t, "still reasoning and never wraps up", thinking)
}

func TestExtractThinkingNoTag(t *testing.T) {
	content, thinking := llm.ExtractThinking("plain response")
	assert.Equal(t, "plain response", content)
	assert.Equal(t, "", thinking)
}

func TestExtractLegacyToolCallFromFence(t *testing.T) {
	raw := "here you go:\n```json\n{\"tool\": \"search_memory\", \"parameters\": {\"query\": \"kitchen\"}, \"reply\": \"checking\"}\n```\n"
	call, reply, ok := llm.ExtractLegacyToolCall(raw)
	assert.True(t, ok)
	assert.Equal(t, "search_memory", call.Name)
	assert.Equal(t, "kitchen", call.Input["query"])
	assert.Equal(t, "checking", reply)
}

func TestExtractLegacyToolCallBareObject(t *testing.T) {
	raw := `{"tool": "write_memory", "parameters": {"key": "x"}, "reply": "noted"}`
	call, _, ok := llm.ExtractLegacyToolCall(raw)
	assert.True(t, ok)
	assert.Equal(t, "write_memory", call.Name)
}

func TestExtractLegacyToolCallNoMatch(t *testing.T) {
	_, reply, ok := llm.ExtractLegacyToolCall("just a normal sentence.")
	assert.False(t, ok)
	assert.Equal(t, "just a normal sentence.", reply)
}
