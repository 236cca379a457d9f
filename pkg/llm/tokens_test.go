package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embercore/ember/pkg/llm"
)

func TestEstimateTokensNonZero(t *testing.T) {
	n := llm.EstimateTokens("the kitchen light flickers at night")
	assert.Greater(t, n, 0)
}

func TestEstimateTokensEmpty(t *testing.T) {
	n := llm.EstimateTokens("")
	assert.GreaterOrEqual(t, n, 0)
}

func TestEstimateMessagesSumsOverhead(t *testing.T) {
	messages := []llm.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}
	single := llm.EstimateTokens("hello") + llm.EstimateTokens("hi there")
	total := llm.EstimateMessages(messages)
	assert.Greater(t, total, single)
}

func TestEstimateCostUSDKnownModel(t *testing.T) {
	cost := llm.EstimateCostUSD("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 0.001)
}

func TestEstimateCostUSDUnknownModelIsFree(t *testing.T) {
	cost := llm.EstimateCostUSD("llama3.2", 1_000_000, 1_000_000)
	assert.Equal(t, 0.0, cost)
}
