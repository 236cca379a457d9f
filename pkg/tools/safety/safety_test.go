package safety_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/tools/registry"
	"github.com/embercore/ember/pkg/tools/safety"
)

func TestValidateInputBlocksDangerousShell(t *testing.T) {
	p := safety.New()
	err := p.ValidateInput("shell", nil, map[string]any{"command": "rm -rf /"})
	assert.Error(t, err)
}

func TestValidateInputAllowsOrdinaryShell(t *testing.T) {
	p := safety.New()
	err := p.ValidateInput("shell", nil, map[string]any{"command": "ls -la"})
	assert.NoError(t, err)
}

func TestValidateInputRejectsSchemaViolation(t *testing.T) {
	p := safety.New()
	schema := &registry.JSONSchema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]*registry.JSONSchema{
			"query": {Type: "string"},
		},
	}
	err := p.ValidateInput("search_memory", schema, map[string]any{})
	assert.Error(t, err)
}

func TestValidateInputAcceptsSchemaMatch(t *testing.T) {
	p := safety.New()
	schema := &registry.JSONSchema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]*registry.JSONSchema{
			"query": {Type: "string"},
		},
	}
	err := p.ValidateInput("search_memory", schema, map[string]any{"query": "hello"})
	assert.NoError(t, err)
}

func TestCheckOutputRedactsAPIKey(t *testing.T) {
	p := safety.New()
	result := &registry.Result{Data: "here is the key sk-abcdefghijklmnopqrstuvwx to use"}
	require.NoError(t, p.CheckOutput("fetch", result))
	assert.NotContains(t, result.Data, "sk-abcdefghijklmnopqrstuvwx")
	assert.Contains(t, result.Data, "[REDACTED]")
}

func TestCheckOutputNilResult(t *testing.T) {
	p := safety.New()
	assert.NoError(t, p.CheckOutput("fetch", nil))
}
