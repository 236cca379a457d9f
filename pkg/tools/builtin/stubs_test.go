package builtin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/tools/builtin"
	"github.com/embercore/ember/pkg/tools/registry"
)

func TestGenerateComfyMediaWithoutHandlerReportsUnavailable(t *testing.T) {
	tool := builtin.NewGenerateComfyMediaTool(nil)
	res, err := tool.Execute(context.Background(), map[string]any{"prompt": "a sunrise"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestGenerateComfyMediaWithHandler(t *testing.T) {
	tool := builtin.NewGenerateComfyMediaTool(func(ctx context.Context, params map[string]any) (*registry.Result, error) {
		return &registry.Result{Success: true, Data: "image-ref-123"}, nil
	})
	res, err := tool.Execute(context.Background(), map[string]any{"prompt": "a sunrise"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestScreenCaptureToolName(t *testing.T) {
	tool := builtin.NewScreenCaptureTool(nil)
	assert.Equal(t, "screen_capture", tool.Name())
}
