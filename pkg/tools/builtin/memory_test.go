package builtin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory/kv"
	"github.com/embercore/ember/pkg/store"
	"github.com/embercore/ember/pkg/tools/builtin"
)

func TestWriteMemoryThenSearch(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	backend := kv.New(s)
	write := &builtin.WriteMemoryTool{Backend: backend}
	search := &builtin.SearchMemoryTool{Backend: backend}
	ctx := context.Background()

	res, err := write.Execute(ctx, map[string]any{"key": "fact-1", "content": "the kitchen light flickers at night"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = search.Execute(ctx, map[string]any{"query": "kitchen light"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	results := res.Data.([]map[string]any)
	require.Len(t, results, 1)
	assert.Equal(t, "fact-1", results[0]["key"])
}
