package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/tools/builtin"
)

func TestWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	wt := &builtin.WriteFileTool{Root: dir}
	rt := &builtin.ReadFileTool{Root: dir}
	ctx := context.Background()

	res, err := wt.Execute(ctx, map[string]any{"path": "note.txt", "content": "hello world"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = rt.Execute(ctx, map[string]any{"path": "note.txt"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello world", res.Data)
}

func TestReadFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	rt := &builtin.ReadFileTool{Root: dir}
	res, err := rt.Execute(context.Background(), map[string]any{"path": "../../etc/passwd"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPatchFileAppliesUnifiedDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	pt := &builtin.PatchFileTool{Root: dir}
	patch := "@@ -1,2 +1,2 @@\n-line one\n+line ONE\n line two\n"
	res, err := pt.Execute(context.Background(), map[string]any{"path": "f.txt", "patch": patch})
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line ONE")
}
