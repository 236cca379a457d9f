package fts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory/fts"
	"github.com/embercore/ember/pkg/store"
)

func TestFTSBackendSearchRanking(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := fts.New(s)
	ctx := context.Background()

	require.NoError(t, b.SetEntry(ctx, "doc-1", "the garden needs watering every morning"))
	require.NoError(t, b.SetEntry(ctx, "doc-2", "watering the garden keeps the tomatoes happy"))
	require.NoError(t, b.SetEntry(ctx, "doc-3", "unrelated content about spreadsheets"))

	results, err := b.Query(ctx, "garden watering", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, []string{"doc-1", "doc-2"}, r.Key)
	}

	entry, ok, err := b.GetEntry(ctx, "doc-3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, entry.Content, "spreadsheets")
}

func TestFTSBackendDeleteRemovesFromIndex(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := fts.New(s)
	ctx := context.Background()

	require.NoError(t, b.SetEntry(ctx, "doc-1", "ephemeral note about rain"))
	deleted, err := b.DeleteEntry(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	results, err := b.Query(ctx, "rain", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFTSListEntriesOrderedByUpdatedAtDescending(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := fts.New(s)
	ctx := context.Background()

	require.NoError(t, b.SetEntry(ctx, "first", "a"))
	require.NoError(t, b.SetEntry(ctx, "second", "b"))

	entries, err := b.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Key)
	assert.Equal(t, "first", entries[1].Key)
}
