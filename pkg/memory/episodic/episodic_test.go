package episodic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory/episodic"
	"github.com/embercore/ember/pkg/store"
)

func TestEpisodicAppendAndGetLatest(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := episodic.New(s)
	ctx := context.Background()

	require.NoError(t, b.AppendEpisode(ctx, "mood", "felt curious after the walk", 0.3))
	require.NoError(t, b.AppendEpisode(ctx, "mood", "felt content after dinner", 0.8))

	entry, ok, err := b.GetEntry(ctx, "mood")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "felt content after dinner", entry.Content)
}

func TestEpisodicQueryWeightsSalience(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := episodic.New(s)
	ctx := context.Background()

	require.NoError(t, b.AppendEpisode(ctx, "low", "a quiet moment about the garden", 0.1))
	require.NoError(t, b.AppendEpisode(ctx, "high", "an intense moment about the garden", 0.9))

	results, err := b.Query(ctx, "garden", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Key)
}

func TestEpisodicListEntriesReturnsLatestPerKey(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := episodic.New(s)
	ctx := context.Background()

	require.NoError(t, b.AppendEpisode(ctx, "k", "first", 0.5))
	require.NoError(t, b.AppendEpisode(ctx, "k", "second", 0.5))

	entries, err := b.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Content)
}

func TestEpisodicListEntriesOrderedByOccurredAtDescending(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := episodic.New(s)
	ctx := context.Background()

	require.NoError(t, b.AppendEpisode(ctx, "first", "a", 0.5))
	require.NoError(t, b.AppendEpisode(ctx, "second", "b", 0.5))

	entries, err := b.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Key)
	assert.Equal(t, "first", entries[1].Key)
}
