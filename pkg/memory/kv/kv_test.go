package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory/kv"
	"github.com/embercore/ember/pkg/store"
)

func TestKVBackendCRUDAndQuery(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := kv.New(s)
	ctx := context.Background()

	require.NoError(t, b.SetEntry(ctx, "note-1", "remember to water the plants"))
	require.NoError(t, b.SetEntry(ctx, "note-2", "the sky was orange at sunset"))

	entry, ok, err := b.GetEntry(ctx, "note-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "remember to water the plants", entry.Content)

	results, err := b.Query(ctx, "sunset", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note-2", results[0].Key)

	deleted, err := b.DeleteEntry(ctx, "note-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	entries, err := b.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestKVListEntriesOrderedByUpdatedAtDescending(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	b := kv.New(s)
	ctx := context.Background()

	require.NoError(t, b.SetEntry(ctx, "first", "a"))
	require.NoError(t, b.SetEntry(ctx, "second", "b"))

	entries, err := b.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Key)
	assert.Equal(t, "first", entries[1].Key)
	assert.NotEmpty(t, entries[0].UpdatedAt)
}
