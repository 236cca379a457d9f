package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/kv"
	"github.com/embercore/ember/pkg/memory/migration"
	"github.com/embercore/ember/pkg/store"
)

func memoryDesign(id string, version int) memory.Design {
	return memory.Design{ID: id, SchemaVersion: version}
}

func TestRegisterAndApplyDirect(t *testing.T) {
	s1, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s2.Close()

	src := kv.New(s1)
	dst := kv.New(s2)
	ctx := context.Background()
	require.NoError(t, src.SetEntry(ctx, "a", "alpha"))
	require.NoError(t, src.SetEntry(ctx, "b", "beta"))

	reg := migration.NewRegistry()
	reg.Register(migration.Migration{
		From: src.DesignVersion(),
		To:   dst.DesignVersion(),
		Apply: migration.CopyAllEntries,
	})

	require.NoError(t, reg.ApplyDirect(ctx, src, dst))

	entries, err := dst.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFindPathNoRoute(t *testing.T) {
	reg := migration.NewRegistry()
	_, ok := reg.FindPath("kv", "episodic")
	assert.False(t, ok)
}

func TestFindPathTrivial(t *testing.T) {
	reg := migration.NewRegistry()
	path, ok := reg.FindPath("kv", "kv")
	assert.True(t, ok)
	assert.Empty(t, path)
}

func TestFindPathMultiHop(t *testing.T) {
	reg := migration.NewRegistry()
	kvDesign := memoryDesign("kv", 1)
	ftsDesign := memoryDesign("fts", 2)
	episodicDesign := memoryDesign("episodic", 3)

	reg.Register(migration.Migration{From: kvDesign, To: ftsDesign, Apply: migration.CopyAllEntries})
	reg.Register(migration.Migration{From: ftsDesign, To: episodicDesign, Apply: migration.CopyAllEntries})

	path, ok := reg.FindPath("kv", "episodic")
	require.True(t, ok)
	require.Len(t, path, 2)
	assert.Equal(t, "fts", path[0].To.ID)
	assert.Equal(t, "episodic", path[1].To.ID)
}
