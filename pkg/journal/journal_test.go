package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/store"
)

func newWriter(t *testing.T, minInterval time.Duration) *journal.Writer {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return journal.New(s, minInterval)
}

func TestShouldWriteRequiresTransitionIntoJournal(t *testing.T) {
	w := newWriter(t, time.Minute)
	ctx := context.Background()

	ok, err := w.ShouldWrite(ctx, "Journal", "Journal", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.ShouldWrite(ctx, "Journal", "Idle", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.ShouldWrite(ctx, "Idle", "DeepWork", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldWriteRespectsMinInterval(t *testing.T) {
	w := newWriter(t, time.Hour)
	ctx := context.Background()

	_, err := w.Write(ctx, journal.Draft{Narrative: "a quiet afternoon"}, nil, "Content")
	require.NoError(t, err)

	ok, err := w.ShouldWrite(ctx, "Journal", "Idle", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.ShouldWrite(ctx, "Journal", "Idle", time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteSkipsWhenDraftOptsOut(t *testing.T) {
	w := newWriter(t, time.Minute)
	entry, err := w.Write(context.Background(), journal.Draft{Skip: true}, nil, "Content")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestWriteFiltersUnknownConcernsAndDefaultsMood(t *testing.T) {
	w := newWriter(t, time.Minute)
	known := map[string]bool{"c1": true}

	entry, err := w.Write(context.Background(), journal.Draft{
		Narrative:       "thinking about the project",
		RelatedConcerns: []string{"c1", "c2-unknown"},
	}, known, "Reflective")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Reflective", entry.Mood)
	assert.Equal(t, []string{"c1"}, entry.RelatedConcerns)
}

func TestRecentOrdersMostRecentFirst(t *testing.T) {
	w := newWriter(t, 0)
	ctx := context.Background()

	_, err := w.Write(ctx, journal.Draft{Narrative: "first"}, nil, "Content")
	require.NoError(t, err)
	_, err = w.Write(ctx, journal.Draft{Narrative: "second"}, nil, "Content")
	require.NoError(t, err)

	entries, err := w.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Narrative)
}
