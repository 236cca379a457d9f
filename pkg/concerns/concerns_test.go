package concerns_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/store"
)

func newTracker(t *testing.T) *concerns.Tracker {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return concerns.New(s)
}

func TestIngestDiscardsLowConfidenceOrEmptySummary(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	c, err := tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "rewrite the build pipeline", Confidence: 0.1})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "   ", Confidence: 0.9})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestIngestCreatesAndTouchesByMatch(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	c1, err := tr.Ingest(ctx, concerns.Signal{
		Kind: "project", Summary: "rewrite the build pipeline in go", Confidence: 0.9, KeyEvent: "started",
	})
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, concerns.ProjectWork, c1.ConcernType)
	assert.Equal(t, concerns.Active, c1.Salience)

	c2, err := tr.Ingest(ctx, concerns.Signal{
		Kind: "project", Summary: "rewrite the build pipeline in go", Confidence: 0.9, KeyEvent: "continued",
	})
	require.NoError(t, err)
	require.NotNil(t, c2)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, []string{"started", "continued"}, c2.KeyEvents)
}

func TestIngestTouchOnlySkipsCreate(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	c, err := tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "brand new concern here", Confidence: 0.9, TouchOnly: true})
	require.NoError(t, err)
	assert.Nil(t, c)

	all, err := tr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIngestUnknownKindDefaultsToPersonalInterest(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	c, err := tr.Ingest(ctx, concerns.Signal{Kind: "something-else", Summary: "collecting vinyl records", Confidence: 0.9})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, concerns.PersonalInterest, c.ConcernType)
}

func TestDecaySalienceTransitions(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	c, err := tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "rewrite the build pipeline in go", Confidence: 0.9})
	require.NoError(t, err)
	require.NotNil(t, c)

	changed, err := tr.DecaySalience(ctx, time.Now().UTC().Add(40*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, concerns.Background, changed[0].Salience)
}

func TestPriorityContextOrdersAndCaps(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	_, err := tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "rewrite the build pipeline in go", Confidence: 0.9})
	require.NoError(t, err)
	_, err = tr.Ingest(ctx, concerns.Signal{Kind: "interest", Summary: "collecting vinyl records at home", Confidence: 0.9})
	require.NoError(t, err)

	lines, err := tr.PriorityContext(ctx, 1, 0, nil)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestTouchFromTextMatchesSummary(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	c, err := tr.Ingest(ctx, concerns.Signal{Kind: "project", Summary: "rewrite the build pipeline", Confidence: 0.9})
	require.NoError(t, err)
	require.NotNil(t, c)

	before := c.LastTouched
	time.Sleep(time.Millisecond)

	touched, err := tr.TouchFromText(ctx, "Today I finally started to rewrite the build pipeline")
	require.NoError(t, err)
	require.Len(t, touched, 1)
	assert.True(t, touched[0].LastTouched.After(before))
}
