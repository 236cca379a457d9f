package orientation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/orientation"
	"github.com/embercore/ember/pkg/presence"
	"github.com/embercore/ember/pkg/store"
)

type stubDecider struct {
	o   orientation.Orientation
	err error
}

func (s stubDecider) Decide(ctx context.Context, in orientation.Input) (orientation.Orientation, error) {
	return s.o, s.err
}

func TestOrientHeuristicAway(t *testing.T) {
	e := orientation.New(nil)
	o := e.Orient(context.Background(), orientation.Input{
		Presence: presence.Snapshot{IdleSeconds: 1801},
	})
	assert.Equal(t, orientation.Away, o.Mode)
	assert.NotEmpty(t, o.ContextSignature)
}

func TestOrientHeuristicIdle(t *testing.T) {
	e := orientation.New(nil)
	o := e.Orient(context.Background(), orientation.Input{
		Presence: presence.Snapshot{IdleSeconds: 301},
	})
	assert.Equal(t, orientation.Idle, o.Mode)
}

func TestOrientHeuristicDeepWork(t *testing.T) {
	e := orientation.New(nil)
	o := e.Orient(context.Background(), orientation.Input{
		Presence: presence.Snapshot{
			IdleSeconds: 5,
			CPUPercent:  45,
			TopProcesses: []presence.ProcessInfo{
				{Name: "code", Category: presence.CategoryDevelopment},
			},
		},
	})
	assert.Equal(t, orientation.DeepWork, o.Mode)
}

func TestOrientHeuristicLightWork(t *testing.T) {
	e := orientation.New(nil)
	o := e.Orient(context.Background(), orientation.Input{
		Presence: presence.Snapshot{IdleSeconds: 5, CPUPercent: 2},
	})
	assert.Equal(t, orientation.LightWork, o.Mode)
}

func TestOrientDispositionPrecedence(t *testing.T) {
	e := orientation.New(nil)

	observe := e.Orient(context.Background(), orientation.Input{
		PendingEvents: []string{"reminder"},
		GPUTempC:      95,
	})
	assert.Equal(t, orientation.Observe, observe.Disposition)

	surface := e.Orient(context.Background(), orientation.Input{GPUTempC: 95})
	assert.Equal(t, orientation.Surface, surface.Disposition)

	surfaceMem := e.Orient(context.Background(), orientation.Input{
		Presence: presence.Snapshot{MemPercent: 93},
	})
	assert.Equal(t, orientation.Surface, surfaceMem.Disposition)

	idle := e.Orient(context.Background(), orientation.Input{})
	assert.Equal(t, orientation.DispIdle, idle.Disposition)
}

func TestOrientUsesModelDecisionWhenValid(t *testing.T) {
	e := orientation.New(stubDecider{o: orientation.Orientation{
		Mode:        orientation.DeepWork,
		Disposition: orientation.DispJournal,
		Mood:        "reflective",
	}})
	o := e.Orient(context.Background(), orientation.Input{})
	assert.Equal(t, orientation.DeepWork, o.Mode)
	assert.Equal(t, orientation.DispJournal, o.Disposition)
	assert.Equal(t, "reflective", o.Mood)
	assert.NotEmpty(t, o.ContextSignature)
}

func TestOrientFallsBackWhenDeciderErrors(t *testing.T) {
	e := orientation.New(stubDecider{err: errors.New("model unavailable")})
	o := e.Orient(context.Background(), orientation.Input{Presence: presence.Snapshot{IdleSeconds: 2000}})
	assert.Equal(t, orientation.Away, o.Mode)
}

func TestOrientFallsBackWhenDeciderOmitsFields(t *testing.T) {
	e := orientation.New(stubDecider{o: orientation.Orientation{Mood: "curious"}})
	o := e.Orient(context.Background(), orientation.Input{Presence: presence.Snapshot{IdleSeconds: 2000}})
	assert.Equal(t, orientation.Away, o.Mode)
}

func TestContextSignatureStableAcrossIdenticalInputs(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 22, 0, 0, time.UTC)
	in := orientation.Input{
		Presence: presence.Snapshot{
			IdleSeconds:  42,
			CPUPercent:   17,
			MemPercent:   33,
			TimeOfDay:    now,
			TopProcesses: []presence.ProcessInfo{{Name: "Code Helper"}},
		},
		Concerns: []concerns.Concern{{ID: "abc"}},
	}
	a := orientation.ContextSignature(in)
	b := orientation.ContextSignature(in)
	assert.Equal(t, a, b)
}

func TestContextSignatureDiffersOnMeaningfulChange(t *testing.T) {
	base := orientation.Input{Presence: presence.Snapshot{IdleSeconds: 10}}
	other := orientation.Input{Presence: presence.Snapshot{IdleSeconds: 2000}}
	assert.NotEqual(t, orientation.ContextSignature(base), orientation.ContextSignature(other))
}

func TestContextSignatureIgnoresSubBucketNoise(t *testing.T) {
	a := orientation.Input{Presence: presence.Snapshot{IdleSeconds: 10, CPUPercent: 21}}
	b := orientation.Input{Presence: presence.Snapshot{IdleSeconds: 15, CPUPercent: 24}}
	assert.Equal(t, orientation.ContextSignature(a), orientation.ContextSignature(b))
}

func TestSaveAndLoadOrientationRoundTrip(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	o := orientation.Orientation{
		Mode:             orientation.LightWork,
		Disposition:      orientation.DispIdle,
		ContextSignature: "sig-1",
	}
	require.NoError(t, orientation.Save(context.Background(), s, o))

	loaded, ok, err := orientation.Load(context.Background(), s, "sig-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, o, loaded)

	_, ok, err = orientation.Load(context.Background(), s, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOrientationUpsertsOnRepeatSignature(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	first := orientation.Orientation{Mode: orientation.Idle, Disposition: orientation.DispIdle, ContextSignature: "dup"}
	second := orientation.Orientation{Mode: orientation.DeepWork, Disposition: orientation.Observe, ContextSignature: "dup"}

	require.NoError(t, orientation.Save(context.Background(), s, first))
	require.NoError(t, orientation.Save(context.Background(), s, second))

	loaded, ok, err := orientation.Load(context.Background(), s, "dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orientation.DeepWork, loaded.Mode)
}
