// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/embercore/ember/pkg/store"
)

// DefaultGuidingPrinciples are the dimensions scored on every snapshot when
// a deployment hasn't configured its own; a model may also introduce
// additional dimensions beyond these, which are kept verbatim.
var DefaultGuidingPrinciples = []string{"curiosity", "empathy", "autonomy", "honesty", "playfulness"}

// Trajectory is what the model infers from the full chronological snapshot
// history.
type Trajectory struct {
	Narrative       string   `json:"narrative"`
	Trajectory      string   `json:"trajectory"`
	PredictedTraits []string `json:"predicted_traits"`
	Themes          []string `json:"themes"`
	Tensions        []string `json:"tensions"`
	Confidence      float64  `json:"confidence"`
}

// Snapshot is one captured self-scoring, append-only except for its
// InferredTrajectory field, which is updated in place after each
// inference run over the full history.
type Snapshot struct {
	CapturedAt         time.Time          `json:"captured_at"`
	Dimensions         map[string]float64 `json:"dimensions"`
	InferredTrajectory *Trajectory        `json:"inferred_trajectory,omitempty"`
}

// Scorer produces a snapshot's self-scoring, typically by prompting a
// model with the guiding principles and the prior history for context.
type Scorer interface {
	ScoreSnapshot(ctx context.Context, dimensions []string, history []Snapshot) (map[string]float64, error)
}

// Synthesizer infers a Trajectory from the full chronological snapshot
// history.
type Synthesizer interface {
	Synthesize(ctx context.Context, history []Snapshot) (Trajectory, error)
}

// Tracker captures and persists persona snapshots.
type Tracker struct {
	store              *store.Store
	GuidingPrinciples  []string
	Scorer             Scorer
	Synthesizer        Synthesizer
}

// New builds a Tracker. When principles is nil, DefaultGuidingPrinciples is
// used.
func New(s *store.Store, principles []string, scorer Scorer, synthesizer Synthesizer) *Tracker {
	if principles == nil {
		principles = DefaultGuidingPrinciples
	}
	return &Tracker{store: s, GuidingPrinciples: principles, Scorer: scorer, Synthesizer: synthesizer}
}

// clamp01 bounds v into [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// History returns the full chronological snapshot history, oldest first,
// capped at limit (0 means unbounded).
func (t *Tracker) History(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 1 << 30
	}
	raw, err := t.store.PersonaHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load persona history: %w", err)
	}
	out := make([]Snapshot, 0, len(raw))
	for _, s := range raw {
		var snap Snapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			return nil, fmt.Errorf("decode persona snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// CaptureSnapshot scores a fresh snapshot via Scorer, clamping every
// dimension into [0,1] and defaulting any configured guiding principle the
// model omitted to 0.5, appends it to history, then re-infers the
// trajectory over the complete history and updates the just-appended
// snapshot's InferredTrajectory in place.
func (t *Tracker) CaptureSnapshot(ctx context.Context) (*Snapshot, error) {
	history, err := t.History(ctx, 0)
	if err != nil {
		return nil, err
	}

	scores, err := t.Scorer.ScoreSnapshot(ctx, t.GuidingPrinciples, history)
	if err != nil {
		return nil, fmt.Errorf("score persona snapshot: %w", err)
	}

	dims := make(map[string]float64, len(scores))
	for dim, v := range scores {
		dims[dim] = clamp01(v)
	}
	for _, dim := range t.GuidingPrinciples {
		if _, ok := dims[dim]; !ok {
			dims[dim] = 0.5
		}
	}

	snap := Snapshot{CapturedAt: time.Now().UTC(), Dimensions: dims}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode persona snapshot: %w", err)
	}
	if err := t.store.AppendPersonaHistory(ctx, string(payload)); err != nil {
		return nil, err
	}

	fullHistory := append(history, snap)
	trajectory, err := t.Synthesizer.Synthesize(ctx, fullHistory)
	if err != nil {
		return nil, fmt.Errorf("infer persona trajectory: %w", err)
	}
	snap.InferredTrajectory = &trajectory

	updated, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode updated persona snapshot: %w", err)
	}
	if err := t.store.UpdateLatestPersonaHistory(ctx, string(updated)); err != nil {
		return nil, err
	}

	return &snap, nil
}
