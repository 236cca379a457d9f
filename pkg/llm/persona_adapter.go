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

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"

	"github.com/embercore/ember/pkg/persona"
)

var scoreSystemPrompt = heredoc.Doc(`
	You self-score a persistent AI companion's persona against a fixed set of
	guiding-principle dimensions, each in [0, 1], based on its recent
	snapshot history. Respond with a single JSON object mapping each
	dimension name to its score and nothing else, e.g.
	{"curiosity": 0.7, "empathy": 0.6}
`)

var synthesizeSystemPrompt = heredoc.Doc(`
	You infer how a persistent AI companion's persona has drifted over its
	full chronological snapshot history. Respond with a single JSON object
	and nothing else:

	{"narrative": "...", "trajectory": "...", "predicted_traits": ["..."], "themes": ["..."], "tensions": ["..."], "confidence": 0.0}
`)

// PersonaAdapter implements both persona.Scorer and persona.Synthesizer over
// a chat-completions model.
type PersonaAdapter struct {
	Client *Client
}

// NewPersonaAdapter builds a PersonaAdapter backed by client.
func NewPersonaAdapter(client *Client) *PersonaAdapter {
	return &PersonaAdapter{Client: client}
}

var (
	_ persona.Scorer      = (*PersonaAdapter)(nil)
	_ persona.Synthesizer = (*PersonaAdapter)(nil)
)

// ScoreSnapshot asks the model to self-score dimensions given history.
func (a *PersonaAdapter) ScoreSnapshot(ctx context.Context, dimensions []string, history []persona.Snapshot) (map[string]float64, error) {
	if a.Client == nil {
		return nil, fmt.Errorf("persona scorer: no client configured")
	}

	resp, err := a.Client.Chat(ctx, []Message{
		{Role: "system", Content: scoreSystemPrompt},
		{Role: "user", Content: describeScoringContext(dimensions, history)},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("score persona snapshot: %w", err)
	}

	scores, ok := extractJSONObject[map[string]float64](resp.Content)
	if !ok {
		return nil, fmt.Errorf("score persona snapshot: no parseable JSON scores in response")
	}
	return scores, nil
}

// Synthesize asks the model to infer a Trajectory from the full history.
func (a *PersonaAdapter) Synthesize(ctx context.Context, history []persona.Snapshot) (persona.Trajectory, error) {
	if a.Client == nil {
		return persona.Trajectory{}, fmt.Errorf("persona synthesizer: no client configured")
	}

	resp, err := a.Client.Chat(ctx, []Message{
		{Role: "system", Content: synthesizeSystemPrompt},
		{Role: "user", Content: describeHistory(history)},
	}, nil)
	if err != nil {
		return persona.Trajectory{}, fmt.Errorf("synthesize persona trajectory: %w", err)
	}

	traj, ok := extractJSONObject[persona.Trajectory](resp.Content)
	if !ok {
		return persona.Trajectory{}, fmt.Errorf("synthesize persona trajectory: no parseable JSON trajectory in response")
	}
	return traj, nil
}

func describeScoringContext(dimensions []string, history []persona.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "dimensions: %s\n", strings.Join(dimensions, ", "))
	fmt.Fprintf(&b, "snapshot_count=%d\n", len(history))
	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Fprintf(&b, "most_recent_scores: %v (captured_at=%s)\n", last.Dimensions, last.CapturedAt.Format("2006-01-02T15:04"))
	}
	return b.String()
}

func describeHistory(history []persona.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot_count=%d\n", len(history))
	for i, s := range history {
		fmt.Fprintf(&b, "[%d] captured_at=%s dimensions=%v\n", i, s.CapturedAt.Format("2006-01-02T15:04"), s.Dimensions)
	}
	return b.String()
}
