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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"

	"github.com/embercore/ember/pkg/orientation"
)

var orientationSystemPrompt = heredoc.Doc(`
	You read a snapshot of what the operator is doing and decide how a
	persistent AI companion should orient itself. Respond with a single JSON
	object and nothing else:

	{"mode": "Away|Idle|DeepWork|LightWork", "disposition": "Observe|Surface|Idle|Journal", "mood": "...", "summary": "..."}

	mode describes the operator's current activity level. disposition is
	what the companion should do about it. mood is a short first-person
	feeling word or phrase. summary is one sentence describing the situation.
`)

// Decider implements orientation.Decider over a chat-completions model: it
// renders the tick's presence/concerns/journal/persona context as a user
// message and asks the model to classify it.
type Decider struct {
	Client *Client
}

// NewDecider builds an orientation.Decider backed by client.
func NewDecider(client *Client) *Decider {
	return &Decider{Client: client}
}

var _ orientation.Decider = (*Decider)(nil)

type orientationDecision struct {
	Mode        string `json:"mode"`
	Disposition string `json:"disposition"`
	Mood        string `json:"mood"`
	Summary     string `json:"summary"`
}

// Decide asks the model to classify in and parses its JSON response into an
// orientation.Orientation. orientation.Engine.Orient falls back to its
// deterministic heuristic whenever this returns an error or an empty
// mode/disposition pair, so failures here are never fatal to a tick.
func (d *Decider) Decide(ctx context.Context, in orientation.Input) (orientation.Orientation, error) {
	if d.Client == nil {
		return orientation.Orientation{}, fmt.Errorf("orientation decider: no client configured")
	}

	resp, err := d.Client.Chat(ctx, []Message{
		{Role: "system", Content: orientationSystemPrompt},
		{Role: "user", Content: describeOrientationInput(in)},
	}, nil)
	if err != nil {
		return orientation.Orientation{}, fmt.Errorf("orientation decide: %w", err)
	}

	dec, ok := extractJSONObject[orientationDecision](resp.Content)
	if !ok {
		return orientation.Orientation{}, fmt.Errorf("orientation decide: no parseable JSON decision in response")
	}

	return orientation.Orientation{
		Mode:        orientation.Mode(dec.Mode),
		Disposition: orientation.Disposition(dec.Disposition),
		Mood:        dec.Mood,
		Summary:     dec.Summary,
	}, nil
}

func describeOrientationInput(in orientation.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "idle_seconds=%.0f cpu_percent=%.1f mem_percent=%.1f time_of_day=%s\n",
		in.Presence.IdleSeconds, in.Presence.CPUPercent, in.Presence.MemPercent, in.Presence.TimeOfDay.Format("15:04"))

	if len(in.Presence.TopProcesses) > 0 {
		b.WriteString("top_processes:")
		for _, p := range in.Presence.TopProcesses {
			fmt.Fprintf(&b, " %s(%s)", p.Name, p.Category)
		}
		b.WriteString("\n")
	}

	if len(in.Concerns) > 0 {
		b.WriteString("concerns:")
		for _, c := range in.Concerns {
			fmt.Fprintf(&b, " %s[%s/%s]", c.Summary, c.ConcernType, c.Salience)
		}
		b.WriteString("\n")
	}

	if len(in.RecentJournal) > 0 {
		fmt.Fprintf(&b, "recent_journal_entries=%d, most_recent_mood=%s\n",
			len(in.RecentJournal), in.RecentJournal[len(in.RecentJournal)-1].Mood)
	}

	if len(in.PendingEvents) > 0 {
		fmt.Fprintf(&b, "pending_events: %s\n", strings.Join(in.PendingEvents, "; "))
	}

	if in.Persona != nil {
		fmt.Fprintf(&b, "persona_dimensions: %v\n", in.Persona.Dimensions)
	}

	if in.DesktopObservation != "" {
		fmt.Fprintf(&b, "desktop_observation: %s\n", in.DesktopObservation)
	}
	if in.GPUTempC > 0 {
		fmt.Fprintf(&b, "gpu_temp_c=%.1f\n", in.GPUTempC)
	}

	return b.String()
}

// extractJSONObject decodes into T the first ```json fenced block in raw, or
// else raw itself when its trimmed text is a bare { ... } object. An object
// surrounded by other prose outside a fence is not found.
func extractJSONObject[T any](raw string) (T, bool) {
	var out T
	candidates := make([]string, 0, 2)
	if m := jsonFencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if trimmed := strings.TrimSpace(raw); strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed)
	}
	for _, candidate := range candidates {
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, true
		}
	}
	return out, false
}
