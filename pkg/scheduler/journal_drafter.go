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

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/MakeNowJust/heredoc"

	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/orientation"
)

var journalSystemPrompt = heredoc.Doc(`
	You write a short first-person reflective journal entry for a persistent
	AI companion, given its current orientation, recent entries, active
	concerns, and events it noticed since the last entry. If there is truly
	nothing worth reflecting on, opt out instead of writing filler. Respond
	with a single JSON object and nothing else:

	{"skip": false, "mood": "...", "narrative": "...", "related_concerns": ["..."]}
`)

var journalJSONFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// LLMJournalDrafter implements JournalDrafter over a chat-completions
// model client.
type LLMJournalDrafter struct {
	Client *llm.Client
}

// NewLLMJournalDrafter builds a JournalDrafter backed by client.
func NewLLMJournalDrafter(client *llm.Client) *LLMJournalDrafter {
	return &LLMJournalDrafter{Client: client}
}

var _ JournalDrafter = (*LLMJournalDrafter)(nil)

type journalDraftResponse struct {
	Skip            bool     `json:"skip"`
	Mood            string   `json:"mood"`
	Narrative       string   `json:"narrative"`
	RelatedConcerns []string `json:"related_concerns"`
}

// Draft asks the model for a journal.Draft. An empty or unparseable
// response degrades to Skip rather than an error, since a missed journal
// entry is never worse than a fabricated one.
func (d *LLMJournalDrafter) Draft(ctx context.Context, o orientation.Orientation, recent []journal.Entry, active []concerns.Concern, events []Event) (journal.Draft, error) {
	if d.Client == nil {
		return journal.Draft{Skip: true}, fmt.Errorf("journal drafter: no client configured")
	}

	resp, err := d.Client.Chat(ctx, []llm.Message{
		{Role: "system", Content: journalSystemPrompt},
		{Role: "user", Content: describeJournalContext(o, recent, active, events)},
	}, nil)
	if err != nil {
		return journal.Draft{Skip: true}, fmt.Errorf("draft journal entry: %w", err)
	}

	dec, ok := extractJournalJSON(resp.Content)
	if !ok {
		return journal.Draft{Skip: true}, nil
	}
	return journal.Draft{
		Skip:            dec.Skip,
		Mood:            dec.Mood,
		Narrative:       dec.Narrative,
		RelatedConcerns: dec.RelatedConcerns,
	}, nil
}

func extractJournalJSON(raw string) (journalDraftResponse, bool) {
	var out journalDraftResponse
	candidates := make([]string, 0, 2)
	if m := journalJSONFencePattern.FindStringSubmatch(raw); m != nil {
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

func describeJournalContext(o orientation.Orientation, recent []journal.Entry, active []concerns.Concern, events []Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "orientation: mode=%s disposition=%s mood=%s summary=%s\n", o.Mode, o.Disposition, o.Mood, o.Summary)
	fmt.Fprintf(&b, "recent_entry_count=%d\n", len(recent))
	if len(recent) > 0 {
		fmt.Fprintf(&b, "most_recent_mood=%s\n", recent[len(recent)-1].Mood)
	}
	if len(active) > 0 {
		b.WriteString("active_concerns:")
		for _, c := range active {
			fmt.Fprintf(&b, " %s[%s]", c.Summary, c.Salience)
		}
		b.WriteString("\n")
	}
	if len(events) > 0 {
		b.WriteString("events_since_last_entry:")
		for _, e := range events {
			fmt.Fprintf(&b, " %s:%s", e.Skill, e.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}
