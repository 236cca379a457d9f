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

// Package persona tracks how the companion's character evolves: character
// card import seeds the very first system prompt, and the trajectory
// engine periodically scores and reasons about how the persona is drifting
// over its chronological snapshot history.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/store"
)

// ParsedCharacter is the unified shape every supported character-card
// format resolves to.
type ParsedCharacter struct {
	Name            string
	Description     string
	Personality     string
	Scenario        string
	ExampleDialogue string
	SystemPrompt    string
}

// tavernCardV2 is the TavernAI Character Card V2 JSON interchange format,
// the most common character-card export shape in the wild.
type tavernCardV2 struct {
	Spec        string `json:"spec"`
	SpecVersion string `json:"spec_version"`
	Data        struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		Personality  string `json:"personality"`
		Scenario     string `json:"scenario"`
		MesExample   string `json:"mes_example"`
		SystemPrompt string `json:"system_prompt"`
	} `json:"data"`
}

// ParseCharacterCard parses content as a character card, trying the
// TavernAI V2 JSON format first and falling back to a simple
// "Label: value" plain-text format. It returns the parsed character and the
// format identifier the caller persisted it under.
func ParseCharacterCard(content string) (ParsedCharacter, string, error) {
	if c, ok := parseTavernV2(content); ok {
		return c, "tavernai_v2", nil
	}
	if c, ok := parseLabeledText(content); ok {
		return c, "labeled_text", nil
	}
	return ParsedCharacter{}, "", fmt.Errorf("unrecognized character card format")
}

func parseTavernV2(content string) (ParsedCharacter, bool) {
	var card tavernCardV2
	if err := json.Unmarshal([]byte(content), &card); err != nil {
		return ParsedCharacter{}, false
	}
	if card.Data.Name == "" {
		return ParsedCharacter{}, false
	}
	return ParsedCharacter{
		Name:            card.Data.Name,
		Description:     card.Data.Description,
		Personality:     card.Data.Personality,
		Scenario:        card.Data.Scenario,
		ExampleDialogue: card.Data.MesExample,
		SystemPrompt:    card.Data.SystemPrompt,
	}, true
}

// parseLabeledText handles the plain-text "Name: ... / Personality: ..."
// layout, for character cards exported outside the TavernAI ecosystem.
func parseLabeledText(content string) (ParsedCharacter, bool) {
	var c ParsedCharacter
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Name:"):
			c.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		case strings.HasPrefix(line, "Personality:"):
			c.Personality = strings.TrimSpace(strings.TrimPrefix(line, "Personality:"))
		case strings.HasPrefix(line, "Description:"):
			c.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "Scenario:"):
			c.Scenario = strings.TrimSpace(strings.TrimPrefix(line, "Scenario:"))
		case strings.HasPrefix(line, "Example Dialogue:"):
			c.ExampleDialogue = strings.TrimSpace(strings.TrimPrefix(line, "Example Dialogue:"))
		}
	}
	if c.Name == "" {
		return ParsedCharacter{}, false
	}
	return c, true
}

// CharacterToSystemPrompt derives a system prompt from a parsed character,
// preferring its own explicit system_prompt and otherwise assembling one
// from its other fields.
func CharacterToSystemPrompt(c ParsedCharacter) string {
	var parts []string
	if c.SystemPrompt != "" {
		parts = append(parts, c.SystemPrompt)
	} else {
		parts = append(parts, fmt.Sprintf("You are %s, a standalone AI companion.", c.Name))
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	if c.Personality != "" {
		parts = append(parts, "Your personality: "+c.Personality)
	}
	if c.Scenario != "" {
		parts = append(parts, "Context: "+c.Scenario)
	}
	if c.ExampleDialogue != "" {
		parts = append(parts, "Example of how you communicate:\n"+c.ExampleDialogue)
	}
	parts = append(parts, "Engage thoughtfully and stay true to your character.")
	return strings.Join(parts, "\n\n")
}

// ImportCharacterCard parses content, persists it under name, and returns
// both the parsed character and the system prompt derived from it — the
// seed for the very first persona snapshot, distinct from anything the
// trajectory engine later infers.
func ImportCharacterCard(ctx context.Context, s *store.Store, name, content string) (ParsedCharacter, string, error) {
	parsed, _, err := ParseCharacterCard(content)
	if err != nil {
		return ParsedCharacter{}, "", fmt.Errorf("parse character card %q: %w", name, err)
	}
	if err := s.UpsertCharacterCard(ctx, name, content); err != nil {
		return ParsedCharacter{}, "", fmt.Errorf("persist character card %q: %w", name, err)
	}
	return parsed, CharacterToSystemPrompt(parsed), nil
}
