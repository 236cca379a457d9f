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

// Package capability resolves, for a given session context and tool name,
// whether a tool call may run unattended, must always be confirmed by a
// human, or only needs confirmation when the agent is acting autonomously
// (i.e. not in direct conversation with its operator).
package capability

import "strings"

// SessionContext identifies the circumstance under which the agent is
// currently running, which in turn determines how cautious tool dispatch
// needs to be.
type SessionContext string

const (
	// PrivateChat is a direct, synchronous conversation with the operator.
	PrivateChat SessionContext = "private_chat"
	// SkillEvents is a reaction to an externally triggered skill/event.
	SkillEvents SessionContext = "skill_events"
	// Heartbeat is a periodic autonomous tick with no human present.
	Heartbeat SessionContext = "heartbeat"
	// Ambient is unattended background processing (e.g. passive monitoring).
	Ambient SessionContext = "ambient"
	// Dream is offline reflection/consolidation with no side-effecting tools.
	Dream SessionContext = "dream"
)

// Mode is the approval posture for a tool within a given session context.
type Mode int

const (
	// AlwaysAllow dispatches the tool without asking.
	AlwaysAllow Mode = iota
	// AlwaysAsk requires human approval regardless of autonomy.
	AlwaysAsk
	// AskWhenAutonomous requires approval only when Profile.Autonomous is true.
	AskWhenAutonomous
)

// Profile describes the default tool posture for one SessionContext.
type Profile struct {
	// Autonomous is true when no human is directly present for this context,
	// so AskWhenAutonomous-gated tools fall back to asking.
	Autonomous bool
	// Unrestricted, when true, means every tool not explicitly disallowed is
	// allowed. When false, only tools explicitly named in Allow are allowed.
	Unrestricted bool
	Allow        []string
	Disallow     []string
}

// defaultProfiles mirrors the capability posture of each session context.
// Ambient running unattended disallows anything that writes files, touches
// the shell, or publishes externally; Dream is read/write-memory only.
var defaultProfiles = map[SessionContext]Profile{
	PrivateChat: {Autonomous: false, Unrestricted: true},
	SkillEvents: {Autonomous: true, Unrestricted: true},
	Heartbeat:   {Autonomous: true, Unrestricted: true},
	Ambient: {
		Autonomous:   true,
		Unrestricted: true,
		Disallow: []string{
			"write_file", "patch_file", "shell", "write_memory",
			"generate_comfy_media", "publish_media_to_chat",
		},
	},
	Dream: {
		Autonomous:   true,
		Unrestricted: false,
		Allow:        []string{"search_memory", "write_memory"},
	},
}

// Overrides lets configuration add to or restrict the built-in defaults for
// one session context, e.g. from a YAML config file.
type Overrides struct {
	Allow    []string
	Disallow []string
}

func normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func contains(list []string, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// Policy resolves tool decisions for every known session context, with
// optional per-context overrides layered over the built-in defaults.
type Policy struct {
	profiles map[SessionContext]Profile
	// toolMode overrides the default AskWhenAutonomous classification for a
	// tool name, e.g. forcing "shell" to AlwaysAsk everywhere.
	toolMode map[string]Mode
}

// NewPolicy builds a Policy from the built-in defaults, applying overrides
// (config-driven allow/disallow lists) per session context.
func NewPolicy(overrides map[SessionContext]Overrides) *Policy {
	p := &Policy{
		profiles: make(map[SessionContext]Profile, len(defaultProfiles)),
		toolMode: make(map[string]Mode),
	}
	for ctx, prof := range defaultProfiles {
		merged := Profile{
			Autonomous:   prof.Autonomous,
			Unrestricted: prof.Unrestricted,
			Allow:        normalize(append(append([]string{}, prof.Allow...))),
			Disallow:     normalize(append(append([]string{}, prof.Disallow...))),
		}
		if ov, ok := overrides[ctx]; ok {
			if len(ov.Allow) > 0 {
				// An explicit allow-list override narrows the context down
				// to exactly those tools, even if its default posture was
				// unrestricted.
				merged.Unrestricted = false
			}
			merged.Allow = normalize(append(merged.Allow, ov.Allow...))
			merged.Disallow = normalize(append(merged.Disallow, ov.Disallow...))
		}
		p.profiles[ctx] = merged
	}
	return p
}

// SetToolMode forces toolName to always resolve to mode regardless of
// session context, e.g. "shell" -> AlwaysAsk.
func (p *Policy) SetToolMode(toolName string, mode Mode) {
	p.toolMode[strings.ToLower(strings.TrimSpace(toolName))] = mode
}

// Decision is the outcome of resolving a tool call against the policy.
type Decision struct {
	Allowed bool
	Mode    Mode
}

// Resolve decides whether toolName may run under ctx, and with what
// approval posture.
func (p *Policy) Resolve(ctx SessionContext, toolName string) Decision {
	prof, ok := p.profiles[ctx]
	if !ok {
		return Decision{Allowed: false, Mode: AlwaysAsk}
	}

	if contains(prof.Disallow, toolName) {
		return Decision{Allowed: false, Mode: AlwaysAsk}
	}
	if !prof.Unrestricted && !contains(prof.Allow, toolName) {
		return Decision{Allowed: false, Mode: AlwaysAsk}
	}

	mode := AskWhenAutonomous
	if m, ok := p.toolMode[strings.ToLower(strings.TrimSpace(toolName))]; ok {
		mode = m
	}

	switch mode {
	case AlwaysAllow:
		return Decision{Allowed: true, Mode: AlwaysAllow}
	case AlwaysAsk:
		return Decision{Allowed: true, Mode: AlwaysAsk}
	default: // AskWhenAutonomous
		if prof.Autonomous {
			return Decision{Allowed: true, Mode: AlwaysAsk}
		}
		return Decision{Allowed: true, Mode: AlwaysAllow}
	}
}

// NeedsApproval is a convenience wrapper over Resolve: true when the call is
// allowed but must go through the approval gate before dispatch.
func (p *Policy) NeedsApproval(ctx SessionContext, toolName string) (allowed, needsApproval bool) {
	d := p.Resolve(ctx, toolName)
	return d.Allowed, d.Allowed && d.Mode == AlwaysAsk
}
