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

// Package orientation decides what the companion believes the operator is
// doing right now and how it should behave in response, combining presence,
// concerns, recent journal entries, pending events, the current persona and
// an optional desktop observation. A model call drives the decision; a
// deterministic heuristic backstops it when the model's output can't be
// parsed.
package orientation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/persona"
	"github.com/embercore/ember/pkg/presence"
	"github.com/embercore/ember/pkg/store"
)

// Mode is the companion's read on the operator's current activity level.
type Mode string

const (
	Away      Mode = "Away"
	Idle      Mode = "Idle"
	DeepWork  Mode = "DeepWork"
	LightWork Mode = "LightWork"
)

// Disposition is what the companion should do about it.
type Disposition string

const (
	Observe     Disposition = "Observe"
	Surface     Disposition = "Surface"
	DispIdle    Disposition = "Idle"
	DispJournal Disposition = "Journal"
)

// anomalyGPUTempC and anomalyMemPercent are the heuristic fallback's
// thresholds for surfacing something proactively.
const (
	anomalyGPUTempC   = 90.0
	anomalyMemPercent = 92.0

	awayIdleSeconds = 1800
	idleIdleSeconds = 300
	deepWorkCPU     = 20.0
)

// Orientation is one orientation decision.
type Orientation struct {
	Mode             Mode
	Disposition      Disposition
	Mood             string
	Summary          string
	ContextSignature string
}

// Input is everything orientation combines into one decision.
type Input struct {
	Presence           presence.Snapshot
	Concerns           []concerns.Concern
	RecentJournal      []journal.Entry
	PendingEvents      []string
	Persona            *persona.Snapshot
	DesktopObservation string
	GPUTempC           float64
}

// Decider invokes the model to produce a typed orientation from in.
type Decider interface {
	Decide(ctx context.Context, in Input) (Orientation, error)
}

// Engine produces orientation decisions, model-driven with a deterministic
// fallback.
type Engine struct {
	Decider Decider
}

// New builds an Engine. decider may be nil, in which case every decision
// uses the heuristic fallback.
func New(decider Decider) *Engine {
	return &Engine{Decider: decider}
}

// Orient produces one orientation decision for in. If the model's decision
// can't be parsed into a usable Mode/Disposition pair, it falls back to the
// deterministic heuristic instead of propagating the error.
func (e *Engine) Orient(ctx context.Context, in Input) Orientation {
	if e.Decider != nil {
		if o, err := e.Decider.Decide(ctx, in); err == nil && o.Mode != "" && o.Disposition != "" {
			o.ContextSignature = ContextSignature(in)
			return o
		}
	}
	o := heuristic(in)
	o.ContextSignature = ContextSignature(in)
	return o
}

func heuristic(in Input) Orientation {
	var mode Mode
	switch {
	case in.Presence.IdleSeconds > awayIdleSeconds:
		mode = Away
	case in.Presence.IdleSeconds > idleIdleSeconds:
		mode = Idle
	case in.Presence.CPUPercent > deepWorkCPU && hasFocusCategory(in.Presence.TopProcesses):
		mode = DeepWork
	default:
		mode = LightWork
	}

	var disposition Disposition
	switch {
	case len(in.PendingEvents) > 0:
		disposition = Observe
	case in.GPUTempC >= anomalyGPUTempC || in.Presence.MemPercent >= anomalyMemPercent:
		disposition = Surface
	default:
		disposition = DispIdle
	}

	return Orientation{Mode: mode, Disposition: disposition}
}

func hasFocusCategory(procs []presence.ProcessInfo) bool {
	for _, p := range procs {
		if p.Category == presence.CategoryDevelopment || p.Category == presence.CategoryCreative {
			return true
		}
	}
	return false
}

// ContextSignature computes a stable fingerprint of in's presence-derived
// inputs and its concerns' IDs: two identical contexts always produce
// identical signatures.
// Continuous values are bucketed (idle seconds to 30s, CPU/memory to 5%,
// time-of-day to hour plus a 5-minute bucket) and process names are
// truncated before hashing, so near-identical ticks collapse to the same
// signature instead of drifting on noise.
func ContextSignature(in Input) string {
	idleBucket := int(in.Presence.IdleSeconds) / 30
	cpuBucket := int(in.Presence.CPUPercent) / 5
	memBucket := int(in.Presence.MemPercent) / 5
	hour, minute := 0, 0
	if !in.Presence.TimeOfDay.IsZero() {
		hour = in.Presence.TimeOfDay.Hour()
		minute = in.Presence.TimeOfDay.Minute() / 5
	}

	procLabels := make([]string, 0, len(in.Presence.TopProcesses))
	for _, p := range in.Presence.TopProcesses {
		label := strings.ToLower(p.Name)
		if len(label) > 12 {
			label = label[:12]
		}
		procLabels = append(procLabels, label)
	}
	sort.Strings(procLabels)

	ids := make([]string, 0, len(in.Concerns))
	for _, c := range in.Concerns {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)

	canonical := fmt.Sprintf("idle=%d|hour=%d|min=%d|cpu=%d|mem=%d|procs=%s|concerns=%s",
		idleBucket, hour, minute, cpuBucket, memBucket,
		strings.Join(procLabels, ","), strings.Join(ids, ","))

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Save persists o keyed by its own ContextSignature, so a later tick with
// an identical context can look it up instead of invoking the model again.
func Save(ctx context.Context, s *store.Store, o Orientation) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode orientation: %w", err)
	}
	s.Lock()
	defer s.Unlock()
	_, err = s.DB().ExecContext(ctx, `
		INSERT INTO orientation_signatures (signature, orientation_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET orientation_json = excluded.orientation_json, updated_at = excluded.updated_at`,
		o.ContextSignature, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save orientation %q: %w", o.ContextSignature, err)
	}
	return nil
}

// Load looks up a previously saved orientation by its context signature.
func Load(ctx context.Context, s *store.Store, signature string) (Orientation, bool, error) {
	s.RLock()
	defer s.RUnlock()
	var payload string
	err := s.DB().QueryRowContext(ctx,
		`SELECT orientation_json FROM orientation_signatures WHERE signature = ?`, signature).Scan(&payload)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return Orientation{}, false, nil
		}
		return Orientation{}, false, fmt.Errorf("load orientation %q: %w", signature, err)
	}
	var o Orientation
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		return Orientation{}, false, fmt.Errorf("decode orientation %q: %w", signature, err)
	}
	return o, true, nil
}
