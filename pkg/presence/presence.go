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

// Package presence samples what the host machine is doing right now — CPU
// and memory load, the busiest processes, and how long it's been idle — as
// one of orientation's inputs. Every signal is best-effort: a host missing a
// particular gopsutil capability degrades to a zero value rather than
// failing the whole sample.
package presence

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is one running process as seen by the sampler, categorized
// into a coarse activity bucket for orientation's heuristics.
type ProcessInfo struct {
	Name       string
	PID        int32
	CPUPercent float64
	Category   string
}

// Category labels, matched case-insensitively against a process name.
const (
	CategoryDevelopment   = "Development"
	CategoryCreative      = "Creative"
	CategoryResearch      = "Research"
	CategoryCommunication = "Communication"
	CategoryMedia         = "Media"
	CategorySystem        = "System"
)

// categoryByName is a static process-name → category lookup. Names are
// lowercased and matched as a substring of the process name, so "Google
// Chrome Helper" still matches "chrome". When several names match, the
// longest one wins.
var categoryByName = map[string]string{
	"code":       CategoryDevelopment,
	"vscode":     CategoryDevelopment,
	"goland":     CategoryDevelopment,
	"idea":       CategoryDevelopment,
	"vim":        CategoryDevelopment,
	"nvim":       CategoryDevelopment,
	"iterm":      CategoryDevelopment,
	"terminal":   CategoryDevelopment,
	"docker":     CategoryDevelopment,
	"git":        CategoryDevelopment,
	"go":         CategoryDevelopment,
	"node":       CategoryDevelopment,
	"python":     CategoryDevelopment,
	"cargo":      CategoryDevelopment,
	"photoshop":  CategoryCreative,
	"illustrator": CategoryCreative,
	"figma":      CategoryCreative,
	"blender":    CategoryCreative,
	"premiere":   CategoryCreative,
	"affinity":   CategoryCreative,
	"chrome":     CategoryResearch,
	"firefox":    CategoryResearch,
	"safari":     CategoryResearch,
	"zotero":     CategoryResearch,
	"notion":     CategoryResearch,
	"obsidian":   CategoryResearch,
	"acrobat":    CategoryResearch,
	"slack":      CategoryCommunication,
	"discord":    CategoryCommunication,
	"zoom":       CategoryCommunication,
	"teams":      CategoryCommunication,
	"outlook":    CategoryCommunication,
	"mail":       CategoryCommunication,
	"telegram":   CategoryCommunication,
	"spotify":    CategoryMedia,
	"vlc":        CategoryMedia,
	"itunes":     CategoryMedia,
	"music":      CategoryMedia,
}

// categorize returns the static category for a process name, defaulting to
// System when nothing matches. The longest matching name wins.
func categorize(name string) string {
	lower := strings.ToLower(name)
	best, category := "", CategorySystem
	for key, c := range categoryByName {
		if strings.Contains(lower, key) && (len(key) > len(best) || (len(key) == len(best) && key < best)) {
			best, category = key, c
		}
	}
	return category
}

// Snapshot is one Sample's worth of host presence signals.
type Snapshot struct {
	IdleSeconds  float64
	TopProcesses []ProcessInfo
	CPUPercent   float64
	MemPercent   float64
	TimeOfDay    time.Time
}

// Sampler samples host presence via gopsutil.
type Sampler struct {
	// TopN bounds how many processes Sample returns, ranked by CPU percent
	// descending. Zero means the default of 5.
	TopN int
	// IdleFunc resolves idle seconds. It exists as a hook because gopsutil
	// has no cross-platform idle-time API; left nil, idle time is always
	// reported as 0 rather than guessed at or errored.
	IdleFunc func() (float64, error)
}

// New builds a Sampler with default settings.
func New() *Sampler {
	return &Sampler{TopN: 5}
}

// Sample gathers one Snapshot. It only returns an error when gopsutil's
// process enumeration itself fails outright; missing or unsupported
// individual signals (idle time, CPU, memory) degrade to zero instead.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TimeOfDay: time.Now()}

	snap.IdleSeconds = s.idleSeconds()

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snap.MemPercent = vm.UsedPercent
	}

	procs, err := s.topProcesses(ctx)
	if err != nil {
		return snap, err
	}
	snap.TopProcesses = procs

	return snap, nil
}

func (s *Sampler) idleSeconds() float64 {
	if s.IdleFunc == nil {
		return 0
	}
	secs, err := s.IdleFunc()
	if err != nil {
		return 0
	}
	return secs
}

func (s *Sampler) topProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpuPct = 0
		}
		infos = append(infos, ProcessInfo{
			Name:       name,
			PID:        p.Pid,
			CPUPercent: cpuPct,
			Category:   categorize(name),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].CPUPercent > infos[j].CPUPercent })

	n := s.TopN
	if n <= 0 {
		n = 5
	}
	if len(infos) > n {
		infos = infos[:n]
	}
	return infos, nil
}
