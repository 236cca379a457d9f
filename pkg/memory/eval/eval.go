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

// Package eval runs a fixed trace set against a set of candidate working
// memory designs and scores them on retrieval quality and latency. Every
// candidate gets a fresh, empty backend instance; traces never share state
// across candidates, so one candidate's results can never leak into
// another's.
package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/embercore/ember/pkg/memory"
)

// Step is one state mutation applied to a candidate before its checks run.
// It is a closed, tagged-variant set: Write and Delete are the only kinds.
type Step interface{ isStep() }

// Write sets key to content, upserting it.
type Write struct {
	Key     string
	Content string
}

func (Write) isStep() {}

// Delete removes key, if present.
type Delete struct {
	Key string
}

func (Delete) isStep() {}

// Check is one assertion made against a candidate after a trace's steps
// have all applied. Get and Query are the only kinds.
type Check interface{ isCheck() }

// Get asserts that key exists and, if ExpectContains is set, that its
// content contains the snippet case-insensitively.
type Get struct {
	Key            string
	ExpectContains *string
}

func (Get) isCheck() {}

// Query asserts that the harness's own ranking of the candidate's current
// entries surfaces ExpectedKeys within the top TopK results. TopK defaults
// to defaultTopK when zero or negative.
type Query struct {
	QueryText    string
	ExpectedKeys []string
	TopK         int
}

func (Query) isCheck() {}

// Trace is steps applied in order, then checks evaluated in order, against
// whatever state the steps left behind.
type Trace struct {
	Steps  []Step
	Checks []Check
}

// TraceSet is a named, ordered collection of traces run against every
// candidate in a single eval.Run call.
type TraceSet struct {
	Name   string
	Traces []Trace
}

// defaultTopK is used for Query checks that don't specify TopK.
const defaultTopK = 5

// Candidate builds a fresh, empty instance of one working-memory design for
// the harness to drive. Build must return a backend with no prior state;
// Close releases whatever resources Build allocated (a temporary store,
// typically) and may be nil if there's nothing to release.
type Candidate struct {
	Build func(ctx context.Context) (backend memory.Backend, closeFn func(), err error)
}

// CandidateMetrics is the full set of measurements the harness produces for
// one candidate design over one trace set.
type CandidateMetrics struct {
	Design memory.Design

	Traces      int
	StepsTotal  int
	ChecksTotal int

	GetChecks   int
	GetPassed   int
	QueryChecks int

	RecallAt1 float64
	RecallAtK float64

	MeanStepMs float64
	P95StepMs  float64

	MeanCheckMs float64
	P95CheckMs  float64

	FinalEntries       int
	FinalBytesEstimate int64
}

// GetPassRate is GetPassed/GetChecks. With no Get checks at all there is
// nothing to fail, so it reports 1.0.
func (m CandidateMetrics) GetPassRate() float64 {
	if m.GetChecks == 0 {
		return 1.0
	}
	return float64(m.GetPassed) / float64(m.GetChecks)
}

// Report holds one candidate's CandidateMetrics per entry, in the order the
// candidates were supplied to Run.
type Report struct {
	TraceSetName string
	Results      []CandidateMetrics
}

// ForDesign returns the metrics for the candidate whose Design.ID matches id.
func (r Report) ForDesign(id string) (CandidateMetrics, bool) {
	for _, m := range r.Results {
		if m.Design.ID == id {
			return m, true
		}
	}
	return CandidateMetrics{}, false
}

// Winner picks the best-scoring candidate by the harness's own ranking:
// lexicographically over (recall_at_k, recall_at_1, get_pass_rate,
// -mean_check_ms), highest first.
func (r Report) Winner() (CandidateMetrics, bool) {
	if len(r.Results) == 0 {
		return CandidateMetrics{}, false
	}
	best := r.Results[0]
	for _, m := range r.Results[1:] {
		if candidateBetter(m, best) {
			best = m
		}
	}
	return best, true
}

func candidateBetter(a, b CandidateMetrics) bool {
	if a.RecallAtK != b.RecallAtK {
		return a.RecallAtK > b.RecallAtK
	}
	if a.RecallAt1 != b.RecallAt1 {
		return a.RecallAt1 > b.RecallAt1
	}
	if ag, bg := a.GetPassRate(), b.GetPassRate(); ag != bg {
		return ag > bg
	}
	return a.MeanCheckMs < b.MeanCheckMs
}

// Run drives set against every candidate, in order, and returns one
// CandidateMetrics per candidate.
func Run(ctx context.Context, set TraceSet, candidates []Candidate) (Report, error) {
	report := Report{TraceSetName: set.Name}
	for i, c := range candidates {
		m, err := runCandidate(ctx, set, c)
		if err != nil {
			return Report{}, fmt.Errorf("run candidate %d: %w", i, err)
		}
		report.Results = append(report.Results, m)
	}
	return report, nil
}

func runCandidate(ctx context.Context, set TraceSet, c Candidate) (CandidateMetrics, error) {
	backend, closeFn, err := c.Build(ctx)
	if err != nil {
		return CandidateMetrics{}, fmt.Errorf("build candidate: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	m := CandidateMetrics{Design: backend.DesignVersion()}
	var stepMs, checkMs []float64
	var recall1Sum, recallKSum float64

	for _, trace := range set.Traces {
		m.Traces++

		for _, step := range trace.Steps {
			start := time.Now()
			var stepErr error
			switch s := step.(type) {
			case Write:
				stepErr = backend.SetEntry(ctx, s.Key, s.Content)
			case Delete:
				_, stepErr = backend.DeleteEntry(ctx, s.Key)
			default:
				stepErr = fmt.Errorf("unknown step type %T", step)
			}
			stepMs = append(stepMs, elapsedMs(start))
			m.StepsTotal++
			if stepErr != nil {
				return CandidateMetrics{}, stepErr
			}
		}

		for _, check := range trace.Checks {
			start := time.Now()
			switch ch := check.(type) {
			case Get:
				m.GetChecks++
				passed, err := scoreGet(ctx, backend, ch)
				if err != nil {
					return CandidateMetrics{}, err
				}
				if passed {
					m.GetPassed++
				}
			case Query:
				m.QueryChecks++
				r1, rk, err := scoreQuery(ctx, backend, ch)
				if err != nil {
					return CandidateMetrics{}, err
				}
				recall1Sum += r1
				recallKSum += rk
			default:
				return CandidateMetrics{}, fmt.Errorf("unknown check type %T", check)
			}
			checkMs = append(checkMs, elapsedMs(start))
			m.ChecksTotal++
		}
	}

	if m.QueryChecks > 0 {
		m.RecallAt1 = recall1Sum / float64(m.QueryChecks)
		m.RecallAtK = recallKSum / float64(m.QueryChecks)
	}
	m.MeanStepMs, m.P95StepMs = meanAndP95(stepMs)
	m.MeanCheckMs, m.P95CheckMs = meanAndP95(checkMs)

	final, err := backend.ListEntries(ctx)
	if err != nil {
		return CandidateMetrics{}, fmt.Errorf("list final entries: %w", err)
	}
	m.FinalEntries = len(final)
	var bytesEstimate int64
	for _, e := range final {
		bytesEstimate += int64(len(e.Key) + len(e.Content))
	}
	m.FinalBytesEstimate = bytesEstimate

	return m, nil
}

func scoreGet(ctx context.Context, backend memory.Backend, check Get) (bool, error) {
	entry, ok, err := backend.GetEntry(ctx, check.Key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if check.ExpectContains != nil {
		return strings.Contains(strings.ToLower(entry.Content), strings.ToLower(*check.ExpectContains)), nil
	}
	return true, nil
}

// scoreQuery ranks the candidate's own current entries with the harness's
// deterministic token-overlap scorer (not the backend's Query method, so
// every candidate is judged by the same yardstick) and reports whether the
// top-ranked entry and the top-topK entries land in ExpectedKeys.
func scoreQuery(ctx context.Context, backend memory.Backend, check Query) (recallAt1, recallAtK float64, err error) {
	entries, err := backend.ListEntries(ctx)
	if err != nil {
		return 0, 0, err
	}

	topK := check.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	ranked := rankEntries(entries, check.QueryText)

	expected := make(map[string]bool, len(check.ExpectedKeys))
	for _, k := range check.ExpectedKeys {
		expected[k] = true
	}
	if len(expected) == 0 {
		return 0, 0, nil
	}

	if len(ranked) > 0 && expected[ranked[0].Key] {
		recallAt1 = 1
	}

	limit := topK
	if limit > len(ranked) {
		limit = len(ranked)
	}
	var hits float64
	for i := 0; i < limit; i++ {
		if expected[ranked[i].Key] {
			hits++
		}
	}
	recallAtK = hits / float64(len(expected))
	return recallAt1, recallAtK, nil
}

// rankEntries implements the harness's scoring rubric: tokenize the query
// and every entry's key/content on non-alphanumeric boundaries, and weight a
// key-token match 3x a content-token match. Ties break by key ascending,
// then updated_at ascending, so the ranking is fully deterministic.
func rankEntries(entries []memory.Entry, queryText string) []memory.Entry {
	qTokens := tokenize(queryText)

	type scored struct {
		entry memory.Entry
		score int
	}
	results := make([]scored, 0, len(entries))
	for _, e := range entries {
		keyTokens := tokenize(e.Key)
		contentTokens := tokenize(e.Content)
		var s int
		for _, qt := range qTokens {
			for _, kt := range keyTokens {
				if kt == qt {
					s += 3
				}
			}
			for _, ct := range contentTokens {
				if ct == qt {
					s++
				}
			}
		}
		results = append(results, scored{entry: e, score: s})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].entry.Key != results[j].entry.Key {
			return results[i].entry.Key < results[j].entry.Key
		}
		return results[i].entry.UpdatedAt < results[j].entry.UpdatedAt
	})

	out := make([]memory.Entry, len(results))
	for i, r := range results {
		out[i] = r.entry
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// meanAndP95 returns the arithmetic mean and 95th percentile of samples,
// using nearest-rank on a sorted copy. Both are 0 for an empty input.
func meanAndP95(samples []float64) (mean, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean = sum / float64(len(sorted))

	idx := int(float64(len(sorted))*0.95 + 0.9999999)
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	p95 = sorted[idx-1]
	return mean, p95
}
