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

// Package promotion decides, from an eval.Report, whether a candidate
// working-memory design should replace the currently active one. Every
// decision is recorded with a rollback target: a design to fall back to
// should the promoted candidate misbehave once it is live.
package promotion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/eval"
)

// Outcome is the result of a promotion evaluation.
type Outcome string

const (
	// Promote means the candidate should become the active design.
	Promote Outcome = "promote"
	// Hold means the active design stays as-is.
	Hold Outcome = "hold"
)

// Policy is the set of named gates a candidate must clear, relative to the
// baseline design, to be promoted.
type Policy struct {
	// MinRecallAtKGain is the minimum improvement in recall@k the candidate
	// must show over the baseline.
	MinRecallAtKGain float64
	// MinRecallAt1Gain is the minimum improvement in recall@1 the candidate
	// must show over the baseline.
	MinRecallAt1Gain float64
	// MinCandidateGetPassRate is the minimum absolute Get-check pass rate
	// the candidate must reach on its own, regardless of the baseline.
	MinCandidateGetPassRate float64
	// MaxMeanCheckLatencyMultiplier bounds how much slower the candidate's
	// mean check latency may be relative to the baseline's.
	MaxMeanCheckLatencyMultiplier float64
	// RequireNonDecreasingGetPassRate, when true, fails the candidate if its
	// Get-check pass rate is lower than the baseline's, even if every other
	// gate passes.
	RequireNonDecreasingGetPassRate bool
}

// DefaultPolicy is a conservative starting point: a real (not noise-level)
// recall improvement, a high floor on retrieval correctness, a bound on how
// much latency a candidate may trade for that recall, and no regression on
// Get-check reliability.
var DefaultPolicy = Policy{
	MinRecallAtKGain:                0.05,
	MinRecallAt1Gain:                0.03,
	MinCandidateGetPassRate:         0.8,
	MaxMeanCheckLatencyMultiplier:   1.5,
	RequireNonDecreasingGetPassRate: true,
}

// Decision is the full record of one promotion evaluation.
type Decision struct {
	// ID identifies the persisted decision row once a caller has stored it;
	// empty until then.
	ID string
	// EvalRunID identifies the eval run the decision was computed from.
	EvalRunID string

	CandidateDesign memory.Design
	Outcome         Outcome
	Rationale       string
	Policy          Policy

	// MetricsSnapshot freezes the baseline and candidate metrics the
	// decision was computed from, independent of whatever the live eval
	// report later becomes.
	MetricsSnapshot Snapshot

	// RollbackTarget is the design to fall back to if the promoted
	// candidate misbehaves: always the design that was active when the
	// decision was made.
	RollbackTarget memory.Design

	CreatedAt time.Time
}

// Snapshot is the pair of candidate metrics (and the deltas between them) a
// Decision was computed from.
type Snapshot struct {
	Baseline  eval.CandidateMetrics
	Candidate eval.CandidateMetrics

	RecallAtKDelta       float64
	RecallAt1Delta       float64
	BaselineGetPassRate  float64
	CandidateGetPassRate float64
	GetPassRateDelta     float64
	MeanCheckLatencyRatio float64
}

// Evaluate runs the promotion gate: given an eval report, the id of the
// baseline design and of the candidate design, the design version currently
// active (the rollback target), and a policy, it locates both backends in
// the report, computes the gate metrics, and returns a Decision.
//
// evalRunID is carried through verbatim into the returned Decision so a
// persisted decision can always be traced back to the eval run it came
// from; it is not interpreted here.
func Evaluate(policy Policy, report eval.Report, evalRunID, baselineDesignID, candidateDesignID string, currentDesign memory.Design) (Decision, error) {
	baseline, ok := report.ForDesign(baselineDesignID)
	if !ok {
		return Decision{}, fmt.Errorf("baseline design %q not present in eval report", baselineDesignID)
	}
	candidate, ok := report.ForDesign(candidateDesignID)
	if !ok {
		return Decision{}, fmt.Errorf("candidate design %q not present in eval report", candidateDesignID)
	}

	snapshot := Snapshot{
		Baseline:             baseline,
		Candidate:            candidate,
		RecallAtKDelta:       candidate.RecallAtK - baseline.RecallAtK,
		RecallAt1Delta:       candidate.RecallAt1 - baseline.RecallAt1,
		BaselineGetPassRate:  baseline.GetPassRate(),
		CandidateGetPassRate: candidate.GetPassRate(),
	}
	snapshot.GetPassRateDelta = snapshot.CandidateGetPassRate - snapshot.BaselineGetPassRate
	snapshot.MeanCheckLatencyRatio = meanCheckLatencyRatio(baseline.MeanCheckMs, candidate.MeanCheckMs)

	decision := Decision{
		EvalRunID:       evalRunID,
		CandidateDesign: candidate.Design,
		Policy:          policy,
		MetricsSnapshot: snapshot,
		RollbackTarget:  currentDesign,
		CreatedAt:       time.Now().UTC(),
	}

	var failures []string

	if snapshot.RecallAtKDelta < policy.MinRecallAtKGain {
		failures = append(failures, fmt.Sprintf(
			"recall@k gain %.3f below minimum %.3f", snapshot.RecallAtKDelta, policy.MinRecallAtKGain))
	}
	if snapshot.RecallAt1Delta < policy.MinRecallAt1Gain {
		failures = append(failures, fmt.Sprintf(
			"recall@1 gain %.3f below minimum %.3f", snapshot.RecallAt1Delta, policy.MinRecallAt1Gain))
	}
	if snapshot.CandidateGetPassRate < policy.MinCandidateGetPassRate {
		failures = append(failures, fmt.Sprintf(
			"candidate get pass rate %.3f below minimum %.3f", snapshot.CandidateGetPassRate, policy.MinCandidateGetPassRate))
	}
	if snapshot.MeanCheckLatencyRatio > policy.MaxMeanCheckLatencyMultiplier {
		failures = append(failures, fmt.Sprintf(
			"mean check latency ratio %.3f exceeds maximum %.3f", snapshot.MeanCheckLatencyRatio, policy.MaxMeanCheckLatencyMultiplier))
	}
	if policy.RequireNonDecreasingGetPassRate && snapshot.GetPassRateDelta < 0 {
		failures = append(failures, fmt.Sprintf(
			"get pass rate regressed by %.3f", -snapshot.GetPassRateDelta))
	}

	if len(failures) > 0 {
		decision.Outcome = Hold
		decision.Rationale = fmt.Sprintf(
			"candidate %q held: %s", candidate.Design.ID, strings.Join(failures, "; "))
		return decision, nil
	}

	decision.Outcome = Promote
	decision.Rationale = fmt.Sprintf(
		"candidate %q clears all gates over baseline %q: recall@k +%.3f, recall@1 +%.3f, get pass rate %.3f, latency ratio %.3f",
		candidate.Design.ID, baseline.Design.ID,
		snapshot.RecallAtKDelta, snapshot.RecallAt1Delta, snapshot.CandidateGetPassRate, snapshot.MeanCheckLatencyRatio)
	return decision, nil
}

// meanCheckLatencyRatio is candidate/baseline, with the conventional
// special case that a zero baseline against a nonzero candidate is treated
// as infinitely worse rather than dividing by zero.
func meanCheckLatencyRatio(baselineMs, candidateMs float64) float64 {
	if baselineMs == 0 {
		if candidateMs == 0 {
			return 1.0
		}
		return math.Inf(1)
	}
	return candidateMs / baselineMs
}
