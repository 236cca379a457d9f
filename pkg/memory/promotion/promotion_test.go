package promotion_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/eval"
	"github.com/embercore/ember/pkg/memory/promotion"
)

func baselineCandidateReport() eval.Report {
	return eval.Report{
		Results: []eval.CandidateMetrics{
			{
				Design:      memory.Design{ID: "kv_v1", SchemaVersion: 1},
				RecallAtK:   0.60,
				RecallAt1:   0.50,
				GetChecks:   10,
				GetPassed:   9,
				MeanCheckMs: 2.0,
			},
			{
				Design:      memory.Design{ID: "fts_v2", SchemaVersion: 2},
				RecallAtK:   0.72,
				RecallAt1:   0.57,
				GetChecks:   10,
				GetPassed:   10,
				MeanCheckMs: 2.2,
			},
		},
	}
}

func TestEvaluatePromotesBetterCandidate(t *testing.T) {
	report := baselineCandidateReport()
	currentDesign := memory.Design{ID: "kv_v1", SchemaVersion: 1}

	decision, err := promotion.Evaluate(promotion.DefaultPolicy, report, "run-1", "kv_v1", "fts_v2", currentDesign)
	require.NoError(t, err)
	assert.Equal(t, promotion.Promote, decision.Outcome)
	assert.Equal(t, "fts_v2", decision.CandidateDesign.ID)
	assert.Equal(t, "kv_v1", decision.RollbackTarget.ID)
}

func TestEvaluateHoldsWhenRecallGainTooLow(t *testing.T) {
	report := baselineCandidateReport()
	currentDesign := memory.Design{ID: "kv_v1", SchemaVersion: 1}

	policy := promotion.DefaultPolicy
	policy.MinRecallAtKGain = 0.20

	decision, err := promotion.Evaluate(policy, report, "run-1", "kv_v1", "fts_v2", currentDesign)
	require.NoError(t, err)
	assert.Equal(t, promotion.Hold, decision.Outcome)
	assert.Contains(t, decision.Rationale, "recall@k gain")
}

func TestEvaluateErrorsWhenBaselineMissing(t *testing.T) {
	report := eval.Report{Results: []eval.CandidateMetrics{{Design: memory.Design{ID: "fts_v2"}}}}
	_, err := promotion.Evaluate(promotion.DefaultPolicy, report, "run-1", "kv_v1", "fts_v2", memory.Design{ID: "kv_v1"})
	assert.Error(t, err)
}

func TestEvaluateErrorsWhenCandidateMissing(t *testing.T) {
	report := eval.Report{Results: []eval.CandidateMetrics{{Design: memory.Design{ID: "kv_v1"}}}}
	_, err := promotion.Evaluate(promotion.DefaultPolicy, report, "run-1", "kv_v1", "fts_v2", memory.Design{ID: "kv_v1"})
	assert.Error(t, err)
}

func TestEvaluateHoldsOnGetPassRateRegression(t *testing.T) {
	report := eval.Report{
		Results: []eval.CandidateMetrics{
			{Design: memory.Design{ID: "kv_v1"}, RecallAtK: 0.5, RecallAt1: 0.4, GetChecks: 10, GetPassed: 10, MeanCheckMs: 2.0},
			{Design: memory.Design{ID: "fts_v2"}, RecallAtK: 0.9, RecallAt1: 0.9, GetChecks: 10, GetPassed: 8, MeanCheckMs: 2.0},
		},
	}
	decision, err := promotion.Evaluate(promotion.DefaultPolicy, report, "run-1", "kv_v1", "fts_v2", memory.Design{ID: "kv_v1"})
	require.NoError(t, err)
	assert.Equal(t, promotion.Hold, decision.Outcome)
	assert.True(t, strings.Contains(decision.Rationale, "get pass rate regressed"))
}

func TestEvaluateHoldsOnLatencyMultiplierExceeded(t *testing.T) {
	report := eval.Report{
		Results: []eval.CandidateMetrics{
			{Design: memory.Design{ID: "kv_v1"}, RecallAtK: 0.5, RecallAt1: 0.4, GetChecks: 10, GetPassed: 10, MeanCheckMs: 1.0},
			{Design: memory.Design{ID: "fts_v2"}, RecallAtK: 0.9, RecallAt1: 0.9, GetChecks: 10, GetPassed: 10, MeanCheckMs: 10.0},
		},
	}
	decision, err := promotion.Evaluate(promotion.DefaultPolicy, report, "run-1", "kv_v1", "fts_v2", memory.Design{ID: "kv_v1"})
	require.NoError(t, err)
	assert.Equal(t, promotion.Hold, decision.Outcome)
	assert.Contains(t, decision.Rationale, "latency ratio")
}
