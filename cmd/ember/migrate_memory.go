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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embercore/ember/internal/config"
	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/eval"
	"github.com/embercore/ember/pkg/memory/promotion"
	"github.com/embercore/ember/pkg/store"
)

var migrateMemoryCmd = &cobra.Command{
	Use:   "migrate-memory",
	Short: "Evaluate every working-memory design against the active one and promote the winner",
	Long: `migrate-memory replays the active backend's own entries as retrieval
traces, scores every candidate design against them on a fresh in-memory
instance, and promotes the winner through the registered migration path
only when it clears the default promotion gate. A design that is merely
different, not better, is held.`,
	RunE: runMigrateMemory,
}

func init() {
	rootCmd.AddCommand(migrateMemoryCmd)
}

func runMigrateMemory(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := config.NewProvider(cfgFile, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := provider.Current()

	ctx := context.Background()
	st, err := store.New(ctx, store.Config{
		Path:            cfg.Store.Path,
		EncryptDatabase: cfg.Store.EncryptDatabase,
		EncryptionKey:   cfg.Store.EncryptionKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	backends, err := allMemoryBackends(st)
	if err != nil {
		return err
	}
	active, err := selectActiveMemoryBackend(ctx, st, logger)
	if err != nil {
		return err
	}
	activeDesign := active.DesignVersion()
	activeID := activeDesign.ID

	traceSet, err := deriveTraceSet(ctx, active)
	if err != nil {
		return fmt.Errorf("derive eval traces from active design %q: %w", activeID, err)
	}
	if len(traceSet.Traces) == 0 {
		fmt.Println("no entries in working memory yet; nothing to evaluate")
		return nil
	}

	report, err := eval.Run(ctx, traceSet, evalCandidates())
	if err != nil {
		return fmt.Errorf("run eval: %w", err)
	}

	for _, m := range report.Results {
		fmt.Printf("design=%-10s recall@1=%.3f recall@k=%.3f get_pass_rate=%.3f mean_check_ms=%.3f\n",
			m.Design.ID, m.RecallAt1, m.RecallAtK, m.GetPassRate(), m.MeanCheckMs)
	}

	winner, ok := report.Winner()
	if !ok {
		fmt.Println("no candidates evaluated; nothing to promote")
		return nil
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal eval report: %w", err)
	}
	evalRunRowID, err := st.SaveMemoryEvalRun(ctx, traceSet.Name, string(reportJSON))
	if err != nil {
		return fmt.Errorf("save eval run: %w", err)
	}
	evalRunID := strconv.FormatInt(evalRunRowID, 10)

	decision, err := promotion.Evaluate(promotion.DefaultPolicy, report, evalRunID, activeID, winner.Design.ID, activeDesign)
	if err != nil {
		return fmt.Errorf("evaluate promotion: %w", err)
	}
	fmt.Printf("decision: %s (%s)\n", decision.Outcome, decision.Rationale)

	policyJSON, err := json.Marshal(decision.Policy)
	if err != nil {
		return fmt.Errorf("marshal promotion policy: %w", err)
	}
	snapshotJSON, err := json.Marshal(decision.MetricsSnapshot)
	if err != nil {
		return fmt.Errorf("marshal promotion metrics snapshot: %w", err)
	}
	decisionRowID, err := st.SaveMemoryPromotionDecision(ctx, store.SaveMemoryPromotionDecisionParams{
		EvalRunID:              evalRunRowID,
		CandidateDesignID:      decision.CandidateDesign.ID,
		CandidateSchemaVersion: decision.CandidateDesign.SchemaVersion,
		Outcome:                string(decision.Outcome),
		Rationale:              decision.Rationale,
		PolicyJSON:             string(policyJSON),
		MetricsSnapshotJSON:    string(snapshotJSON),
		RollbackDesignID:       decision.RollbackTarget.ID,
		RollbackSchemaVersion:  decision.RollbackTarget.SchemaVersion,
	})
	if err != nil {
		return fmt.Errorf("save promotion decision: %w", err)
	}
	decision.ID = strconv.FormatInt(decisionRowID, 10)

	if decision.Outcome != promotion.Promote {
		return nil
	}

	reg := buildMigrationRegistry(backends)
	target, ok := backends[decision.CandidateDesign.ID]
	if !ok {
		return fmt.Errorf("promoted design %q has no live backend", decision.CandidateDesign.ID)
	}
	if err := reg.ApplyDirect(ctx, active, target); err != nil {
		return fmt.Errorf("migrate entries from %q to %q: %w", activeID, decision.CandidateDesign.ID, err)
	}
	if err := st.SetAgentState(ctx, memoryDesignStateKey, decision.CandidateDesign.ID); err != nil {
		return fmt.Errorf("record new active design: %w", err)
	}
	if err := st.SetAgentState(ctx, memorySchemaStateKey, strconv.Itoa(decision.CandidateDesign.SchemaVersion)); err != nil {
		return fmt.Errorf("record new schema version: %w", err)
	}

	logger.Info("working memory design promoted",
		zap.String("from", activeID),
		zap.String("to", decision.CandidateDesign.ID))
	fmt.Printf("promoted %q -> %q\n", activeID, decision.CandidateDesign.ID)
	return nil
}

// deriveTraceSet turns the active backend's own entries into a self-
// consistency trace set: each entry is rewritten (Write), then checked for
// presence (Get) and for surfacing under a query built from its own key
// (Query). It's not a proxy for real usage patterns, but it needs no
// separately curated golden set to run migrate-memory on a fresh deployment.
func deriveTraceSet(ctx context.Context, active memory.Backend) (eval.TraceSet, error) {
	entries, err := active.ListEntries(ctx)
	if err != nil {
		return eval.TraceSet{}, err
	}

	traces := make([]eval.Trace, 0, len(entries))
	for _, e := range entries {
		query := strings.Join(strings.FieldsFunc(e.Key, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
		}), " ")
		if query == "" {
			query = e.Key
		}
		traces = append(traces, eval.Trace{
			Steps: []eval.Step{eval.Write{Key: e.Key, Content: e.Content}},
			Checks: []eval.Check{
				eval.Get{Key: e.Key},
				eval.Query{QueryText: query, ExpectedKeys: []string{e.Key}},
			},
		})
	}
	return eval.TraceSet{Name: "active-entries", Traces: traces}, nil
}
