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

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements brings every table the companion needs up to date. Each
// statement is idempotent so repeated startups are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agent_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS important_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		source TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reflection_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		summary TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS character_cards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		card_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS persona_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signature_json TEXT NOT NULL,
		captured_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_persona_history_captured_at ON persona_history(captured_at)`,

	`CREATE TABLE IF NOT EXISTS working_memory (
		key TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES chat_conversations(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id)`,

	// chat_turns/chat_turn_tool_calls record one full agent-loop invocation
	// (request through final assistant reply) and every tool dispatch made
	// along the way, for the persona trajectory tracer and audit tooling.
	`CREATE TABLE IF NOT EXISTS chat_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES chat_conversations(id),
		session_context TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		iterations INTEGER NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_turns_conversation ON chat_turns(conversation_id)`,

	`CREATE TABLE IF NOT EXISTS chat_turn_tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id INTEGER NOT NULL REFERENCES chat_turns(id),
		tool_name TEXT NOT NULL,
		tool_call_id TEXT NOT NULL,
		arguments_json TEXT NOT NULL,
		result_json TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_turn_tool_calls_turn ON chat_turn_tool_calls(turn_id)`,

	// Memory subsystem: design archive, eval runs and promotion decisions
	// track the lifecycle of candidate memory backend designs as they are
	// evaluated and (maybe) promoted to replace the active design.
	`CREATE TABLE IF NOT EXISTS memory_design_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		design_id TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		description TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(design_id, schema_version)
	)`,

	`CREATE TABLE IF NOT EXISTS memory_eval_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_set_name TEXT NOT NULL,
		report_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS memory_promotion_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		eval_run_id INTEGER NOT NULL REFERENCES memory_eval_runs(id),
		candidate_design_id TEXT NOT NULL,
		candidate_schema_version INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		rationale TEXT NOT NULL,
		policy_json TEXT NOT NULL,
		metrics_snapshot_json TEXT NOT NULL,
		rollback_design_id TEXT NOT NULL,
		rollback_schema_version INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,

	// working_memory_fts_docs/fts_index back the full-text memory backend;
	// working_memory_episodes backs the episodic memory backend. Both are
	// separate design lineages from the plain key/value working_memory
	// table and are versioned independently via memory_design_archive.
	`CREATE TABLE IF NOT EXISTS working_memory_fts_docs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS working_memory_fts_index USING fts5(
		key UNINDEXED, content, content='working_memory_fts_docs', content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS working_memory_fts_docs_ai AFTER INSERT ON working_memory_fts_docs BEGIN
		INSERT INTO working_memory_fts_index(rowid, key, content) VALUES (new.id, new.key, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS working_memory_fts_docs_ad AFTER DELETE ON working_memory_fts_docs BEGIN
		INSERT INTO working_memory_fts_index(working_memory_fts_index, rowid, key, content) VALUES('delete', old.id, old.key, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS working_memory_fts_docs_au AFTER UPDATE ON working_memory_fts_docs BEGIN
		INSERT INTO working_memory_fts_index(working_memory_fts_index, rowid, key, content) VALUES('delete', old.id, old.key, old.content);
		INSERT INTO working_memory_fts_index(rowid, key, content) VALUES (new.id, new.key, new.content);
	END`,

	`CREATE TABLE IF NOT EXISTS working_memory_episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		content TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		salience REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_working_memory_episodes_key ON working_memory_episodes(key)`,

	// concerns tracks the companion's ongoing awareness of the operator's
	// projects, relationships and interests; key_events/related_memory_keys/
	// notes/metadata are JSON arrays or objects rather than join tables since
	// nothing queries into them relationally, only round-trips them whole.
	`CREATE TABLE IF NOT EXISTS concerns (
		id TEXT PRIMARY KEY,
		concern_type TEXT NOT NULL,
		summary TEXT NOT NULL,
		salience TEXT NOT NULL,
		last_touched TEXT NOT NULL,
		created_at TEXT NOT NULL,
		key_events_json TEXT NOT NULL DEFAULT '[]',
		related_memory_keys_json TEXT NOT NULL DEFAULT '[]',
		notes_json TEXT NOT NULL DEFAULT '[]',
		metadata_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_concerns_salience ON concerns(salience)`,

	`CREATE TABLE IF NOT EXISTS journal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mood TEXT NOT NULL,
		narrative TEXT NOT NULL,
		related_concerns_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_entries_created_at ON journal_entries(created_at)`,

	// orientation_signatures keys the most recent orientation decision by its
	// deterministic context_signature so repeated identical contexts can
	// short-circuit another model call.
	`CREATE TABLE IF NOT EXISTS orientation_signatures (
		signature TEXT PRIMARY KEY,
		orientation_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// initSchema applies every statement in schemaStatements in order.
func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w\n%s", err, stmt)
		}
	}
	return nil
}

// ensureDefaultConversation guarantees at least one chat_conversations row
// exists, returning its id. Mirrors the upstream "ensure default chat
// conversation" bootstrap step that historically ran after schema init.
func ensureDefaultConversation(ctx context.Context, db *sql.DB, now string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM chat_conversations ORDER BY id ASC LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("query default conversation: %w", err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO chat_conversations (title, created_at, updated_at) VALUES (?, ?, ?)`,
		"default", now, now)
	if err != nil {
		return 0, fmt.Errorf("insert default conversation: %w", err)
	}
	return res.LastInsertId()
}
