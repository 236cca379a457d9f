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
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound distinguishes "no matching row" from an I/O failure across the
// store's lookup-by-identity methods (as opposed to the bool-returning
// get/exists methods, which use that bool for the same purpose).
var ErrNotFound = errors.New("store: not found")

// Store is the single point of access to the companion's persistent SQLite
// database. All writes funnel through a single writer lock: SQLite tolerates
// many readers but serializes writers, and the companion's write volume
// (a handful of rows per agent tick) never justifies a connection pool of
// writers fighting over file locks.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger

	defaultConversationID int64
}

// New opens cfg's database, applies the schema, tunes the connection pool
// and returns a ready-to-use Store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	convID, err := ensureDefaultConversation(ctx, db, nowString())
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, defaultConversationID: convID}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultConversationID returns the id of the bootstrap conversation every
// fresh database starts with.
func (s *Store) DefaultConversationID() int64 {
	return s.defaultConversationID
}

// nowString formats the current time with a fixed-width fraction, so the
// text ordering of stored timestamps matches their time ordering.
func nowString() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// --- agent_state -----------------------------------------------------------

// SetAgentState upserts a single key/value pair in the flat agent_state
// table, used for small pieces of durable scalar state (last reflection
// timestamp, current mood label, post counters).
func (s *Store) SetAgentState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set agent state %q: %w", key, err)
	}
	return nil
}

// GetAgentState returns the value for key, and false if it has never been
// set.
func (s *Store) GetAgentState(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM agent_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get agent state %q: %w", key, err)
	}
	return value, true, nil
}

// --- important_posts / reflection_history ----------------------------------

// AppendImportantPost records a post the agent judged worth remembering.
func (s *Store) AppendImportantPost(ctx context.Context, content, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO important_posts (content, source, created_at) VALUES (?, ?, ?)`,
		content, source, nowString())
	if err != nil {
		return fmt.Errorf("append important post: %w", err)
	}
	return nil
}

// AppendReflectionHistory records a single reflection cycle's summary.
func (s *Store) AppendReflectionHistory(ctx context.Context, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reflection_history (summary, created_at) VALUES (?, ?)`,
		summary, nowString())
	if err != nil {
		return fmt.Errorf("append reflection history: %w", err)
	}
	return nil
}

// --- character_cards / persona_history --------------------------------------

// UpsertCharacterCard stores a named character card's JSON body.
func (s *Store) UpsertCharacterCard(ctx context.Context, name, cardJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO character_cards (name, card_json, created_at) VALUES (?, ?, ?)`,
		name, cardJSON, nowString())
	if err != nil {
		return fmt.Errorf("upsert character card %q: %w", name, err)
	}
	return nil
}

// LatestCharacterCard returns the most recently inserted card JSON for name.
func (s *Store) LatestCharacterCard(ctx context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cardJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT card_json FROM character_cards WHERE name = ? ORDER BY id DESC LIMIT 1`, name).Scan(&cardJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load character card %q: %w", name, err)
	}
	return cardJSON, true, nil
}

// AppendPersonaHistory records one captured persona signature.
func (s *Store) AppendPersonaHistory(ctx context.Context, signatureJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persona_history (signature_json, captured_at) VALUES (?, ?)`,
		signatureJSON, nowString())
	if err != nil {
		return fmt.Errorf("append persona history: %w", err)
	}
	return nil
}

// UpdateLatestPersonaHistory overwrites the most recently captured
// signature's JSON in place. Snapshot capture is append-only, but the
// trajectory inferred from the full history afterward updates only the
// latest snapshot, not a new one.
func (s *Store) UpdateLatestPersonaHistory(ctx context.Context, signatureJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE persona_history SET signature_json = ?
		WHERE id = (SELECT id FROM persona_history ORDER BY captured_at DESC LIMIT 1)`,
		signatureJSON)
	if err != nil {
		return fmt.Errorf("update latest persona history: %w", err)
	}
	return nil
}

// PersonaHistory returns up to limit most recent persona signatures, oldest
// first.
func (s *Store) PersonaHistory(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT signature_json FROM persona_history ORDER BY captured_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query persona history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("scan persona history: %w", err)
		}
		out = append(out, sig)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// --- working_memory ----------------------------------------------------------

// SetWorkingMemory upserts the content under key in the plain key/value
// working memory table (used by the "kv" memory backend).
func (s *Store) SetWorkingMemory(ctx context.Context, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO working_memory (key, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content, nowString())
	if err != nil {
		return fmt.Errorf("set working memory %q: %w", key, err)
	}
	return nil
}

// WorkingMemoryRow is one row of the plain key/value working_memory table.
type WorkingMemoryRow struct {
	Key       string
	Content   string
	UpdatedAt string
}

// GetWorkingMemory returns the content and last-updated timestamp stored
// under key.
func (s *Store) GetWorkingMemory(ctx context.Context, key string) (WorkingMemoryRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := WorkingMemoryRow{Key: key}
	err := s.db.QueryRowContext(ctx, `SELECT content, updated_at FROM working_memory WHERE key = ?`, key).
		Scan(&row.Content, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return WorkingMemoryRow{}, false, nil
	}
	if err != nil {
		return WorkingMemoryRow{}, false, fmt.Errorf("get working memory %q: %w", key, err)
	}
	return row, true, nil
}

// DeleteWorkingMemory removes key, reporting whether a row existed.
func (s *Store) DeleteWorkingMemory(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM working_memory WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete working memory %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListWorkingMemory returns every row in the kv backend, most recently
// updated first.
func (s *Store) ListWorkingMemory(ctx context.Context) ([]WorkingMemoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT key, content, updated_at FROM working_memory ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list working memory: %w", err)
	}
	defer rows.Close()

	var out []WorkingMemoryRow
	for rows.Next() {
		var row WorkingMemoryRow
		if err := rows.Scan(&row.Key, &row.Content, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan working memory row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// --- chat conversations/messages --------------------------------------------

// CreateChatConversation creates a new conversation with title and returns
// its id.
func (s *Store) CreateChatConversation(ctx context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_conversations (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, now, now)
	if err != nil {
		return 0, fmt.Errorf("create chat conversation: %w", err)
	}
	return res.LastInsertId()
}

// FindConversationByTitle returns the id of the conversation named title, or
// ErrNotFound if none exists — used by external bridges (e.g. Telegram) to
// locate their dedicated conversation without creating duplicates on restart.
func (s *Store) FindConversationByTitle(ctx context.Context, title string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chat_conversations WHERE title = ? ORDER BY id ASC LIMIT 1`, title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find conversation %q: %w", title, err)
	}
	return id, nil
}

// Conversation is one row of chat_conversations.
type Conversation struct {
	ID        int64
	Title     string
	CreatedAt string
	UpdatedAt string
}

// ListConversations returns up to limit conversations, most recently updated
// first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns the conversation identified by id.
func (s *Store) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return c, nil
}

// ConversationSummary is a lightweight digest of a conversation's activity,
// cheap enough to compute for every row of a conversation listing.
type ConversationSummary struct {
	Conversation
	MessageCount int
	LastMessage  string
}

// ConversationSummary computes the summary for a single conversation.
func (s *Store) ConversationSummary(ctx context.Context, id int64) (ConversationSummary, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return ConversationSummary{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE conversation_id = ?`, id).Scan(&count); err != nil {
		return ConversationSummary{}, fmt.Errorf("count messages for conversation %d: %w", id, err)
	}
	var last string
	err = s.db.QueryRowContext(ctx,
		`SELECT content FROM chat_messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, id).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ConversationSummary{}, fmt.Errorf("last message for conversation %d: %w", id, err)
	}
	return ConversationSummary{Conversation: conv, MessageCount: count, LastMessage: last}, nil
}

// ChatMessage is one row of chat_messages.
type ChatMessage struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      string
	Processed      bool
}

// AppendChatMessage inserts a new message into conversationID.
func (s *Store) AppendChatMessage(ctx context.Context, conversationID int64, role, content string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (conversation_id, role, content, created_at, processed) VALUES (?, ?, ?, ?, 0)`,
		conversationID, role, content, now)
	if err != nil {
		return 0, fmt.Errorf("append chat message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chat_conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return 0, fmt.Errorf("touch conversation: %w", err)
	}
	return res.LastInsertId()
}

// RecentChatMessages returns up to limit most recent messages for
// conversationID, oldest first.
func (s *Store) RecentChatMessages(ctx context.Context, conversationID int64, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at, processed FROM chat_messages
		 WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var processed int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Processed = processed != 0
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// UnprocessedChatMessages returns every message in conversationID still
// awaiting a scheduler tick, oldest first.
func (s *Store) UnprocessedChatMessages(ctx context.Context, conversationID int64) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at, processed FROM chat_messages
		 WHERE conversation_id = ? AND processed = 0 ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var processed int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Processed = processed != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkChatMessageProcessed flips the processed flag on id.
func (s *Store) MarkChatMessageProcessed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark chat message processed: %w", err)
	}
	return nil
}

// --- chat turns / tool calls -------------------------------------------------

// BeginChatTurn records the start of an agentic loop invocation.
func (s *Store) BeginChatTurn(ctx context.Context, conversationID int64, sessionContext string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (conversation_id, session_context, iterations, started_at) VALUES (?, ?, 0, ?)`,
		conversationID, sessionContext, nowString())
	if err != nil {
		return 0, fmt.Errorf("begin chat turn: %w", err)
	}
	return res.LastInsertId()
}

// FinishChatTurn records the final token/cost accounting for a turn.
func (s *Store) FinishChatTurn(ctx context.Context, turnID int64, iterations int, inputTokens, outputTokens int, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_turns SET iterations = ?, input_tokens = ?, output_tokens = ?, cost_usd = ?, finished_at = ? WHERE id = ?`,
		iterations, inputTokens, outputTokens, costUSD, nowString(), turnID)
	if err != nil {
		return fmt.Errorf("finish chat turn: %w", err)
	}
	return nil
}

// RecordChatTurnToolCall logs a single tool dispatch made within a turn.
func (s *Store) RecordChatTurnToolCall(ctx context.Context, turnID int64, toolName, toolCallID, argumentsJSON, resultJSON string, success bool, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	successInt := 0
	if success {
		successInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turn_tool_calls (turn_id, tool_name, tool_call_id, arguments_json, result_json, success, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turnID, toolName, toolCallID, argumentsJSON, resultJSON, successInt, durationMs, nowString())
	if err != nil {
		return fmt.Errorf("record chat turn tool call: %w", err)
	}
	return nil
}

// RecordChatTurnPrompt stores the rendered system prompt used for turnID,
// captured separately from BeginChatTurn since the prompt is assembled after
// the turn row already exists.
func (s *Store) RecordChatTurnPrompt(ctx context.Context, turnID int64, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE chat_turns SET system_prompt = ? WHERE id = ?`, prompt, turnID)
	if err != nil {
		return fmt.Errorf("record chat turn prompt: %w", err)
	}
	return nil
}

// ChatTurn is one row of chat_turns.
type ChatTurn struct {
	ID             int64
	ConversationID int64
	SessionContext string
	SystemPrompt   string
	Iterations     int
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	StartedAt      string
	FinishedAt     sql.NullString
}

// ListChatTurns returns up to limit turns for conversationID, most recent
// first.
func (s *Store) ListChatTurns(ctx context.Context, conversationID int64, limit int) ([]ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, session_context, system_prompt, iterations, input_tokens, output_tokens, cost_usd, started_at, finished_at
		FROM chat_turns WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	defer rows.Close()

	var out []ChatTurn
	for rows.Next() {
		var t ChatTurn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.SessionContext, &t.SystemPrompt, &t.Iterations, &t.InputTokens, &t.OutputTokens, &t.CostUSD, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetChatTurn returns the turn identified by id.
func (s *Store) GetChatTurn(ctx context.Context, id int64) (ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t ChatTurn
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, session_context, system_prompt, iterations, input_tokens, output_tokens, cost_usd, started_at, finished_at
		FROM chat_turns WHERE id = ?`, id).
		Scan(&t.ID, &t.ConversationID, &t.SessionContext, &t.SystemPrompt, &t.Iterations, &t.InputTokens, &t.OutputTokens, &t.CostUSD, &t.StartedAt, &t.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatTurn{}, ErrNotFound
	}
	if err != nil {
		return ChatTurn{}, fmt.Errorf("get chat turn %d: %w", id, err)
	}
	return t, nil
}

// ChatTurnToolCall is one row of chat_turn_tool_calls.
type ChatTurnToolCall struct {
	ID            int64
	TurnID        int64
	ToolName      string
	ToolCallID    string
	ArgumentsJSON string
	ResultJSON    sql.NullString
	Success       bool
	DurationMs    int64
	CreatedAt     string
}

// ListChatTurnToolCalls returns every tool call made during turnID, in call
// order.
func (s *Store) ListChatTurnToolCalls(ctx context.Context, turnID int64) ([]ChatTurnToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, tool_name, tool_call_id, arguments_json, result_json, success, duration_ms, created_at
		FROM chat_turn_tool_calls WHERE turn_id = ? ORDER BY id ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("list chat turn tool calls: %w", err)
	}
	defer rows.Close()

	var out []ChatTurnToolCall
	for rows.Next() {
		var c ChatTurnToolCall
		var success int
		if err := rows.Scan(&c.ID, &c.TurnID, &c.ToolName, &c.ToolCallID, &c.ArgumentsJSON, &c.ResultJSON, &success, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn tool call: %w", err)
		}
		c.Success = success != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- memory eval/promotion lifecycle -----------------------------------------

// SaveMemoryEvalRun persists one eval.Report (already marshaled to JSON by
// the caller) and returns its assigned row id, used afterward as the
// eval_run_id on any promotion decision computed from it.
func (s *Store) SaveMemoryEvalRun(ctx context.Context, traceSetName, reportJSON string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_eval_runs (trace_set_name, report_json, created_at) VALUES (?, ?, ?)`,
		traceSetName, reportJSON, nowString())
	if err != nil {
		return 0, fmt.Errorf("save memory eval run: %w", err)
	}
	return res.LastInsertId()
}

// SaveMemoryPromotionDecisionParams holds the caller-marshaled fields of one
// promotion.Decision to persist.
type SaveMemoryPromotionDecisionParams struct {
	EvalRunID              int64
	CandidateDesignID      string
	CandidateSchemaVersion int
	Outcome                string
	Rationale              string
	PolicyJSON             string
	MetricsSnapshotJSON    string
	RollbackDesignID       string
	RollbackSchemaVersion  int
}

// SaveMemoryPromotionDecision persists one promotion decision and returns
// its assigned row id.
func (s *Store) SaveMemoryPromotionDecision(ctx context.Context, p SaveMemoryPromotionDecisionParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_promotion_decisions (
			eval_run_id, candidate_design_id, candidate_schema_version, outcome, rationale,
			policy_json, metrics_snapshot_json, rollback_design_id, rollback_schema_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.EvalRunID, p.CandidateDesignID, p.CandidateSchemaVersion, p.Outcome, p.Rationale,
		p.PolicyJSON, p.MetricsSnapshotJSON, p.RollbackDesignID, p.RollbackSchemaVersion, nowString())
	if err != nil {
		return 0, fmt.Errorf("save memory promotion decision: %w", err)
	}
	return res.LastInsertId()
}

// DB exposes the underlying *sql.DB for packages (memory backends) that need
// direct query access beyond the convenience methods above.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Lock/Unlock expose the store's writer mutex for multi-statement
// transactions coordinated from other packages (e.g. the memory migration
// engine moving rows between designs).
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }
