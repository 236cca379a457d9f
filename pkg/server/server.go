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

// Package server is the companion's front door: a bearer-token-guarded REST
// API under /v1 plus a WebSocket endpoint pushing typed event envelopes to
// any connected operator surface. It never runs the agentic loop itself —
// every handler either reads persisted state or hands a request to the
// scheduler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/embercore/ember/internal/eventbus"
	"github.com/embercore/ember/pkg/scheduler"
	"github.com/embercore/ember/pkg/store"
	"github.com/embercore/ember/pkg/tools/registry"
)

// EventType is one of the fixed set of envelope kinds pushed over the
// WebSocket event stream.
type EventType string

const (
	StateChanged      EventType = "state_changed"
	Observation       EventType = "observation"
	ReasoningTrace    EventType = "reasoning_trace"
	ToolCallProgress  EventType = "tool_call_progress"
	ChatStreaming     EventType = "chat_streaming"
	ActionTaken       EventType = "action_taken"
	OrientationUpdate EventType = "orientation_update"
	JournalWritten    EventType = "journal_written"
	ConcernCreated    EventType = "concern_created"
	ConcernTouched    EventType = "concern_touched"
	ErrorEvent        EventType = "error"
	ChatReply         EventType = "chat_reply"
)

// Envelope is the JSON shape of every event pushed over /v1/ws/events.
type Envelope struct {
	EventType EventType `json:"event_type"`
	EmittedAt time.Time `json:"emitted_at"`
	Payload   any       `json:"payload"`
}

// ChatStreamingPayload backs the chat_streaming event: content is always the
// cumulative text so far, not a delta.
type ChatStreamingPayload struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	Done           bool   `json:"done"`
}

// ConfigProvider is the layered-configuration subsystem this server reads
// and hot-reloads through; supplied by internal/config at process startup.
type ConfigProvider interface {
	Get(ctx context.Context) (map[string]any, error)
	Update(ctx context.Context, patch map[string]any) error
}

// Deps bundles the Server's collaborators.
type Deps struct {
	Store      *store.Store
	Scheduler  *scheduler.Scheduler
	Registry   *registry.Registry
	Config     ConfigProvider
	Logger     *zap.Logger
	// Stop, if set, is invoked by POST /v1/agent/stop in addition to pausing
	// the scheduler — typically the process's root context cancel func.
	Stop func()
}

// Config tunes the Server's network and auth posture.
type Config struct {
	Addr string
	// AuthToken, if non-empty, is required as a bearer token on every
	// request. Empty disables auth ("auth mode disabled").
	AuthToken string
}

// Server is the companion's HTTP/WebSocket front door.
type Server struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	http   *http.Server
	hub    *eventbus.Broker[Envelope]
	upg    websocket.Upgrader

	relayCancel context.CancelFunc
}

// New builds a Server. Call ListenAndServe (or Start/Shutdown) to run it.
func New(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		hub:    eventbus.NewBroker[Envelope](),
		upg: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.authMiddleware(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // never times out a long-lived WebSocket connection
		IdleTimeout:  120 * time.Second,
	}
	if deps.Scheduler != nil && deps.Scheduler.Bus() != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.relayCancel = cancel
		go s.relayTicks(ctx, deps.Scheduler.Bus())
	}
	return s
}

// PublishEvent lets any collaborator (agent-loop streaming callbacks, the
// scheduler, skills) feed the WebSocket stream directly, for event types
// this server can't derive from a TickResult alone.
func (s *Server) PublishEvent(eventType EventType, payload any) {
	s.hub.Publish(eventbus.NewCreatedEvent(Envelope{
		EventType: eventType,
		EmittedAt: time.Now().UTC(),
		Payload:   payload,
	}))
}

// relayTicks translates every TickResult the scheduler publishes into one or
// more WebSocket envelopes, until ctx is cancelled by Shutdown.
func (s *Server) relayTicks(ctx context.Context, bus *eventbus.Broker[scheduler.TickResult]) {
	ch := bus.Subscribe(ctx)
	for ev := range ch {
		t := ev.Payload
		s.PublishEvent(OrientationUpdate, t.Orientation)
		s.PublishEvent(StateChanged, map[string]any{
			"session_context": t.SessionContext,
			"events_seen":     t.EventsSeen,
			"chat_replied":    t.ChatReplied,
			"ambient_posted":  t.AmbientPosted,
		})
		if t.JournalWritten {
			s.PublishEvent(JournalWritten, map[string]any{"mood": t.Orientation.Mood})
		}
	}
}

// Handler returns the fully wrapped (auth + routing) HTTP handler, for
// embedding in a custom listener or an httptest server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start(context.Context) error {
	s.logger.Info("starting front door", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("front door server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and closes every WebSocket
// subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.relayCancel != nil {
		s.relayCancel()
	}
	s.hub.Shutdown()
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)

	mux.HandleFunc("GET /v1/config", s.handleGetConfig)
	mux.HandleFunc("PUT /v1/config", s.handlePutConfig)

	mux.HandleFunc("GET /v1/plugins", s.handlePlugins)

	mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	mux.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /v1/conversations/{id}/summary", s.handleConversationSummary)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("GET /v1/conversations/{id}/turns", s.handleListTurns)

	mux.HandleFunc("GET /v1/turns/{id}/tool-calls", s.handleTurnToolCalls)
	mux.HandleFunc("GET /v1/turns/{id}/prompt", s.handleTurnPrompt)

	mux.HandleFunc("GET /v1/agent/status", s.handleAgentStatus)
	mux.HandleFunc("PUT /v1/agent/pause", s.handleAgentPause)
	mux.HandleFunc("POST /v1/agent/toggle-pause", s.handleAgentTogglePause)
	mux.HandleFunc("POST /v1/agent/stop", s.handleAgentStop)

	mux.HandleFunc("GET /v1/ws/events", s.handleWebSocket)

	return mux
}

// authMiddleware enforces the bearer token configured for this server. An
// empty AuthToken means auth mode "disabled" and every request passes
// through.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- helpers ----------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
