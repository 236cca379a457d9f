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

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/embercore/ember/pkg/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	cfg, err := s.deps.Config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration subsystem not wired")
		return
	}
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.deps.Config.Update(r.Context(), patch); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg, err := s.deps.Config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// pluginManifest is the public shape of one registered tool, as returned by
// GET /v1/plugins.
type pluginManifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSON(w, http.StatusOK, []pluginManifest{})
		return
	}
	tools := s.deps.Registry.List()
	out := make([]pluginManifest, 0, len(tools))
	for _, t := range tools {
		out = append(out, pluginManifest{Name: t.Name(), Description: t.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	convs, err := s.deps.Store.ListConversations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Title == "" {
		body.Title = "conversation"
	}
	id, err := s.deps.Store.CreateChatConversation(r.Context(), body.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	conv, err := s.deps.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := s.deps.Store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleConversationSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	summary, err := s.deps.Store.ConversationSummary(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	limit := queryLimit(r, 50)
	msgs, err := s.deps.Store.RecentChatMessages(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "missing content")
		return
	}
	msgID, err := s.deps.Store.AppendChatMessage(r.Context(), id, "user", body.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "message_id": msgID})
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	limit := queryLimit(r, 50)
	turns, err := s.deps.Store.ListChatTurns(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleTurnToolCalls(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid turn id")
		return
	}
	calls, err := s.deps.Store.ListChatTurnToolCalls(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleTurnPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid turn id")
		return
	}
	turn, err := s.deps.Store.GetChatTurn(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": turn.SystemPrompt})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not wired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused": s.deps.Scheduler.Paused(),
		"last":   s.deps.Scheduler.LastResult(),
	})
}

func (s *Server) handleAgentPause(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not wired")
		return
	}
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Paused {
		s.deps.Scheduler.Pause()
	} else {
		s.deps.Scheduler.Resume()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.deps.Scheduler.Paused()})
}

func (s *Server) handleAgentTogglePause(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not wired")
		return
	}
	paused := s.deps.Scheduler.TogglePause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not wired")
		return
	}
	s.deps.Scheduler.Pause()
	if s.deps.Stop != nil {
		s.deps.Stop()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
