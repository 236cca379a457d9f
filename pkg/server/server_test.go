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

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/agent"
	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/orientation"
	"github.com/embercore/ember/pkg/persona"
	"github.com/embercore/ember/pkg/presence"
	"github.com/embercore/ember/pkg/scheduler"
	"github.com/embercore/ember/pkg/server"
	"github.com/embercore/ember/pkg/store"
)

type noopScorer struct{}

func (noopScorer) ScoreSnapshot(ctx context.Context, dims []string, history []persona.Snapshot) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type noopSynthesizer struct{}

func (noopSynthesizer) Synthesize(ctx context.Context, history []persona.Snapshot) (persona.Trajectory, error) {
	return persona.Trajectory{}, nil
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string, tc agent.ToolContext, opts agent.RunOptions) (*agent.Result, error) {
	return &agent.Result{Content: "ok", Iterations: 1}, nil
}

func newTestServer(t *testing.T, authToken string) (*server.Server, *store.Store) {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sched := scheduler.New(scheduler.Deps{
		Store:       s,
		Concerns:    concerns.New(s),
		Journal:     journal.New(s, time.Millisecond),
		Persona:     persona.New(s, nil, noopScorer{}, noopSynthesizer{}),
		Orientation: orientation.New(nil),
		Presence:    presence.New(),
		Runner:      noopRunner{},
	}, scheduler.Config{ConversationTitle: "primary"})

	return server.New(server.Deps{Store: s, Scheduler: sched}, server.Config{AuthToken: authToken}), s
}

func do(t *testing.T, srv *server.Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthDoesNotRequireExistingState(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := do(t, srv, http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rec := do(t, srv, http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsCorrectToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rec := do(t, srv, http.MethodGet, "/v1/health", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthDisabledWhenTokenEmpty(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := do(t, srv, http.MethodGet, "/v1/agent/status", "anything-goes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConversationLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := do(t, srv, http.MethodPost, "/v1/conversations", "", []byte(`{"title":"ops"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"ID"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = do(t, srv, http.MethodPost, fmtPath(created.ID, "/v1/conversations/%d/messages"), "", []byte(`{"content":"hello"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var queued struct {
		Status    string `json:"status"`
		MessageID int64  `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))
	assert.Equal(t, "queued", queued.Status)
	assert.NotZero(t, queued.MessageID)

	rec = do(t, srv, http.MethodGet, fmtPath(created.ID, "/v1/conversations/%d/messages"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestAgentPauseToggleAndStatus(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := do(t, srv, http.MethodPut, "/v1/agent/pause", "", []byte(`{"paused":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused":true}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/v1/agent/toggle-pause", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused":false}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/v1/agent/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paused":false`)
}

func TestWebSocketRelaysPublishedEvents(t *testing.T) {
	srv, _ := newTestServer(t, "")
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + httpSrv.URL[len("http"):] + "/v1/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	srv.PublishEvent(server.JournalWritten, map[string]string{"mood": "content"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env server.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, server.JournalWritten, env.EventType)
}

func fmtPath(id int64, format string) string {
	return fmt.Sprintf(format, id)
}
