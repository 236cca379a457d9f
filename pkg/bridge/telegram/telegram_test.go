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

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/store"
)

func newTestBot(t *testing.T, apiBase string) (*Bot, *store.Store) {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := New("test-token", nil, s, nil)
	b.apiBase = apiBase
	return b, s
}

func TestFromEnvReturnsNilWithoutToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, FromEnv(s, nil))
}

func TestFromEnvParsesAllowedChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "abc123")
	t.Setenv("TELEGRAM_CHAT_ID", "555")
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	bot := FromEnv(s, nil)
	require.NotNil(t, bot)
	require.NotNil(t, bot.allowedChatID)
	assert.Equal(t, int64(555), *bot.allowedChatID)
	os.Unsetenv("TELEGRAM_CHAT_ID")
}

func TestPollUpdatesParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getUpdates", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{"update_id": 10, "message": map[string]any{"chat": map[string]any{"id": 42}, "text": "hi"}},
			},
		})
	}))
	defer srv.Close()

	b, _ := newTestBot(t, srv.URL)
	updates, err := b.pollUpdates(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(10), updates[0].UpdateID)
	assert.Equal(t, "hi", updates[0].Message.Text)
	assert.Equal(t, int64(42), updates[0].Message.Chat.ID)
}

func TestPollUpdatesErrorsOnOkFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	b, _ := newTestBot(t, srv.URL)
	_, err := b.pollUpdates(context.Background(), 0)
	assert.Error(t, err)
}

func TestSendMessageTruncatesAtMaxLen(t *testing.T) {
	var captured struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, _ := newTestBot(t, srv.URL)
	long := strings.Repeat("x", maxMessageLen+500)
	require.NoError(t, b.sendMessage(context.Background(), 1, long))
	assert.Len(t, captured.Text, maxMessageLen)
}

func TestHandleUpdateIgnoresUnauthorizedChat(t *testing.T) {
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	allowed := int64(99)
	b := New("token", &allowed, s, nil)
	convID, err := s.CreateChatConversation(context.Background(), ConversationTitle)
	require.NoError(t, err)

	b.handleUpdate(context.Background(), convID, update{
		UpdateID: 1,
		Message:  &message{Chat: chat{ID: 1}, Text: "should be dropped"},
	})

	msgs, err := s.RecentChatMessages(context.Background(), convID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleUpdateStoresMessageAndRelaysReply(t *testing.T) {
	var sent struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, s := newTestBot(t, srv.URL)
	convID, err := s.CreateChatConversation(context.Background(), ConversationTitle)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = s.AppendChatMessage(context.Background(), convID, "assistant", "here is your answer")
	}()

	b.handleUpdate(context.Background(), convID, update{
		UpdateID: 1,
		Message:  &message{Chat: chat{ID: 7}, Text: "question"},
	})

	assert.Equal(t, int64(7), sent.ChatID)
	assert.Equal(t, "here is your answer", sent.Text)
}
