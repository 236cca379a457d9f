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

// Package telegram bridges a Telegram bot to the companion's primary
// conversation model: long-polls getUpdates, routes incoming text into a
// dedicated "telegram" conversation, and relays the scheduler's reply back
// to the originating chat. It is entirely optional — FromEnv returns nil
// when TELEGRAM_BOT_TOKEN isn't set, and the caller is expected to skip
// starting the bridge in that case.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/embercore/ember/pkg/store"
)

// ConversationTitle names the dedicated conversation Telegram messages flow
// through, kept separate from the primary chat conversation so an operator
// chatting from the desktop UI and from Telegram never interleave.
const ConversationTitle = "telegram"

// maxMessageLen is Telegram's per-message character limit.
const maxMessageLen = 4096

const (
	pollTimeoutSeconds = 30
	replyTimeout       = 120 * time.Second
	replyPollInterval  = time.Second
)

// Bot long-polls the Telegram Bot API and bridges messages to and from the
// companion's store.
type Bot struct {
	token         string
	allowedChatID *int64
	apiBase       string
	httpClient    *http.Client
	store         *store.Store
	logger        *zap.Logger
}

// New builds a Bot. allowedChatID, if non-nil, restricts the bridge to a
// single authorized chat.
func New(token string, allowedChatID *int64, s *store.Store, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		token:         token,
		allowedChatID: allowedChatID,
		apiBase:       "https://api.telegram.org/bot" + token,
		httpClient:    &http.Client{Timeout: 40 * time.Second},
		store:         s,
		logger:        logger,
	}
}

// FromEnv builds a Bot from TELEGRAM_BOT_TOKEN and the optional
// TELEGRAM_CHAT_ID, or returns nil if no token is configured.
func FromEnv(s *store.Store, logger *zap.Logger) *Bot {
	token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if token == "" {
		return nil
	}
	var allowed *int64
	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			allowed = &id
		}
	}
	return New(token, allowed, s, logger)
}

// Run long-polls getUpdates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bridge active", zap.Bool("chat_restricted", b.allowedChatID != nil))

	convID, err := b.ensureConversation(ctx)
	if err != nil {
		return fmt.Errorf("ensure telegram conversation: %w", err)
	}

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.pollUpdates(ctx, offset)
		if err != nil {
			b.logger.Warn("telegram getUpdates failed", zap.Error(err))
			sleep(ctx, 5*time.Second)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.handleUpdate(ctx, convID, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, convID int64, u update) {
	if u.Message == nil {
		return
	}
	chatID := u.Message.Chat.ID
	if b.allowedChatID != nil && chatID != *b.allowedChatID {
		b.logger.Debug("telegram: ignoring message from unauthorized chat", zap.Int64("chat_id", chatID))
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return
	}

	b.logger.Info("telegram message received", zap.Int64("chat_id", chatID))
	msgID, err := b.store.AppendChatMessage(ctx, convID, "user", text)
	if err != nil {
		b.logger.Error("telegram: failed to store message", zap.Error(err))
		return
	}

	reply, ok, err := b.waitForReply(ctx, convID, msgID)
	if err != nil {
		b.logger.Warn("telegram: waiting for reply failed", zap.Error(err))
		return
	}
	if ok && reply != "" {
		if err := b.sendMessage(ctx, chatID, reply); err != nil {
			b.logger.Error("telegram sendMessage failed", zap.Error(err))
		}
	}
}

// waitForReply polls the store for the first assistant message appended to
// convID after afterMessageID, up to replyTimeout.
func (b *Bot) waitForReply(ctx context.Context, convID, afterMessageID int64) (string, bool, error) {
	deadline := time.Now().Add(replyTimeout)
	ticker := time.NewTicker(replyPollInterval)
	defer ticker.Stop()

	for {
		recent, err := b.store.RecentChatMessages(ctx, convID, 20)
		if err != nil {
			return "", false, fmt.Errorf("poll for reply: %w", err)
		}
		for _, m := range recent {
			if m.ID > afterMessageID && m.Role == "assistant" {
				return m.Content, true, nil
			}
		}

		if time.Now().After(deadline) {
			b.logger.Warn("telegram: timed out waiting for reply", zap.Int64("conversation_id", convID))
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bot) ensureConversation(ctx context.Context) (int64, error) {
	id, err := b.store.FindConversationByTitle(ctx, ConversationTitle)
	if errors.Is(err, store.ErrNotFound) {
		return b.store.CreateChatConversation(ctx, ConversationTitle)
	}
	return id, err
}

// --- Telegram Bot API wire types --------------------------------------------

type apiResponse[T any] struct {
	OK     bool `json:"ok"`
	Result T    `json:"result"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Chat chat   `json:"chat"`
	Text string `json:"text"`
}

type chat struct {
	ID int64 `json:"id"`
}

func (b *Bot) pollUpdates(ctx context.Context, offset int64) ([]update, error) {
	body, err := json.Marshal(map[string]any{
		"offset":          offset,
		"timeout":         pollTimeoutSeconds,
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBase+"/getUpdates", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read getUpdates response: %w", err)
	}

	var parsed apiResponse[[]update]
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}
	return parsed.Result, nil
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}

	body, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBase+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendMessage failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
