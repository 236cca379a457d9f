package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDefaultConversationBootstrapped(t *testing.T) {
	s := newTestStore(t)
	assert.NotZero(t, s.DefaultConversationID())
}

func TestAgentStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetAgentState(ctx, "mood")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetAgentState(ctx, "mood", "curious"))
	val, ok, err := s.GetAgentState(ctx, "mood")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "curious", val)

	require.NoError(t, s.SetAgentState(ctx, "mood", "sleepy"))
	val, _, err = s.GetAgentState(ctx, "mood")
	require.NoError(t, err)
	assert.Equal(t, "sleepy", val)
}

func TestWorkingMemoryCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWorkingMemory(ctx, "k1", "hello"))
	row, ok, err := s.GetWorkingMemory(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", row.Content)
	assert.NotEmpty(t, row.UpdatedAt)

	rows, err := s.ListWorkingMemory(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "k1", rows[0].Key)

	deleted, err := s.DeleteWorkingMemory(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err = s.GetWorkingMemory(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListWorkingMemoryOrderedByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWorkingMemory(ctx, "first", "a"))
	require.NoError(t, s.SetWorkingMemory(ctx, "second", "b"))

	rows, err := s.ListWorkingMemory(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0].Key)
	assert.Equal(t, "first", rows[1].Key)
}

func TestChatConversationAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	convID, err := s.CreateChatConversation(ctx, "test conversation")
	require.NoError(t, err)
	assert.NotZero(t, convID)

	_, err = s.AppendChatMessage(ctx, convID, "user", "hi there")
	require.NoError(t, err)
	id2, err := s.AppendChatMessage(ctx, convID, "assistant", "hello!")
	require.NoError(t, err)

	msgs, err := s.RecentChatMessages(ctx, convID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)

	require.NoError(t, s.MarkChatMessageProcessed(ctx, id2))
	msgs, err = s.RecentChatMessages(ctx, convID, 10)
	require.NoError(t, err)
	assert.True(t, msgs[1].Processed)
}

func TestChatTurnLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turnID, err := s.BeginChatTurn(ctx, s.DefaultConversationID(), "private_chat")
	require.NoError(t, err)
	assert.NotZero(t, turnID)

	require.NoError(t, s.RecordChatTurnToolCall(ctx, turnID, "search_memory", "call-1", `{"query":"x"}`, `{"ok":true}`, true, 12))
	require.NoError(t, s.FinishChatTurn(ctx, turnID, 2, 100, 50, 0.002))
}

func TestPersonaHistoryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendPersonaHistory(ctx, `{"v":1}`))
	require.NoError(t, s.AppendPersonaHistory(ctx, `{"v":2}`))

	hist, err := s.PersonaHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, `{"v":1}`, hist[0])
	assert.Equal(t, `{"v":2}`, hist[1])
}

func TestCharacterCardLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCharacterCard(ctx, "ember", `{"rev":1}`))
	require.NoError(t, s.UpsertCharacterCard(ctx, "ember", `{"rev":2}`))

	card, ok, err := s.LatestCharacterCard(ctx, "ember")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"rev":2}`, card)
}
