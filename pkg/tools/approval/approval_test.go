package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/internal/eventbus"
	"github.com/embercore/ember/pkg/tools/approval"
)

func TestRequestGranted(t *testing.T) {
	g := approval.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := g.Subscribe(ctx)

	done := make(chan error, 1)
	go func() {
		done <- g.Request(context.Background(), approval.Request{
			ToolCallID: "call-1",
			ToolName:   "write_file",
			SessionID:  "sess-1",
			Timeout:    time.Second,
		})
	}()

	select {
	case ev := <-sub:
		assert.Equal(t, "call-1", ev.Payload.ToolCallID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request event")
	}

	g.Grant("call-1")
	require.NoError(t, <-done)
	assert.True(t, g.IsGranted("call-1"))
}

func TestRequestDenied(t *testing.T) {
	g := approval.New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Deny("call-2")
	}()
	err := g.Request(context.Background(), approval.Request{ToolCallID: "call-2", Timeout: time.Second})
	require.Error(t, err)
	assert.False(t, g.IsGranted("call-2"))
}

func TestAutoApproveSession(t *testing.T) {
	g := approval.New()
	g.AutoApproveSession("sess-auto")
	err := g.Request(context.Background(), approval.Request{
		ToolCallID: "call-3",
		SessionID:  "sess-auto",
		Timeout:    time.Second,
	})
	require.NoError(t, err)
}

func TestGrantPersistent(t *testing.T) {
	g := approval.New()
	g.GrantPersistent("sess-4", "shell")
	err := g.Request(context.Background(), approval.Request{
		ToolCallID: "call-4",
		ToolName:   "shell",
		SessionID:  "sess-4",
		Timeout:    time.Second,
	})
	require.NoError(t, err)
}

func TestRequestTimeout(t *testing.T) {
	g := approval.New()
	err := g.Request(context.Background(), approval.Request{ToolCallID: "call-5", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
}

func TestSubscribeNotifications(t *testing.T) {
	g := approval.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notes := g.SubscribeNotifications(ctx)

	go func() {
		_ = g.Request(context.Background(), approval.Request{ToolCallID: "call-6", Timeout: time.Second})
	}()
	time.Sleep(10 * time.Millisecond)
	g.Grant("call-6")

	select {
	case ev := <-notes:
		assert.Equal(t, eventbus.UpdatedEvent, ev.Type)
		assert.True(t, ev.Payload.Granted)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
