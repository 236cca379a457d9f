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

// Package approval implements the tool-call approval gate: the component
// that decides, for every tool invocation an agent wants to make, whether it
// may proceed immediately, must be denied outright, or has to wait on an
// explicit human decision first.
package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/embercore/ember/internal/eventbus"
)

// ErrToolDisabled is returned when a tool call is rejected outright because
// the capability policy disallows it in the current session context — distinct
// from ErrDenied, which means a human was asked and said no.
var ErrToolDisabled = errors.New("approval: tool disabled for this session context")

// Request describes a single tool call awaiting a decision.
type Request struct {
	ID          string
	ToolName    string
	ToolCallID  string
	SessionID   string
	Description string
	Arguments   string
	Path        string // file path, for file-touching tools
	Timeout     time.Duration
}

// Notification is broadcast once a pending request is resolved, so any
// front end waiting on it (HTTP long-poll, WebSocket push, CLI prompt) can
// unblock.
type Notification struct {
	ToolCallID string
	Granted    bool
}

// ErrDenied is returned by Request when a request is denied or times out.
type ErrDenied struct{ ToolCallID string }

func (e *ErrDenied) Error() string { return "tool call denied: " + e.ToolCallID }

// Gate is the interface the agentic loop consults before dispatching a tool
// call gated by AskWhenAutonomous or AlwaysAsk.
type Gate interface {
	// Request registers a pending approval request and returns once it has
	// been granted or denied, or ctx is cancelled.
	Request(ctx context.Context, req Request) error
	Grant(toolCallID string)
	GrantPersistent(sessionID, toolName string)
	Deny(toolCallID string)
	IsGranted(toolCallID string) bool
	AutoApproveSession(sessionID string)
	Subscribe(ctx context.Context) <-chan eventbus.Event[Request]
	SubscribeNotifications(ctx context.Context) <-chan eventbus.Event[Notification]
}

type pending struct {
	done chan struct{}
	ok   bool
}

// gate is the default in-process Gate implementation.
type gate struct {
	requests      *eventbus.Broker[Request]
	notifications *eventbus.Broker[Notification]

	mu            sync.Mutex
	waiting       map[string]*pending
	grantedCalls  map[string]bool
	autoSessions  map[string]bool
	persistentTLs map[string]bool // sessionID+"\x00"+toolName
}

// New constructs an in-process approval gate.
func New() Gate {
	return &gate{
		requests:      eventbus.NewBroker[Request](),
		notifications: eventbus.NewBroker[Notification](),
		waiting:       make(map[string]*pending),
		grantedCalls:  make(map[string]bool),
		autoSessions:  make(map[string]bool),
		persistentTLs: make(map[string]bool),
	}
}

func persistentKey(sessionID, toolName string) string {
	return sessionID + "\x00" + toolName
}

func (g *gate) Request(ctx context.Context, req Request) error {
	g.mu.Lock()
	if g.autoSessions[req.SessionID] || g.persistentTLs[persistentKey(req.SessionID, req.ToolName)] {
		g.mu.Unlock()
		return nil
	}
	p := &pending{done: make(chan struct{})}
	g.waiting[req.ToolCallID] = p
	g.mu.Unlock()

	g.requests.Publish(eventbus.NewCreatedEvent(req))

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		g.mu.Lock()
		delete(g.waiting, req.ToolCallID)
		g.mu.Unlock()
		if !p.ok {
			return &ErrDenied{ToolCallID: req.ToolCallID}
		}
		return nil
	case <-timer.C:
		g.mu.Lock()
		delete(g.waiting, req.ToolCallID)
		g.mu.Unlock()
		return &ErrDenied{ToolCallID: req.ToolCallID}
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.waiting, req.ToolCallID)
		g.mu.Unlock()
		return ctx.Err()
	}
}

func (g *gate) resolve(toolCallID string, ok bool) {
	g.mu.Lock()
	p, found := g.waiting[toolCallID]
	if ok {
		g.grantedCalls[toolCallID] = true
	}
	g.mu.Unlock()

	if found {
		p.ok = ok
		close(p.done)
	}
	g.notifications.Publish(eventbus.NewUpdatedEvent(Notification{ToolCallID: toolCallID, Granted: ok}))
}

func (g *gate) Grant(toolCallID string) { g.resolve(toolCallID, true) }
func (g *gate) Deny(toolCallID string)  { g.resolve(toolCallID, false) }

func (g *gate) GrantPersistent(sessionID, toolName string) {
	g.mu.Lock()
	g.persistentTLs[persistentKey(sessionID, toolName)] = true
	g.mu.Unlock()
}

func (g *gate) IsGranted(toolCallID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grantedCalls[toolCallID]
}

func (g *gate) AutoApproveSession(sessionID string) {
	g.mu.Lock()
	g.autoSessions[sessionID] = true
	g.mu.Unlock()
}

func (g *gate) Subscribe(ctx context.Context) <-chan eventbus.Event[Request] {
	return g.requests.Subscribe(ctx)
}

func (g *gate) SubscribeNotifications(ctx context.Context) <-chan eventbus.Event[Notification] {
	return g.notifications.Subscribe(ctx)
}
