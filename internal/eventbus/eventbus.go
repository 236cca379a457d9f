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

// Package eventbus provides a small in-process generic pub/sub broker used
// to fan agent lifecycle events out to subscribers (the HTTP/WS front door
// and the tool approval gate) without coupling producers to consumers.
package eventbus

import (
	"context"
	"sync"
)

// EventType identifies the kind of change an Event carries.
type EventType int

const (
	// CreatedEvent indicates a new item was created.
	CreatedEvent EventType = iota
	// UpdatedEvent indicates an existing item was updated.
	UpdatedEvent
	// DeletedEvent indicates an item was deleted.
	DeletedEvent
)

// Event wraps a payload with a type tag.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewCreatedEvent creates a new "created" event.
func NewCreatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: CreatedEvent, Payload: payload}
}

// NewUpdatedEvent creates a new "updated" event.
func NewUpdatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: UpdatedEvent, Payload: payload}
}

// NewDeletedEvent creates a new "deleted" event.
func NewDeletedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: DeletedEvent, Payload: payload}
}

const subscriberBuffer = 64

// Broker fans published events out to any number of subscribers. A slow
// subscriber never blocks the publisher or its siblings: once its buffer is
// full, further events are dropped for that subscriber until it catches up.
type Broker[T any] struct {
	mu   sync.Mutex
	subs map[int]chan Event[T]
	next int
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[int]chan Event[T])}
}

// Subscribe registers a new subscriber and returns a channel of events. The
// channel is closed when ctx is done or Shutdown is called.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers ev to every current subscriber on a best-effort basis.
func (b *Broker[T]) Publish(ev Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than stall the publisher.
		}
	}
}

// Shutdown closes every active subscriber channel.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
