// ABOUTME: In-memory fan-out broadcaster delivering live events to participants
// ABOUTME: Subscribers register for an identity and receive that identity's events

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/souk-gateway/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// EventType identifies the kind of live event
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
)

// Sender describes the author of a pushed message
type Sender struct {
	ID          string     `json:"id"`
	Role        store.Role `json:"role"`
	DisplayName string     `json:"display_name"`
}

// Typing is an ephemeral typing indicator. It is never persisted.
type Typing struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Event is delivered to every live connection of its recipient identity.
// Message events carry the canonical stored message.
type Event struct {
	Type     EventType
	ThreadID string
	Message  *store.Message
	Sender   *Sender
	Typing   *Typing
}

// EventBroadcaster provides in-memory pub/sub of live events keyed by
// recipient identity. Each live connection subscribes under its own identity,
// so one identity with several connections receives every event on each.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // identityID -> subID -> ch
	onDrop      func(identityID string, event *Event)
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// OnDrop registers a hook called whenever an event is dropped for a slow
// subscriber. It must be set before the broadcaster is used.
func (b *EventBroadcaster) OnDrop(fn func(identityID string, event *Event)) {
	b.onDrop = fn
}

// Subscribe registers a subscriber for events addressed to identityID.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, identityID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[identityID]; !ok {
		b.subscribers[identityID] = make(map[string]chan *Event)
	}
	b.subscribers[identityID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"identity_id", identityID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(identityID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of identityID.
// Non-blocking: events are dropped for subscribers whose channels are full.
// Sends happen under the read lock so Unsubscribe can never close a channel
// mid-send.
func (b *EventBroadcaster) Publish(identityID string, event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[identityID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropped event for slow subscriber",
				"identity_id", identityID,
				"sub_id", subID,
				"type", event.Type,
				"thread_id", event.ThreadID)
			if b.onDrop != nil {
				b.onDrop(identityID, event)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(identityID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[identityID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, identityID)
	}

	b.logger.Debug("subscriber removed",
		"identity_id", identityID,
		"sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions for identityID.
func (b *EventBroadcaster) SubscriberCount(identityID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[identityID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for identityID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, identityID)
	}

	b.logger.Debug("broadcaster closed")
}
